package main

import "github.com/fitmarket/payment-orchestration/cmd"

func main() {
	cmd.Execute()
}
