package intent

import (
	"encoding/json"
)

type BusinessType string

const (
	BusinessTrainerBooking BusinessType = "trainer_booking"
	BusinessGymMembership  BusinessType = "gym_membership"
	BusinessServiceOrder   BusinessType = "service_order"
)

func (t BusinessType) Valid() bool {
	switch t {
	case BusinessTrainerBooking, BusinessGymMembership, BusinessServiceOrder:
		return true
	}
	return false
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CallbackURLs are the absolute URIs the gateway redirects the paying client
// to. For embedded-app contexts Success and Redirect both carry the deep link.
type CallbackURLs struct {
	Success  string `json:"success"`
	Cancel   string `json:"cancel"`
	Redirect string `json:"redirect"`
}

// PaymentIntent is the gateway-agnostic snapshot of one checkout attempt.
// BusinessPayload is opaque below this layer: the gateway client and the
// external gateway never interpret its shape.
type PaymentIntent struct {
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	BusinessType    BusinessType    `json:"business_type"`
	BusinessPayload json.RawMessage `json:"business_payload"`
	CallbackURLs    CallbackURLs    `json:"callback_urls"`
	Customer        Customer        `json:"customer"`
}
