package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/session"
	"github.com/fitmarket/payment-orchestration/internal/core/events"
	"github.com/fitmarket/payment-orchestration/internal/effects"
	"github.com/fitmarket/payment-orchestration/internal/gateway"
	"github.com/fitmarket/payment-orchestration/internal/payment"
	paymentstore "github.com/fitmarket/payment-orchestration/internal/payment/postgres"
	"github.com/fitmarket/payment-orchestration/pkg/logger"
)

// The webhook is the authoritative reconciliation path, but webhooks get
// lost. The sweep walks sessions stuck in gateway_pending and reconciles
// each against the gateway, exactly as a webhook or poll would.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reconcile stale pending sessions against the gateway",
	Run: func(cmd *cobra.Command, args []string) {
		runSweep()
	},
}

var (
	sweepBatchSize int
	sweepOlderThan time.Duration
)

func init() {
	sweepCmd.Flags().IntVar(&sweepBatchSize, "batch-size", 100, "Maximum sessions to reconcile per run")
	sweepCmd.Flags().DurationVar(&sweepOlderThan, "older-than", 15*time.Minute, "Only sweep sessions whose last transition is older than this")
}

func runSweep() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open gorm connection: %v\n", err)
		os.Exit(1)
	}

	eventBus := events.NewEventBus(log)
	payment.NewEventHandler(log).RegisterEventHandlers(eventBus)

	repo := paymentstore.NewSessionRepository(gormDB)
	gatewayClient := gateway.NewClient(&config.Gateway, log)
	applier := effects.NewCoreClient(&config.Effects, log)
	engine := payment.NewEngine(repo, gatewayClient, applier, eventBus, log)

	pending, err := repo.ListByStatus(session.StatusGatewayPending, 0, sweepBatchSize)
	if err != nil {
		log.Error("failed to list pending sessions", "error", err)
		os.Exit(1)
	}

	cutoff := time.Now().UTC().Add(-sweepOlderThan)
	var settled, skipped, failed int

	ctx := context.Background()
	for _, sess := range pending {
		if sess.LastTransitionAt.After(cutoff) {
			skipped++
			continue
		}

		status, err := engine.Reconcile(ctx, sess)
		switch {
		case err != nil:
			failed++
			log.Error("sweep reconciliation failed", "error", err, "session_id", sess.ID)
		case status == payment.VerifyPending:
			skipped++
		default:
			settled++
		}
	}

	log.Info("sweep complete",
		"candidates", len(pending),
		"settled", settled,
		"still_pending_or_fresh", skipped,
		"failed", failed)
}
