package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fitmarket/payment-orchestration/internal"
	"github.com/fitmarket/payment-orchestration/internal/clientcontext"
	"github.com/fitmarket/payment-orchestration/internal/core/events"
	"github.com/fitmarket/payment-orchestration/internal/effects"
	"github.com/fitmarket/payment-orchestration/internal/gateway"
	"github.com/fitmarket/payment-orchestration/internal/payment"
	paymentstore "github.com/fitmarket/payment-orchestration/internal/payment/postgres"
	"github.com/fitmarket/payment-orchestration/internal/transport"
	"github.com/fitmarket/payment-orchestration/internal/transport/rest"
	"github.com/fitmarket/payment-orchestration/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server handling checkout sessions, gateway webhooks and verification polls`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config         *internal.Config
	DB             *sqlx.DB
	EventBus       *events.EventBus
	Router         *chi.Mux
	PaymentHandler *payment.Handler
	WebhookHandler *payment.WebhookHandler
	Logger         *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.PaymentHandler, deps.WebhookHandler, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		deps.EventBus.Drain()
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{
		Conn: db.DB,
	}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm connection: %w", err)
	}

	verifier, err := payment.NewSignatureVerifier(&config.Gateway)
	if err != nil {
		return nil, fmt.Errorf("failed to configure webhook verifier: %w", err)
	}

	eventBus := events.NewEventBus(log)
	payment.NewEventHandler(log).RegisterEventHandlers(eventBus)

	repo := paymentstore.NewSessionRepository(gormDB)
	gatewayClient := gateway.NewClient(&config.Gateway, log)
	applier := effects.NewCoreClient(&config.Effects, log)
	resolver := clientcontext.NewResolver(&config.Checkout, log)

	engine := payment.NewEngine(repo, gatewayClient, applier, eventBus, log)
	checkoutService := payment.NewCheckoutService(repo, gatewayClient, resolver, engine, config.Checkout.MaxVerifyAttempts, log)

	baseHandler := transport.NewBaseHandler(log)

	return &Dependencies{
		Config:         config,
		Logger:         log,
		DB:             db,
		EventBus:       eventBus,
		Router:         chi.NewRouter(),
		PaymentHandler: payment.NewHandler(checkoutService, log),
		WebhookHandler: payment.NewWebhookHandler(baseHandler, engine, verifier, log),
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
