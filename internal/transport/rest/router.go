package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/fitmarket/payment-orchestration/internal/payment"
	"github.com/fitmarket/payment-orchestration/internal/transport/middleware"
	"github.com/fitmarket/payment-orchestration/internal/transport/swagger"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve the OpenAPI document at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1
	router.Route("/api/v1", func(r chi.Router) {
		// Health check routes
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Gateway webhook; authenticated by signature, not by session
		if webhookHandler != nil {
			r.Post("/payment/callback", webhookHandler.HandleGatewayCallback)
		}

		if paymentHandler != nil {
			r.Route("/checkout/sessions", func(cr chi.Router) {
				cr.Post("/", paymentHandler.CreateSession)       // POST /checkout/sessions
				cr.Get("/{id}/verify", paymentHandler.VerifySession) // GET /checkout/sessions/:id/verify
			})

			// Read-only operational view
			r.Get("/sessions/{id}", paymentHandler.GetSession)
		}
	})
}
