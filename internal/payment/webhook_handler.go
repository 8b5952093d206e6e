package payment

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	errors "github.com/fitmarket/payment-orchestration/internal"
	"github.com/fitmarket/payment-orchestration/internal/transport"
)

// SignatureHeader carries the gateway's webhook signature.
const SignatureHeader = "X-Gateway-Signature"

// maxWebhookBodyBytes caps what an unverified caller can make us buffer;
// genuine gateway notifications are a few hundred bytes.
const maxWebhookBodyBytes = 1 << 20

type WebhookHandler struct {
	*transport.BaseHandler
	engine   *Engine
	verifier SignatureVerifier
	logger   *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, engine *Engine, verifier SignatureVerifier, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: baseHandler,
		engine:      engine,
		verifier:    verifier,
		logger:      logger,
	}
}

// HandleGatewayCallback acknowledges gateway notifications. Malformed or
// unsigned bodies are rejected with 4xx and never touch session state.
// Duplicate deliveries for an already-settled session are acknowledged with
// 200 so the gateway stops retrying.
func (h *WebhookHandler) HandleGatewayCallback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	if err := h.verifier.Verify(body, r.Header.Get(SignatureHeader)); err != nil {
		// Security relevant: logged distinctly from ordinary 4xx noise.
		h.logger.Error("webhook signature rejected",
			"error", err,
			"remote_addr", r.RemoteAddr)
		h.WriteError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload WebhookPayload
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&payload); err != nil {
		h.logger.Error("invalid webhook payload", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := payload.Validate(); err != nil {
		h.logger.Error("webhook payload missing fields", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invoice_id and status are required")
		return
	}

	h.logger.Info("received gateway webhook",
		"invoice_id", payload.InvoiceID,
		"claimed_status", payload.Status)

	status, err := h.engine.ReconcileByInvoice(r.Context(), payload.InvoiceID)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Type == errors.ErrorTypeNotFound {
			h.logger.Error("webhook for unknown invoice", "invoice_id", payload.InvoiceID)
			h.WriteError(w, http.StatusNotFound, "unknown invoice")
			return
		}
		// Corroboration failed; no state was changed. A 5xx makes the
		// gateway redeliver, which retries the reconciliation.
		h.logger.Error("webhook reconciliation failed",
			"error", err,
			"invoice_id", payload.InvoiceID)
		h.WriteError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}

	h.logger.Info("webhook processed",
		"invoice_id", payload.InvoiceID,
		"status", string(status))

	h.WriteJSON(w, http.StatusOK, WebhookAck{
		Status:  "ok",
		Message: "callback processed",
	})
}
