package payment

import (
	"encoding/json"

	errors "github.com/fitmarket/payment-orchestration/internal"
	"github.com/fitmarket/payment-orchestration/internal/clientcontext"
	"github.com/fitmarket/payment-orchestration/internal/core/common/validation"
	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/intent"
	"github.com/fitmarket/payment-orchestration/internal/redirect"
)

// CreateSessionRequest is the inbound checkout payload from the application
// layer. Payload is the business-type-specific map, passed through opaquely
// after its minimum required fields are checked.
type CreateSessionRequest struct {
	BusinessType  string                    `json:"business_type"`
	Payload       map[string]string         `json:"payload"`
	Amount        int64                     `json:"amount"`
	Currency      string                    `json:"currency"`
	Customer      intent.Customer           `json:"customer"`
	RuntimeHint   clientcontext.RuntimeHint `json:"runtime_hint,omitempty"`
	PreferSameTab bool                      `json:"prefer_same_tab,omitempty"`
	PopupBlocked  bool                      `json:"popup_blocked,omitempty"`
}

func (r *CreateSessionRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("business_type", r.BusinessType).Required()
	validator.Field("amount", r.Amount).Required().MinInt(1, errors.ErrCodeInvalidAmount)
	validator.Field("currency", r.Currency).Required().Length(3, errors.ErrCodeInvalidCurrency)
	validator.Field("customer.name", r.Customer.Name).Required()
	validator.Field("customer.email", r.Customer.Email).Required().Email()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type CreateSessionResponse struct {
	SessionID      string          `json:"session_id"`
	RedirectURL    string          `json:"redirect_url"`
	RedirectAction redirect.Action `json:"redirect_action"`
}

type VerifySessionResponse struct {
	SessionID   string       `json:"session_id"`
	Status      VerifyStatus `json:"status"`
	Unconfirmed bool         `json:"unconfirmed,omitempty"`
}

// WebhookPayload is what the gateway pushes. It is treated as a hint only:
// the engine corroborates every notification with its own status query
// before transitioning state.
type WebhookPayload struct {
	InvoiceID string `json:"invoice_id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

func (p *WebhookPayload) Validate() error {
	validator := validation.NewValidator()

	validator.Field("invoice_id", p.InvoiceID).Required()
	validator.Field("status", p.Status).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type WebhookAck struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SessionView is the read-only operational projection of a session.
type SessionView struct {
	ID                     string          `json:"id"`
	Status                 string          `json:"status"`
	BusinessType           string          `json:"business_type"`
	Amount                 int64           `json:"amount"`
	Currency               string          `json:"currency"`
	GatewayInvoiceID       *string         `json:"gateway_invoice_id,omitempty"`
	ReconciliationAttempts int             `json:"reconciliation_attempts"`
	Intent                 json.RawMessage `json:"intent"`
	CreatedAt              string          `json:"created_at"`
	LastTransitionAt       string          `json:"last_transition_at"`
}
