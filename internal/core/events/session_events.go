package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeSessionCompleted = "payment.session.completed"
	EventTypeSessionFailed    = "payment.session.failed"
	EventTypeSessionCancelled = "payment.session.cancelled"
)

// SessionSettledEvent is published after a session reaches a terminal state.
// Events are observability only; the business side effect is applied
// synchronously before publishing, never by a subscriber.
type SessionSettledEvent struct {
	BaseEvent
	SessionID        string `json:"session_id"`
	GatewayInvoiceID string `json:"gateway_invoice_id"`
	BusinessType     string `json:"business_type"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
}

func newSessionSettledEvent(eventType, sessionID, invoiceID, businessType string, amount int64, currency, status string) *SessionSettledEvent {
	return &SessionSettledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"session_id":         sessionID,
				"gateway_invoice_id": invoiceID,
				"business_type":      businessType,
				"amount":             amount,
				"currency":           currency,
				"status":             status,
			},
		},
		SessionID:        sessionID,
		GatewayInvoiceID: invoiceID,
		BusinessType:     businessType,
		Amount:           amount,
		Currency:         currency,
		Status:           status,
	}
}

func NewSessionCompletedEvent(sessionID, invoiceID, businessType string, amount int64, currency string) *SessionSettledEvent {
	return newSessionSettledEvent(EventTypeSessionCompleted, sessionID, invoiceID, businessType, amount, currency, "completed")
}

func NewSessionFailedEvent(sessionID, invoiceID, businessType string, amount int64, currency string) *SessionSettledEvent {
	return newSessionSettledEvent(EventTypeSessionFailed, sessionID, invoiceID, businessType, amount, currency, "failed")
}

func NewSessionCancelledEvent(sessionID, invoiceID, businessType string, amount int64, currency string) *SessionSettledEvent {
	return newSessionSettledEvent(EventTypeSessionCancelled, sessionID, invoiceID, businessType, amount, currency, "cancelled")
}
