package session

import (
	"encoding/json"
	"time"

	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/intent"
)

// Session lifecycle. Status only ever moves forward; terminal states never
// revert.
const (
	StatusCreated        = "created"
	StatusGatewayPending = "gateway_pending"
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
	StatusCancelled      = "cancelled"
)

func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// PaymentSession is the durable record of one checkout attempt, independent
// of whether the gateway invoice was ever created. Its ID doubles as the
// idempotency key sent to the gateway. Rows are never deleted; terminal
// sessions remain as an audit trail.
type PaymentSession struct {
	ID                     string          `json:"id" gorm:"primaryKey;type:uuid"`
	GatewayInvoiceID       *string         `json:"gateway_invoice_id,omitempty" gorm:"column:gateway_invoice_id;uniqueIndex"`
	Status                 string          `json:"status" gorm:"column:status;not null;default:created"`
	BusinessType           string          `json:"business_type" gorm:"column:business_type;not null"`
	Amount                 int64           `json:"amount" gorm:"column:amount;not null"`
	Currency               string          `json:"currency" gorm:"column:currency;not null"`
	Intent                 json.RawMessage `json:"intent" gorm:"column:intent;type:jsonb;not null"`
	ReconciliationAttempts int             `json:"reconciliation_attempts" gorm:"column:reconciliation_attempts;default:0"`
	AppliedSideEffectAt    *time.Time      `json:"applied_side_effect_at,omitempty" gorm:"column:applied_side_effect_at"`
	Version                int64           `json:"version" gorm:"column:version;default:1"`
	CreatedAt              time.Time       `json:"created_at" gorm:"column:created_at;default:now()"`
	LastTransitionAt       time.Time       `json:"last_transition_at" gorm:"column:last_transition_at;default:now()"`
}

func (PaymentSession) TableName() string {
	return "payment_sessions"
}

func (s *PaymentSession) Terminal() bool {
	return IsTerminal(s.Status)
}

func (s *PaymentSession) SideEffectApplied() bool {
	return s.AppliedSideEffectAt != nil
}

func (s *PaymentSession) IntentBusinessType() intent.BusinessType {
	return intent.BusinessType(s.BusinessType)
}

// IntentPayload extracts the opaque business payload from the immutable
// intent snapshot taken at creation time.
func (s *PaymentSession) IntentPayload() json.RawMessage {
	var snap intent.PaymentIntent
	if err := json.Unmarshal(s.Intent, &snap); err != nil {
		return nil
	}
	return snap.BusinessPayload
}
