// Package payment owns the checkout session lifecycle: building gateway
// intents, creating sessions, and reconciling gateway outcomes into exactly
// one business side effect.
package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fitmarket/payment-orchestration/internal"
	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/intent"
	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/session"
	gatewaytypes "github.com/fitmarket/payment-orchestration/internal/core/datamodel/gateway"
)

// RepositoryAPI is the durable session store. All mutations after Create go
// through conditional-update paths; there is no blind overwrite.
type RepositoryAPI interface {
	Create(s *session.PaymentSession) error
	GetByID(id string) (*session.PaymentSession, error)
	GetByGatewayInvoiceID(invoiceID string) (*session.PaymentSession, error)

	// ClaimInvoice records the gateway invoice id and moves the session
	// from created to gateway_pending. It only succeeds while the session
	// is still in created with no invoice id; otherwise it reports a
	// conflict. The invoice id is written at most once.
	ClaimInvoice(id, invoiceID string) error

	// TransitionTerminal conditionally moves a non-terminal session into a
	// terminal state, bumping the version and, when appliedAt is non-nil,
	// setting applied_side_effect_at only if it is still null. Zero rows
	// affected means the caller lost the race.
	TransitionTerminal(id, from, to string, appliedAt *time.Time) error

	IncrementReconciliationAttempts(id string) error

	ListByStatus(status string, offset, limit int) ([]*session.PaymentSession, error)
	GetSessionStats() (map[string]int64, error)
}

// GatewayAPI is what the engine and service need from the gateway client.
type GatewayAPI interface {
	CreateInvoice(ctx context.Context, req *gatewaytypes.CreateInvoiceRequest) (*gatewaytypes.InvoiceData, error)
	QueryStatus(ctx context.Context, invoiceID string) (*gatewaytypes.InvoiceStatusData, error)
}

// EffectApplier is the downstream collaborator that performs the irreversible
// business action for a completed payment. It is invoked at most once per
// session, guarded by applied_side_effect_at, and is expected to additionally
// be keyed by business identifiers so multiple sessions for the same logical
// purchase stay safe.
type EffectApplier interface {
	ConfirmBooking(ctx context.Context, payload json.RawMessage) error
	ActivateMembership(ctx context.Context, payload json.RawMessage) error
	OpenServiceOrder(ctx context.Context, payload json.RawMessage) error
}

// VerifyStatus is the client-facing status vocabulary. Anything not yet
// terminal is PENDING; pending is a valid outcome, never an error.
type VerifyStatus string

const (
	VerifyPending   VerifyStatus = "PENDING"
	VerifyCompleted VerifyStatus = "COMPLETED"
	VerifyFailed    VerifyStatus = "FAILED"
	VerifyCancelled VerifyStatus = "CANCELLED"
)

func verifyStatusFor(sessionStatus string) VerifyStatus {
	switch sessionStatus {
	case session.StatusCompleted:
		return VerifyCompleted
	case session.StatusFailed:
		return VerifyFailed
	case session.StatusCancelled:
		return VerifyCancelled
	default:
		return VerifyPending
	}
}

// sessionStatusFor maps a terminal gateway invoice status onto the session
// state machine. Pending maps to empty: no transition.
func sessionStatusFor(invoiceStatus gatewaytypes.InvoiceStatus) string {
	switch invoiceStatus {
	case gatewaytypes.InvoiceStatusCompleted:
		return session.StatusCompleted
	case gatewaytypes.InvoiceStatusFailed:
		return session.StatusFailed
	case gatewaytypes.InvoiceStatusCancelled:
		return session.StatusCancelled
	default:
		return ""
	}
}

// applyEffect dispatches the business side effect for the embedded intent.
func applyEffect(ctx context.Context, applier EffectApplier, businessType intent.BusinessType, payload json.RawMessage) error {
	switch businessType {
	case intent.BusinessTrainerBooking:
		return applier.ConfirmBooking(ctx, payload)
	case intent.BusinessGymMembership:
		return applier.ActivateMembership(ctx, payload)
	case intent.BusinessServiceOrder:
		return applier.OpenServiceOrder(ctx, payload)
	}
	return internal.ErrInvalidBusinessType
}
