package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/fitmarket/payment-orchestration/internal"
	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/session"
	"github.com/fitmarket/payment-orchestration/internal/core/events"
)

// Engine is the reconciliation state machine. It accepts either a gateway
// webhook or a client-triggered verification poll, derives the canonical
// status from the gateway's own answer, and applies the business side effect
// exactly once. Webhook and poll may race; the store's conditional update is
// the sole arbiter.
type Engine struct {
	repo     RepositoryAPI
	gateway  GatewayAPI
	applier  EffectApplier
	eventBus *events.EventBus
	logger   *slog.Logger
}

func NewEngine(repo RepositoryAPI, gw GatewayAPI, applier EffectApplier, eventBus *events.EventBus, logger *slog.Logger) *Engine {
	return &Engine{
		repo:     repo,
		gateway:  gw,
		applier:  applier,
		eventBus: eventBus,
		logger:   logger,
	}
}

// ReconcileByInvoice is the webhook path: the notification named a gateway
// invoice. The pushed status is never trusted; the session is loaded and the
// gateway queried independently before any transition.
func (e *Engine) ReconcileByInvoice(ctx context.Context, invoiceID string) (VerifyStatus, error) {
	sess, err := e.repo.GetByGatewayInvoiceID(invoiceID)
	if err != nil {
		return "", internal.ErrInvoiceNotFound.WithCause(err)
	}
	return e.Reconcile(ctx, sess)
}

// ReconcileByID is the verification-poll path.
func (e *Engine) ReconcileByID(ctx context.Context, sessionID string) (VerifyStatus, *session.PaymentSession, error) {
	sess, err := e.repo.GetByID(sessionID)
	if err != nil {
		return "", nil, internal.ErrSessionNotFound.WithCause(err)
	}
	status, err := e.Reconcile(ctx, sess)
	return status, sess, err
}

// Reconcile drives one attempt of the state machine for a loaded session.
// Already-terminal sessions are an acknowledged no-op. A gateway-side
// pending answer returns PENDING without transitioning. A timeout or partial
// answer never transitions state either: the attempt simply ends and a later
// webhook or poll retries the corroboration.
func (e *Engine) Reconcile(ctx context.Context, sess *session.PaymentSession) (VerifyStatus, error) {
	if err := e.repo.IncrementReconciliationAttempts(sess.ID); err != nil {
		e.logger.Error("failed to increment reconciliation attempts", "error", err, "session_id", sess.ID)
	}

	if sess.Terminal() {
		e.logger.Info("reconciliation no-op, session already terminal",
			"session_id", sess.ID,
			"status", sess.Status)
		return verifyStatusFor(sess.Status), nil
	}

	// Still created: the gateway invoice was never confirmed. Nothing to
	// corroborate against; the session stays where it is.
	if sess.GatewayInvoiceID == nil {
		return VerifyPending, nil
	}

	invoiceStatus, err := e.gateway.QueryStatus(ctx, *sess.GatewayInvoiceID)
	if err != nil {
		e.logger.Error("status corroboration failed",
			"error", err,
			"session_id", sess.ID,
			"gateway_invoice_id", *sess.GatewayInvoiceID)
		return "", err
	}

	target := sessionStatusFor(invoiceStatus.Status)
	if target == "" {
		e.logger.Info("gateway still reports pending",
			"session_id", sess.ID,
			"gateway_invoice_id", *sess.GatewayInvoiceID)
		return VerifyPending, nil
	}

	if invoiceStatus.Amount != 0 && invoiceStatus.Amount != sess.Amount {
		e.logger.Error("gateway amount does not match session",
			"session_id", sess.ID,
			"session_amount", sess.Amount,
			"gateway_amount", invoiceStatus.Amount)
		return "", internal.NewGatewayProtocolError("gateway reported amount does not match session", nil)
	}

	return e.settle(ctx, sess, target)
}

// settle performs the terminal transition. The conditional update is the
// atomic guard: exactly one caller wins it, and only the winner applies the
// side effect. The loser observes the conflict, reloads, and acknowledges
// the already-settled state.
func (e *Engine) settle(ctx context.Context, sess *session.PaymentSession, target string) (VerifyStatus, error) {
	var appliedAt *time.Time
	if target == session.StatusCompleted {
		now := time.Now().UTC()
		appliedAt = &now
	}

	if err := e.repo.TransitionTerminal(sess.ID, sess.Status, target, appliedAt); err != nil {
		if appErr, ok := internal.IsAppError(err); ok && appErr.Type == internal.ErrorTypeConflict {
			current, loadErr := e.repo.GetByID(sess.ID)
			if loadErr != nil {
				return "", internal.ErrSessionNotFound.WithCause(loadErr)
			}
			e.logger.Info("terminal transition lost the race",
				"session_id", sess.ID,
				"settled_status", current.Status)
			return verifyStatusFor(current.Status), nil
		}
		return "", err
	}

	e.logger.Info("session settled",
		"session_id", sess.ID,
		"from", sess.Status,
		"to", target)

	if target == session.StatusCompleted {
		if err := applyEffect(ctx, e.applier, sess.IntentBusinessType(), sess.IntentPayload()); err != nil {
			// The transition already won; the effect applier is expected
			// to be idempotent and retriable out of band. Surface loudly.
			e.logger.Error("business side effect failed after settlement",
				"error", err,
				"session_id", sess.ID,
				"business_type", sess.BusinessType)
			return "", internal.NewInternalError("side effect application failed", err)
		}
	}

	e.publishSettled(ctx, sess, target)
	return verifyStatusFor(target), nil
}

func (e *Engine) publishSettled(ctx context.Context, sess *session.PaymentSession, target string) {
	invoiceID := ""
	if sess.GatewayInvoiceID != nil {
		invoiceID = *sess.GatewayInvoiceID
	}

	var event events.Event
	switch target {
	case session.StatusCompleted:
		event = events.NewSessionCompletedEvent(sess.ID, invoiceID, sess.BusinessType, sess.Amount, sess.Currency)
	case session.StatusFailed:
		event = events.NewSessionFailedEvent(sess.ID, invoiceID, sess.BusinessType, sess.Amount, sess.Currency)
	case session.StatusCancelled:
		event = events.NewSessionCancelledEvent(sess.ID, invoiceID, sess.BusinessType, sess.Amount, sess.Currency)
	default:
		return
	}

	if err := e.eventBus.Publish(ctx, event); err != nil {
		e.logger.Error("failed to publish session event", "error", err, "session_id", sess.ID)
	}
}
