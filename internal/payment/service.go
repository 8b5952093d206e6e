package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fitmarket/payment-orchestration/internal"
	"github.com/fitmarket/payment-orchestration/internal/clientcontext"
	gatewaytypes "github.com/fitmarket/payment-orchestration/internal/core/datamodel/gateway"
	"github.com/fitmarket/payment-orchestration/internal/core/datamodel/session"
	"github.com/fitmarket/payment-orchestration/internal/redirect"
)

// ServiceAPI is the inbound surface consumed by the HTTP handlers.
type ServiceAPI interface {
	CreateSession(ctx context.Context, req *CreateSessionRequest, meta clientcontext.RequestMeta) (*CreateSessionResponse, error)
	VerifySession(ctx context.Context, sessionID string) (*VerifySessionResponse, error)
	GetSession(sessionID string) (*SessionView, error)
}

type CheckoutService struct {
	repo              RepositoryAPI
	gateway           GatewayAPI
	resolver          *clientcontext.Resolver
	engine            *Engine
	maxVerifyAttempts int
	logger            *slog.Logger
}

func NewCheckoutService(repo RepositoryAPI, gw GatewayAPI, resolver *clientcontext.Resolver, engine *Engine, maxVerifyAttempts int, logger *slog.Logger) *CheckoutService {
	if maxVerifyAttempts <= 0 {
		maxVerifyAttempts = 10
	}
	return &CheckoutService{
		repo:              repo,
		gateway:           gw,
		resolver:          resolver,
		engine:            engine,
		maxVerifyAttempts: maxVerifyAttempts,
		logger:            logger,
	}
}

// CreateSession turns one business request into a gateway invoice. The
// session row is created first, in created state, so that a crash or lost
// gateway response still leaves a durable record keyed by the idempotency
// key the gateway saw.
func (s *CheckoutService) CreateSession(ctx context.Context, req *CreateSessionRequest, meta clientcontext.RequestMeta) (*CreateSessionResponse, error) {
	meta.RuntimeHint = req.RuntimeHint

	clientCtx, err := s.resolver.Resolve(meta)
	if err != nil {
		return nil, err
	}

	paymentIntent, err := BuildIntent(req, clientCtx)
	if err != nil {
		return nil, err
	}

	intentSnapshot, err := json.Marshal(paymentIntent)
	if err != nil {
		return nil, internal.NewInternalError("failed to snapshot intent", err)
	}

	now := time.Now().UTC()
	sess := &session.PaymentSession{
		ID:               uuid.New().String(),
		Status:           session.StatusCreated,
		BusinessType:     string(paymentIntent.BusinessType),
		Amount:           paymentIntent.Amount,
		Currency:         paymentIntent.Currency,
		Intent:           intentSnapshot,
		Version:          1,
		CreatedAt:        now,
		LastTransitionAt: now,
	}

	if err := s.repo.Create(sess); err != nil {
		s.logger.Error("failed to create payment session", "error", err)
		return nil, internal.NewInternalError("failed to create payment session", err)
	}

	s.logger.Info("payment session created",
		"session_id", sess.ID,
		"business_type", sess.BusinessType,
		"amount", sess.Amount,
		"currency", sess.Currency,
		"client_context", string(clientCtx.Kind))

	invoice, err := s.gateway.CreateInvoice(ctx, &gatewaytypes.CreateInvoiceRequest{
		IdempotencyKey: sess.ID,
		Amount:         paymentIntent.Amount,
		Currency:       paymentIntent.Currency,
		CustomerName:   paymentIntent.Customer.Name,
		CustomerEmail:  paymentIntent.Customer.Email,
		SuccessURL:     paymentIntent.CallbackURLs.Success,
		CancelURL:      paymentIntent.CallbackURLs.Cancel,
		RedirectURL:    paymentIntent.CallbackURLs.Redirect,
		Metadata: map[string]string{
			"session_id":    sess.ID,
			"business_type": sess.BusinessType,
		},
	})
	if err != nil {
		// The session stays in created state: the invoice may or may not
		// exist on the gateway side, and the caller retries with backoff.
		s.logger.Error("gateway invoice creation failed",
			"error", err,
			"session_id", sess.ID)
		return nil, err
	}

	if err := s.repo.ClaimInvoice(sess.ID, invoice.ID); err != nil {
		s.logger.Error("failed to claim gateway invoice",
			"error", err,
			"session_id", sess.ID,
			"gateway_invoice_id", invoice.ID)
		return nil, err
	}

	s.logger.Info("gateway invoice claimed",
		"session_id", sess.ID,
		"gateway_invoice_id", invoice.ID)

	return &CreateSessionResponse{
		SessionID:   sess.ID,
		RedirectURL: invoice.RedirectURL,
		RedirectAction: redirect.Decide(clientCtx, redirect.Options{
			PreferSameTab: req.PreferSameTab,
			PopupBlocked:  req.PopupBlocked,
		}),
	}, nil
}

// VerifySession is the client-triggered reconciliation path after redirect
// back. A still-pending gateway answer is a valid outcome; once the poll
// budget is exhausted the response is flagged unconfirmed so the application
// layer stops polling while the webhook remains authoritative.
func (s *CheckoutService) VerifySession(ctx context.Context, sessionID string) (*VerifySessionResponse, error) {
	status, sess, err := s.engine.ReconcileByID(ctx, sessionID)
	if err != nil {
		appErr, ok := internal.IsAppError(err)
		if ok && appErr.Type == internal.ErrorTypeGatewayDown {
			// Gateway trouble during a poll is not an error for the
			// caller; the session is untouched and the next poll retries.
			s.logger.Warn("verification attempt inconclusive",
				"error", err,
				"session_id", sessionID)
			status = VerifyPending
		} else {
			return nil, err
		}
	}

	resp := &VerifySessionResponse{
		SessionID: sessionID,
		Status:    status,
	}
	// sess was loaded before Reconcile incremented the counter, so the
	// attempt that just ran is accounted for here.
	if status == VerifyPending && sess != nil && sess.ReconciliationAttempts+1 >= s.maxVerifyAttempts {
		resp.Unconfirmed = true
	}
	return resp, nil
}

func (s *CheckoutService) GetSession(sessionID string) (*SessionView, error) {
	sess, err := s.repo.GetByID(sessionID)
	if err != nil {
		return nil, internal.ErrSessionNotFound.WithCause(err)
	}
	return &SessionView{
		ID:                     sess.ID,
		Status:                 sess.Status,
		BusinessType:           sess.BusinessType,
		Amount:                 sess.Amount,
		Currency:               sess.Currency,
		GatewayInvoiceID:       sess.GatewayInvoiceID,
		ReconciliationAttempts: sess.ReconciliationAttempts,
		Intent:                 sess.Intent,
		CreatedAt:              sess.CreatedAt.Format(time.RFC3339),
		LastTransitionAt:       sess.LastTransitionAt.Format(time.RFC3339),
	}, nil
}
