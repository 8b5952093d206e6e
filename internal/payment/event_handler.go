package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fitmarket/payment-orchestration/internal/core/events"
)

// EventHandler subscribes to session settlement events and writes the audit
// trail entries operations dashboards consume.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandleSessionSettled(ctx context.Context, event events.Event) error {
	settled, ok := event.(*events.SessionSettledEvent)
	if !ok {
		h.logger.Error("invalid event type for session settled handler", "event_type", event.EventType())
		return fmt.Errorf("expected SessionSettledEvent, got %T", event)
	}

	h.logger.Info("session settlement recorded",
		"session_id", settled.SessionID,
		"gateway_invoice_id", settled.GatewayInvoiceID,
		"business_type", settled.BusinessType,
		"amount", settled.Amount,
		"currency", settled.Currency,
		"status", settled.Status,
		"event_id", settled.EventID())

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypeSessionCompleted, h.HandleSessionSettled)
	eventBus.Subscribe(events.EventTypeSessionFailed, h.HandleSessionSettled)
	eventBus.Subscribe(events.EventTypeSessionCancelled, h.HandleSessionSettled)

	h.logger.Info("payment event handlers registered",
		"handlers", []string{
			events.EventTypeSessionCompleted,
			events.EventTypeSessionFailed,
			events.EventTypeSessionCancelled,
		})
}
