package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/winfrey-Git/customer-portal/internal/domain"
)

type RegistrationStore interface {
	Save(ctx context.Context, reg *domain.CustomerRegistration) (bool, error)
}

// RegistrationHandler records customer.created events in the registrations
// read model.
type RegistrationHandler struct {
	store  RegistrationStore
	logger *slog.Logger
}

func NewRegistrationHandler(store RegistrationStore, logger *slog.Logger) *RegistrationHandler {
	return &RegistrationHandler{
		store:  store,
		logger: logger,
	}
}

// Handle discards unrelated or undecodable events. Storage failures are
// returned, leaving the message uncommitted.
func (h *RegistrationHandler) Handle(ctx context.Context, eventType string, payload []byte) error {
	if eventType != "" && eventType != domain.EventTypeCustomerCreated {
		h.logger.DebugContext(ctx, "skipping unrelated event", "event_type", eventType)
		return nil
	}

	var event domain.CustomerCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(ctx, "discarding undecodable customer created event", "error", err)
		return nil
	}
	if event.EventID == "" || event.CustomerNo == "" {
		h.logger.ErrorContext(ctx, "discarding incomplete customer created event",
			"event_id", event.EventID,
			"customer_no", event.CustomerNo,
		)
		return nil
	}

	h.logger.InfoContext(ctx, "processing customer created event", "event_id", event.EventID, "customer_no", event.CustomerNo)

	reg := event.Registration()
	inserted, err := h.store.Save(ctx, &reg)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to save registration", "error", err, "event_id", event.EventID)
		return fmt.Errorf("save registration: %w", err)
	}

	if !inserted {
		h.logger.InfoContext(ctx, "registration already recorded", "event_id", event.EventID)
		return nil
	}

	h.logger.InfoContext(ctx, "registration recorded", "event_id", event.EventID, "customer_no", event.CustomerNo)
	return nil
}
