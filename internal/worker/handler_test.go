package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winfrey-Git/customer-portal/internal/domain"
)

type memoryStore struct {
	saved map[string]domain.CustomerRegistration
	err   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[string]domain.CustomerRegistration)}
}

func (s *memoryStore) Save(_ context.Context, reg *domain.CustomerRegistration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.saved[reg.EventID]; ok {
		return false, nil
	}
	s.saved[reg.EventID] = *reg
	return true, nil
}

func newHandler(store RegistrationStore) *RegistrationHandler {
	return NewRegistrationHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func eventPayload(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(domain.CustomerCreatedEvent{
		EventID:      "4f1c2a9e-8d8b-4f7a-9a51-6b0e0c7d2e11",
		CustomerNo:   "CUST00123",
		Name:         "Acme",
		Email:        "a@b.c",
		City:         "Leeds",
		CountryCode:  "GB",
		TemplateCode: "CUST-DOM",
		Timestamp:    time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return data
}

func TestRegistrationHandler_Handle(t *testing.T) {
	t.Run("stores the registration once", func(t *testing.T) {
		store := newMemoryStore()
		h := newHandler(store)
		payload := eventPayload(t)

		require.NoError(t, h.Handle(context.Background(), domain.EventTypeCustomerCreated, payload))
		require.NoError(t, h.Handle(context.Background(), domain.EventTypeCustomerCreated, payload))

		require.Len(t, store.saved, 1)
		reg := store.saved["4f1c2a9e-8d8b-4f7a-9a51-6b0e0c7d2e11"]
		assert.Equal(t, "CUST00123", reg.CustomerNo)
		assert.Equal(t, "CUST-DOM", reg.TemplateCode)
		assert.Equal(t, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), reg.CreatedAt)
	})

	t.Run("accepts messages without a type header", func(t *testing.T) {
		store := newMemoryStore()
		require.NoError(t, newHandler(store).Handle(context.Background(), "", eventPayload(t)))
		assert.Len(t, store.saved, 1)
	})

	t.Run("skips other event types", func(t *testing.T) {
		store := newMemoryStore()
		require.NoError(t, newHandler(store).Handle(context.Background(), "customer.deleted", eventPayload(t)))
		assert.Empty(t, store.saved)
	})

	t.Run("discards undecodable and incomplete events", func(t *testing.T) {
		store := newMemoryStore()
		h := newHandler(store)

		assert.NoError(t, h.Handle(context.Background(), domain.EventTypeCustomerCreated, []byte("{not json")))
		assert.NoError(t, h.Handle(context.Background(), domain.EventTypeCustomerCreated, []byte(`{"event_id":"e1"}`)))
		assert.Empty(t, store.saved)
	})

	t.Run("storage failure is returned for retry", func(t *testing.T) {
		store := newMemoryStore()
		store.err = errors.New("connection reset")

		err := newHandler(store).Handle(context.Background(), domain.EventTypeCustomerCreated, eventPayload(t))
		assert.ErrorIs(t, err, store.err)
	})
}
