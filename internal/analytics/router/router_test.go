package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chryzcode/ycsyh-site/internal/analytics/types"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/payloads"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/registry"
)

type fakeWriter struct {
	inserted []types.SalesEventRow
	err      error
}

func (f *fakeWriter) InsertSale(_ context.Context, row types.SalesEventRow) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, row)
	return nil
}

func newTestRouter(t *testing.T, writer Writer) *Router {
	t.Helper()
	r, err := NewRouter(registry.NewOrderDecoderRegistry(), writer, logger.New(logger.Options{ServiceName: "router-test"}))
	require.NoError(t, err)
	return r
}

func envelopeFor(t *testing.T, eventType enums.OutboxEventType, payload any) types.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return types.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		Version:       1,
		Actor:         "stripe",
		OccurredAt:    time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC),
		Payload:       data,
	}
}

func TestRouterFulfilledBooksRevenue(t *testing.T) {
	writer := &fakeWriter{}
	r := newTestRouter(t, writer)
	event := payloads.OrderFulfilledEvent{
		OrderID:         uuid.New(),
		BeatID:          uuid.New(),
		BeatTitle:       "Night Shift",
		LicenseType:     enums.LicenseTypeExclusive,
		AmountCents:     100000,
		Currency:        "gbp",
		PaymentIntentID: "pi_123",
		Trigger:         enums.FulfillmentTriggerWebhook,
		BeatSold:        true,
	}
	env := envelopeFor(t, enums.EventOrderFulfilled, event)

	require.NoError(t, r.Handle(context.Background(), env))
	require.Len(t, writer.inserted, 1)
	row := writer.inserted[0]
	assert.Equal(t, env.EventID, row.EventID)
	assert.Equal(t, event.OrderID.String(), row.OrderID)
	assert.Equal(t, "completed", row.Status)
	assert.Equal(t, int64(100000), row.RevenueCents)
	assert.Equal(t, "Exclusive", row.LicenseType)
	require.NotNil(t, row.BeatSold)
	assert.True(t, *row.BeatSold)
	require.NotNil(t, row.Trigger)
	assert.Equal(t, "webhook", *row.Trigger)
	require.NotNil(t, row.Actor)
	assert.Equal(t, "stripe", *row.Actor)
	assert.True(t, row.Payload.Valid)
}

func TestRouterCreatedAndFailedCarryNoRevenue(t *testing.T) {
	writer := &fakeWriter{}
	r := newTestRouter(t, writer)
	orderID := uuid.New()

	created := envelopeFor(t, enums.EventOrderCreated, payloads.OrderCreatedEvent{
		OrderID: orderID, BeatID: uuid.New(), LicenseType: enums.LicenseTypeMP3, AmountCents: 4500, Currency: "gbp",
	})
	failed := envelopeFor(t, enums.EventOrderFailed, payloads.OrderFailedEvent{
		OrderID: orderID, BeatID: uuid.New(), LicenseType: enums.LicenseTypeMP3, AmountCents: 4500, Currency: "gbp",
		Reason: payloads.FailureCheckoutExpired,
	})

	require.NoError(t, r.Handle(context.Background(), created))
	require.NoError(t, r.Handle(context.Background(), failed))
	require.Len(t, writer.inserted, 2)
	assert.Equal(t, "pending", writer.inserted[0].Status)
	assert.Zero(t, writer.inserted[0].RevenueCents)
	assert.Equal(t, int64(4500), writer.inserted[0].AmountCents)
	assert.Equal(t, "failed", writer.inserted[1].Status)
	require.NotNil(t, writer.inserted[1].FailureReason)
	assert.Equal(t, "checkout_expired", *writer.inserted[1].FailureReason)
}

func TestRouterUnsupportedEvent(t *testing.T) {
	r := newTestRouter(t, &fakeWriter{})
	env := types.Envelope{EventType: enums.OutboxEventType("order_refunded"), Payload: []byte(`{}`)}
	err := r.Handle(context.Background(), env)
	assert.True(t, errors.Is(err, ErrUnsupportedEventType))
}

func TestRouterPropagatesWriterError(t *testing.T) {
	r := newTestRouter(t, &fakeWriter{err: errors.New("bq down")})
	env := envelopeFor(t, enums.EventOrderCreated, payloads.OrderCreatedEvent{OrderID: uuid.New()})
	assert.Error(t, r.Handle(context.Background(), env))
}

func TestRouterRejectsEmptyPayload(t *testing.T) {
	r := newTestRouter(t, &fakeWriter{})
	err := r.Handle(context.Background(), types.Envelope{EventType: enums.EventOrderCreated})
	assert.Error(t, err)
}
