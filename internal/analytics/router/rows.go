package router

import (
	"fmt"
	"strings"

	"github.com/chryzcode/ycsyh-site/internal/analytics/types"
	"github.com/chryzcode/ycsyh-site/internal/analytics/writer"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/payloads"
)

// BuildSalesRow maps a decoded order event onto a sales_events row. Revenue
// is only booked by order_fulfilled; created and failed rows carry the
// attempted amount with zero revenue.
func BuildSalesRow(envelope types.Envelope, payload any) (types.SalesEventRow, error) {
	row := types.SalesEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt,
		Actor:      stringPtr(envelope.Actor),
	}

	switch event := payload.(type) {
	case *payloads.OrderCreatedEvent:
		row.OrderID = event.OrderID.String()
		row.BeatID = event.BeatID.String()
		row.BeatTitle = stringPtr(event.BeatTitle)
		row.LicenseType = string(event.LicenseType)
		row.Status = string(enums.OrderStatusPending)
		row.AmountCents = event.AmountCents
		row.Currency = event.Currency
	case *payloads.OrderFulfilledEvent:
		row.OrderID = event.OrderID.String()
		row.BeatID = event.BeatID.String()
		row.BeatTitle = stringPtr(event.BeatTitle)
		row.LicenseType = string(event.LicenseType)
		row.Status = string(enums.OrderStatusCompleted)
		row.AmountCents = event.AmountCents
		row.RevenueCents = event.AmountCents
		row.Currency = event.Currency
		row.Trigger = stringPtr(string(event.Trigger))
		row.PaymentIntentID = stringPtr(event.PaymentIntentID)
		sold := event.BeatSold
		row.BeatSold = &sold
	case *payloads.OrderFailedEvent:
		row.OrderID = event.OrderID.String()
		row.BeatID = event.BeatID.String()
		row.LicenseType = string(event.LicenseType)
		row.Status = string(enums.OrderStatusFailed)
		row.AmountCents = event.AmountCents
		row.Currency = event.Currency
		row.FailureReason = stringPtr(event.Reason)
	default:
		return types.SalesEventRow{}, fmt.Errorf("%w: payload %T", ErrUnsupportedEventType, payload)
	}

	payloadJSON, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return types.SalesEventRow{}, fmt.Errorf("encode payload json: %w", err)
	}
	row.Payload = payloadJSON
	return row, nil
}

func stringPtr(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := value
	return &v
}
