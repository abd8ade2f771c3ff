package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// SalesEventRow mirrors the sales_events BigQuery schema. One row is written
// per order event; Status carries the order state the event moved it to.
type SalesEventRow struct {
	EventID         string             `bigquery:"event_id"`
	EventType       string             `bigquery:"event_type"`
	OccurredAt      time.Time          `bigquery:"occurred_at"`
	OrderID         string             `bigquery:"order_id"`
	BeatID          string             `bigquery:"beat_id"`
	BeatTitle       *string            `bigquery:"beat_title"`
	LicenseType     string             `bigquery:"license_type"`
	Status          string             `bigquery:"status"`
	AmountCents     int64              `bigquery:"amount_cents"`
	RevenueCents    int64              `bigquery:"revenue_cents"`
	Currency        string             `bigquery:"currency"`
	Trigger         *string            `bigquery:"trigger"`
	PaymentIntentID *string            `bigquery:"payment_intent_id"`
	BeatSold        *bool              `bigquery:"beat_sold"`
	FailureReason   *string            `bigquery:"failure_reason"`
	Actor           *string            `bigquery:"actor"`
	Payload         cbigquery.NullJSON `bigquery:"payload"`
}

// Save implements bigquery.ValueSaver so the event id doubles as the
// streaming insert id and Pub/Sub redeliveries are deduplicated server side.
func (r *SalesEventRow) Save() (map[string]cbigquery.Value, string, error) {
	return map[string]cbigquery.Value{
		"event_id":          r.EventID,
		"event_type":        r.EventType,
		"occurred_at":       r.OccurredAt,
		"order_id":          r.OrderID,
		"beat_id":           r.BeatID,
		"beat_title":        nullable(r.BeatTitle),
		"license_type":      r.LicenseType,
		"status":            r.Status,
		"amount_cents":      r.AmountCents,
		"revenue_cents":     r.RevenueCents,
		"currency":          r.Currency,
		"trigger":           nullable(r.Trigger),
		"payment_intent_id": nullable(r.PaymentIntentID),
		"beat_sold":         nullableBool(r.BeatSold),
		"failure_reason":    nullable(r.FailureReason),
		"actor":             nullable(r.Actor),
		"payload":           jsonValue(r.Payload),
	}, r.EventID, nil
}

func nullable(v *string) cbigquery.Value {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBool(v *bool) cbigquery.Value {
	if v == nil {
		return nil
	}
	return *v
}

func jsonValue(v cbigquery.NullJSON) cbigquery.Value {
	if !v.Valid {
		return nil
	}
	return v.JSONVal
}
