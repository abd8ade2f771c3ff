package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chryzcode/ycsyh-site/internal/analytics/types"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	"github.com/chryzcode/ycsyh-site/pkg/outbox"
)

// Decode rebuilds an order event from a published outbox message. The body is
// the stored outbox.PayloadEnvelope; routing fields come from the attributes
// the publisher sets. event_id and occurred_at fall back to the attributes
// when the body lacks them.
func Decode(data []byte, attrs map[string]string) (types.Envelope, error) {
	var body outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &body); err != nil {
		return types.Envelope{}, fmt.Errorf("decode payload envelope: %w", err)
	}
	attr := func(name string) string { return strings.TrimSpace(attrs[name]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := attr("aggregate_id")
	if aggregateID == "" {
		return types.Envelope{}, errors.New("aggregate_id missing")
	}

	eventID := strings.TrimSpace(body.EventID)
	if eventID == "" {
		eventID = attr("event_id")
	}
	if eventID == "" {
		return types.Envelope{}, errors.New("event_id missing")
	}

	occurredAt := body.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, attr("created_at")); err == nil {
			occurredAt = parsed
		}
	}

	env := types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Version:       body.Version,
		OccurredAt:    occurredAt.UTC(),
		Payload:       body.Data,
	}
	if body.Actor != nil {
		env.Actor = body.Actor.Kind
	}
	return env, nil
}
