package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	ActorCustomer = "customer"
	ActorAdmin    = "admin"
	ActorStripe   = "stripe"
	ActorSystem   = "system"
)

// ActorRef says who caused an event. UserID is set for signed-in actors.
type ActorRef struct {
	Kind   string     `json:"kind"`
	UserID *uuid.UUID `json:"userId,omitempty"`
}

// PayloadEnvelope is stored in outbox_events.payload and published verbatim
// as the Pub/Sub message body. Consumers dedupe on EventID.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(event DomainEvent, now time.Time) (PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("marshal %s payload: %w", event.EventType, err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	version := event.Version
	if version <= 0 {
		version = currentPayloadVersion
	}
	return PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}, nil
}
