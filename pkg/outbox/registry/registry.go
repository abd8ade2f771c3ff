// Package registry knows which outbox events exist, where they are published
// and how their payloads decode. The publisher and the sales consumer both
// build from the same catalog so they cannot drift apart.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	"github.com/chryzcode/ycsyh-site/pkg/outbox"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/payloads"
)

// kind is one event type at one payload version.
type kind struct {
	eventType  enums.OutboxEventType
	aggregate  enums.OutboxAggregateType
	version    int
	newPayload func() any
}

var catalog = []kind{
	{enums.EventOrderCreated, enums.AggregateOrder, 1, func() any { return new(payloads.OrderCreatedEvent) }},
	{enums.EventOrderFulfilled, enums.AggregateOrder, 1, func() any { return new(payloads.OrderFulfilledEvent) }},
	{enums.EventOrderFailed, enums.AggregateOrder, 1, func() any { return new(payloads.OrderFailedEvent) }},
}

type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	Version        int
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row that passed validation, ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish. The publisher moves
// it to the DLQ instead of counting an attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable outbox event"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// NewEventRegistry routes every order event to the orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(catalog))}
	for _, k := range catalog {
		reg.entries[k.eventType] = EventDescriptor{
			EventType:      k.eventType,
			AggregateType:  k.aggregate,
			Topic:          cfg.OrdersTopic,
			Version:        k.version,
			PayloadFactory: k.newPayload,
		}
	}
	return reg, nil
}

// Topics returns each destination topic once, sorted.
func (r *EventRegistry) Topics() []string {
	set := make(map[string]struct{}, len(r.entries))
	for _, d := range r.entries {
		set[d.Topic] = struct{}{}
	}
	topics := make([]string, 0, len(set))
	for t := range set {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is a NonRetryableError: a bad row stays bad.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, permanent("%s belongs to %s aggregates, row has %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("%s row has no aggregate id", event.EventType)
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	if env.Version != 0 && env.Version != desc.Version {
		return nil, permanent("%s payload version %d is not v%d", event.EventType, env.Version, desc.Version)
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("%s has an empty payload", event.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
