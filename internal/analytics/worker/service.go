// Package worker consumes order events from the orders subscription and hands
// each one to the sales handler exactly once per consumer.
package worker

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/internal/analytics/router"
	"github.com/chryzcode/ycsyh-site/internal/analytics/types"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

const salesConsumerName = "sales-analytics"

type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type dedupe interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// messageSource is satisfied by *pubsub.Subscriber.
type messageSource interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type verdict int

const (
	ack verdict = iota
	nack
)

type Service struct {
	source  messageSource
	handler Handler
	dedupe  dedupe
	logg    *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, handler Handler, manager dedupe, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("orders subscription required")
	}
	return newService(subscription, handler, manager, logg)
}

func newService(source messageSource, handler Handler, manager dedupe, logg *logger.Logger) (*Service, error) {
	switch {
	case handler == nil:
		return nil, errors.New("sales handler required")
	case manager == nil:
		return nil, errors.New("idempotency manager required")
	case logg == nil:
		return nil, errors.New("logger required")
	}
	return &Service{source: source, handler: handler, dedupe: manager, logg: logg}, nil
}

// Run blocks receiving messages until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.source.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process decides the fate of one message. Malformed and unsupported events
// are acked so they do not redeliver forever; infrastructure failures nack.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) verdict {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	env, err := Decode(msg.Data, msg.Attributes)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "sales.message.malformed")
		return ack
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   env.EventType,
		"aggregate_id": env.AggregateID,
	})

	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		s.logg.Warn(ctx, "sales.message.bad_event_id")
		return ack
	}

	seen, err := s.dedupe.CheckAndMarkProcessed(ctx, salesConsumerName, eventID)
	if err != nil {
		s.logg.Error(ctx, "sales.dedupe.failed", err)
		return nack
	}
	if seen {
		s.logg.Debug(ctx, "sales.event.duplicate")
		return ack
	}

	err = s.handler.Handle(ctx, env)
	switch {
	case err == nil:
		s.logg.Info(ctx, "sales.event.recorded")
		return ack
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Warn(ctx, "sales.event.unsupported")
		return ack
	}

	s.logg.Error(ctx, "sales.event.failed", err)
	// Unmark so the redelivery is not mistaken for a duplicate.
	if err := s.dedupe.Delete(ctx, salesConsumerName, eventID); err != nil {
		s.logg.Error(ctx, "sales.dedupe.unmark_failed", err)
	}
	return nack
}
