package stripewebhook

import (
	"context"

	"github.com/chryzcode/ycsyh-site/internal/fulfillment"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/payloads"
	"github.com/chryzcode/ycsyh-site/pkg/stripe"
)

type fulfiller interface {
	Fulfill(ctx context.Context, input fulfillment.FulfillInput) (*fulfillment.Result, error)
}

type sessionFailer interface {
	FailBySession(ctx context.Context, sessionID, reason string) (bool, error)
}

type ServiceParams struct {
	Fulfillment fulfiller
	Orders      sessionFailer
	Logger      *logger.Logger
}

// Service routes verified checkout events to fulfillment.
type Service struct {
	fulfillment fulfiller
	orders      sessionFailer
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Fulfillment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	return &Service{
		fulfillment: params.Fulfillment,
		orders:      params.Orders,
		logg:        params.Logger,
	}, nil
}

// HandleEvent applies a verified event. Unhandled types are ignored.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case stripe.EventCheckoutSessionCompleted, stripe.EventCheckoutSessionAsyncPaymentSucceeded:
		session, err := stripe.SessionFromEvent(event)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		_, err = s.fulfillment.Fulfill(ctx, fulfillment.FulfillInput{
			SessionID: session.ID,
			Trigger:   enums.FulfillmentTriggerWebhook,
		})
		return err
	case stripe.EventCheckoutSessionExpired:
		session, err := stripe.SessionFromEvent(event)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		_, err = s.orders.FailBySession(ctx, session.ID, payloads.FailureCheckoutExpired)
		return err
	default:
		if s.logg != nil {
			s.logg.Debug(s.logg.WithField(ctx, "event_type", event.Type), "stripe.webhook.ignored")
		}
		return nil
	}
}
