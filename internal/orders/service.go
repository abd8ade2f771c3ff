package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/metrics"
	"github.com/chryzcode/ycsyh-site/pkg/outbox"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/payloads"
)

const (
	orderNotFoundMessage = "Order not found"
	defaultExpiryBatch   = 200
)

// Service exposes read access to orders and the pending -> failed transition
// shared by checkout, the Stripe webhook and the expiry job.
type Service interface {
	SummaryBySession(ctx context.Context, sessionID string) (*OrderSummary, error)
	Fail(ctx context.Context, input FailInput) (bool, error)
	FailBySession(ctx context.Context, sessionID, reason string) (bool, error)
	ExpireStale(ctx context.Context, cutoff time.Time) (int, error)
}

// FailInput names the pending order to abandon and why.
type FailInput struct {
	OrderID uuid.UUID
	Reason  string
	Actor   *outbox.ActorRef
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type beatFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Beat, error)
}

type ServiceParams struct {
	Repo     Repository
	Beats    beatFinder
	Tx       txRunner
	Outbox   outbox.Emitter
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
	Currency string
	Clock    func() time.Time
}

type service struct {
	repo     Repository
	beats    beatFinder
	tx       txRunner
	outbox   outbox.Emitter
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	currency string
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Beats == nil:
		return nil, fmt.Errorf("beat lookup required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "gbp"
	}
	return &service{
		repo:     params.Repo,
		beats:    params.Beats,
		tx:       params.Tx,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		currency: currency,
		now:      now,
	}, nil
}

func (s *service) SummaryBySession(ctx context.Context, sessionID string) (*OrderSummary, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Session ID is required")
	}
	order, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.FromStore(err, orderNotFoundMessage, "load order")
	}
	title := ""
	beat, err := s.beats.FindByID(ctx, order.BeatID)
	switch {
	case err == nil:
		title = beat.Title
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load beat")
	}
	return SummaryFromModel(order, title), nil
}

// Fail abandons a pending order. failed is false when the order had already
// left pending, which is not an error.
func (s *service) Fail(ctx context.Context, input FailInput) (bool, error) {
	if input.OrderID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	var failed bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		failed, err = repo.MarkFailed(ctx, order.ID)
		if err != nil || !failed {
			return err
		}
		return s.emitFailed(ctx, tx, order, input)
	})
	if err != nil {
		return false, pkgerrors.FromStore(err, orderNotFoundMessage, "mark order failed")
	}
	if failed {
		s.metrics.IncFailed(input.Reason)
		if s.logg != nil {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"order_id": input.OrderID.String(),
				"reason":   input.Reason,
			}), "order.failed")
		}
	}
	return failed, nil
}

func (s *service) FailBySession(ctx context.Context, sessionID, reason string) (bool, error) {
	order, err := s.repo.FindBySessionID(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return s.Fail(ctx, FailInput{
		OrderID: order.ID,
		Reason:  reason,
		Actor:   &outbox.ActorRef{Kind: outbox.ActorStripe},
	})
}

// ExpireStale fails every order still pending at cutoff and returns how many moved.
func (s *service) ExpireStale(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.repo.ListPendingBefore(ctx, cutoff, defaultExpiryBatch)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stale orders")
	}
	expired := 0
	for _, order := range stale {
		failed, err := s.Fail(ctx, FailInput{
			OrderID: order.ID,
			Reason:  payloads.FailurePendingTimeout,
			Actor:   &outbox.ActorRef{Kind: outbox.ActorSystem},
		})
		if err != nil {
			return expired, err
		}
		if failed {
			expired++
		}
	}
	return expired, nil
}

func (s *service) emitFailed(ctx context.Context, tx *gorm.DB, order *models.Order, input FailInput) error {
	failedAt := s.now().UTC()
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderFailed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         input.Actor,
		OccurredAt:    failedAt,
		Data: payloads.OrderFailedEvent{
			OrderID:     order.ID,
			BeatID:      order.BeatID,
			LicenseType: order.LicenseType,
			AmountCents: order.AmountCents,
			Currency:    s.currency,
			Reason:      input.Reason,
			FailedAt:    failedAt,
		},
	})
}
