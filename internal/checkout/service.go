package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/internal/orders"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/metrics"
	"github.com/chryzcode/ycsyh-site/pkg/outbox"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/payloads"
	"github.com/chryzcode/ycsyh-site/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type beatLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Beat, error)
}

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, in stripe.CheckoutSessionInput) (*stripe.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, id string) error
}

type orderFailer interface {
	Fail(ctx context.Context, input orders.FailInput) (bool, error)
}

// Service opens a pending order and the hosted payment page for it.
type Service interface {
	Create(ctx context.Context, req Request) (*Response, error)
}

type ServiceParams struct {
	Tx       txRunner
	Beats    beatLoader
	Orders   orders.Repository
	Failer   orderFailer
	Sessions sessionCreator
	Outbox   outbox.Emitter
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
	BaseURL  string
	Currency string
}

type service struct {
	tx       txRunner
	beats    beatLoader
	orders   orders.Repository
	failer   orderFailer
	sessions sessionCreator
	outbox   outbox.Emitter
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	baseURL  string
	currency string
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Beats == nil:
		return nil, fmt.Errorf("beat loader required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Failer == nil:
		return nil, fmt.Errorf("order failer required")
	case params.Sessions == nil:
		return nil, fmt.Errorf("checkout session client required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	base, err := url.Parse(strings.TrimSpace(params.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("absolute base url required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "gbp"
	}
	return &service{
		tx:       params.Tx,
		beats:    params.Beats,
		orders:   params.Orders,
		failer:   params.Failer,
		sessions: params.Sessions,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		baseURL:  strings.TrimRight(base.String(), "/"),
		currency: currency,
	}, nil
}

func (s *service) Create(ctx context.Context, req Request) (*Response, error) {
	licenseType, err := enums.ParseLicenseType(req.LicenseType)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Valid license type is required")
	}
	beatID, err := uuid.Parse(strings.TrimSpace(req.BeatID))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Beat not found")
	}
	beat, err := s.beats.FindByID(ctx, beatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Beat not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load beat")
	}
	if beat.IsSold && !licenseType.IsExclusive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "This beat is already sold")
	}
	price, err := ResolvePrice(beat, licenseType)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:            uuid.New(),
		BeatID:        beat.ID,
		CustomerEmail: orders.NormalizeEmail(req.CustomerEmail),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		LicenseType:   licenseType,
		AmountCents:   price,
		Status:        enums.OrderStatusPending,
	}
	if err := s.openOrder(ctx, order, beat); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}
	ctx = s.withField(ctx, "order_id", order.ID.String())

	session, err := s.sessions.CreateCheckoutSession(ctx, s.sessionInput(order, beat))
	if err != nil {
		s.abandon(ctx, order.ID, payloads.FailureSessionCreate)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to create checkout session")
	}

	if err := s.orders.AttachSession(ctx, order.ID, session.ID); err != nil {
		if expireErr := s.sessions.ExpireCheckoutSession(ctx, session.ID); expireErr != nil && s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "session_id", session.ID), "checkout.expire_session_failed", expireErr)
		}
		s.abandon(ctx, order.ID, payloads.FailureSessionAttach)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "Failed to create checkout session")
	}

	s.metrics.IncCheckout(string(licenseType))
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"session_id":   session.ID,
			"license_type": string(licenseType),
			"amount_cents": price,
		}), "checkout.session_created")
	}
	return &Response{SessionID: session.ID, URL: session.URL, OrderID: order.ID}, nil
}

func (s *service) openOrder(ctx context.Context, order *models.Order, beat *models.Beat) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Kind: outbox.ActorCustomer},
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				BeatID:      beat.ID,
				BeatTitle:   beat.Title,
				LicenseType: order.LicenseType,
				AmountCents: order.AmountCents,
				Currency:    s.currency,
				CreatedAt:   time.Now().UTC(),
			},
		})
	})
}

func (s *service) sessionInput(order *models.Order, beat *models.Beat) stripe.CheckoutSessionInput {
	return stripe.CheckoutSessionInput{
		Currency:          s.currency,
		ProductName:       fmt.Sprintf("%s - %s", beat.Title, order.LicenseType),
		Description:       fmt.Sprintf("%s - %d BPM - Key: %s", beat.Category, beat.BPM, beat.MusicalKey),
		UnitAmountCents:   order.AmountCents,
		CustomerEmail:     order.CustomerEmail,
		SuccessURL:        s.baseURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         s.baseURL + "/beats/" + beat.ID.String(),
		ClientReferenceID: order.ID.String(),
		Metadata: map[string]string{
			"beatId":        beat.ID.String(),
			"customerName":  order.CustomerName,
			"customerEmail": order.CustomerEmail,
			"licenseType":   string(order.LicenseType),
			"orderId":       order.ID.String(),
		},
	}
}

// abandon marks the order failed. Errors are only logged.
func (s *service) abandon(ctx context.Context, orderID uuid.UUID, reason string) {
	_, err := s.failer.Fail(ctx, orders.FailInput{
		OrderID: orderID,
		Reason:  reason,
		Actor:   &outbox.ActorRef{Kind: outbox.ActorSystem},
	})
	if err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "reason", reason), "checkout.mark_failed_failed", err)
	}
}

func (s *service) withField(ctx context.Context, key string, value any) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithField(ctx, key, value)
}
