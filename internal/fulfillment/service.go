package fulfillment

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/internal/licenses"
	"github.com/chryzcode/ycsyh-site/internal/orders"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/email"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/metrics"
	"github.com/chryzcode/ycsyh-site/pkg/outbox"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/payloads"
	"github.com/chryzcode/ycsyh-site/pkg/storage/s3"
	"github.com/chryzcode/ycsyh-site/pkg/stripe"
)

const (
	orderNotFoundMessage   = "Order not found"
	beatNotFoundMessage    = "Beat not found"
	paidFailedOrderMessage = "Order expired before payment completed. Please contact support."
	contractKeyPrefix      = "contracts/"
)

// Service turns a paid checkout session into a delivered order.
type Service interface {
	Fulfill(ctx context.Context, input FulfillInput) (*Result, error)
	Resend(ctx context.Context, orderID uuid.UUID) (*ResendResult, error)
}

// FulfillInput identifies the session to fulfill and who asked.
type FulfillInput struct {
	SessionID string
	Trigger   enums.FulfillmentTrigger
}

// Result reports what Fulfill did. Skipped is set when a webhook arrives for
// an unpaid session; AlreadyProcessed when another caller delivered first.
type Result struct {
	Order            *orders.OrderSummary
	AlreadyProcessed bool
	Skipped          bool
}

type ResendResult struct {
	OrderID uuid.UUID
	Email   string
}

type sessionRetriever interface {
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
}

type beatRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Beat, error)
	MarkSoldTx(tx *gorm.DB, id uuid.UUID) error
}

type contractGenerator interface {
	Generate(in licenses.ContractInput) ([]byte, error)
}

type contractStore interface {
	Put(ctx context.Context, in s3.PutInput) (*s3.Object, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Sessions  sessionRetriever
	Orders    orders.Repository
	Beats     beatRepository
	Tx        txRunner
	Outbox    outbox.Emitter
	Contracts contractGenerator
	// Archive is optional; when nil generated contracts are only emailed.
	Archive  contractStore
	Mailer   email.Sender
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
	Currency string
	Clock    func() time.Time
}

type service struct {
	sessions  sessionRetriever
	orders    orders.Repository
	beats     beatRepository
	tx        txRunner
	outbox    outbox.Emitter
	contracts contractGenerator
	archive   contractStore
	mailer    email.Sender
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	currency  string
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Sessions == nil:
		return nil, fmt.Errorf("checkout session client required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Beats == nil:
		return nil, fmt.Errorf("beats repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Contracts == nil:
		return nil, fmt.Errorf("contract generator required")
	case params.Mailer == nil:
		return nil, fmt.Errorf("mailer required")
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
		sessions:  params.Sessions,
		orders:    params.Orders,
		beats:     params.Beats,
		tx:        params.Tx,
		outbox:    params.Outbox,
		contracts: params.Contracts,
		archive:   params.Archive,
		mailer:    params.Mailer,
		metrics:   params.Metrics,
		logg:      params.Logger,
		currency:  currency,
		now:       now,
	}, nil
}

func (s *service) Fulfill(ctx context.Context, input FulfillInput) (*Result, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Session ID is required")
	}
	if input.Trigger != enums.FulfillmentTriggerWebhook && input.Trigger != enums.FulfillmentTriggerPoll {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported fulfillment trigger %q", input.Trigger)
	}
	trigger := string(input.Trigger)
	ctx = s.withFields(ctx, map[string]any{"session_id": sessionID, "trigger": trigger})

	session, err := s.sessions.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to verify payment")
	}
	if !session.Paid() {
		s.metrics.IncFulfillment(trigger, metrics.OutcomeUnpaid)
		if input.Trigger == enums.FulfillmentTriggerWebhook {
			s.info(ctx, "fulfillment.skipped_unpaid")
			return &Result{Skipped: true}, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Payment not completed")
	}

	order, err := s.orders.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.FromStore(err, orderNotFoundMessage, "load order")
	}
	ctx = s.withFields(ctx, map[string]any{"order_id": order.ID.String()})
	if order.Status == enums.OrderStatusFailed {
		return nil, s.paidButFailed(ctx, trigger)
	}
	if order.Delivered() {
		s.metrics.IncFulfillment(trigger, metrics.OutcomeAlreadyProcessed)
		return &Result{Order: s.summary(ctx, order), AlreadyProcessed: true}, nil
	}

	beat, err := s.beats.FindByID(ctx, order.BeatID)
	if err != nil {
		return nil, pkgerrors.FromStore(err, beatNotFoundMessage, "load beat")
	}

	claimed, err := s.claim(ctx, order, beat, session.PaymentIntentID, input.Trigger)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete order")
	}
	if !claimed {
		s.metrics.IncFulfillment(trigger, metrics.OutcomeAlreadyProcessed)
		current, err := s.orders.FindByID(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
		}
		if current.Status == enums.OrderStatusFailed {
			return nil, s.paidButFailed(ctx, trigger)
		}
		return &Result{Order: orders.SummaryFromModel(current, beat.Title), AlreadyProcessed: true}, nil
	}
	s.metrics.IncFulfillment(trigger, metrics.OutcomeClaimed)
	s.info(ctx, "fulfillment.claimed")

	if err := s.deliver(ctx, order, beat, trigger, true); err != nil && s.logg != nil {
		s.logg.Error(ctx, "fulfillment.delivery_failed", err)
	}
	return &Result{Order: orders.SummaryFromModel(order, beat.Title)}, nil
}

// paidButFailed reports a session that was paid after its order was given up
// as abandoned. The order is never claimed; support has to refund or deliver
// by hand.
func (s *service) paidButFailed(ctx context.Context, trigger string) error {
	s.metrics.IncFulfillment(trigger, metrics.OutcomePaidFailedOrder)
	err := pkgerrors.New(pkgerrors.CodeStateConflict, paidFailedOrderMessage)
	if s.logg != nil {
		s.logg.Error(ctx, "fulfillment.paid_session_on_failed_order", err)
	}
	return err
}

// claim completes the order, marks an exclusive beat sold and queues the
// order_fulfilled event in one transaction. order is updated in place on success.
func (s *service) claim(ctx context.Context, order *models.Order, beat *models.Beat, paymentIntentID string, trigger enums.FulfillmentTrigger) (bool, error) {
	completedAt := s.now().UTC()
	var claimed bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		claimed, err = s.orders.WithTx(tx).Claim(ctx, order.ID, paymentIntentID, completedAt)
		if err != nil || !claimed {
			return err
		}
		sold := order.LicenseType.IsExclusive()
		if sold {
			if err := s.beats.MarkSoldTx(tx, beat.ID); err != nil {
				return fmt.Errorf("mark beat sold: %w", err)
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFulfilled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorFor(trigger),
			OccurredAt:    completedAt,
			Data: payloads.OrderFulfilledEvent{
				OrderID:         order.ID,
				BeatID:          beat.ID,
				BeatTitle:       beat.Title,
				LicenseType:     order.LicenseType,
				AmountCents:     order.AmountCents,
				Currency:        s.currency,
				PaymentIntentID: paymentIntentID,
				Trigger:         trigger,
				BeatSold:        sold,
				CompletedAt:     completedAt,
			},
		})
	})
	if err != nil || !claimed {
		return false, err
	}

	order.Status = enums.OrderStatusCompleted
	order.FilesDelivered = true
	order.CompletedAt = &completedAt
	if paymentIntentID != "" {
		order.StripePaymentIntentID = &paymentIntentID
	}
	if order.LicenseType.IsExclusive() {
		beat.IsSold = true
	}
	return true, nil
}

func (s *service) Resend(ctx context.Context, orderID uuid.UUID) (*ResendResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Order ID is required")
	}
	ctx = s.withFields(ctx, map[string]any{"order_id": orderID.String(), "trigger": string(enums.FulfillmentTriggerResend)})

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.FromStore(err, orderNotFoundMessage, "load order")
	}
	if order.Status != enums.OrderStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "Order is not completed").
			WithDetails(map[string]any{"status": order.Status})
	}
	beat, err := s.beats.FindByID(ctx, order.BeatID)
	if err != nil {
		return nil, pkgerrors.FromStore(err, beatNotFoundMessage, "load beat")
	}

	if err := s.deliver(ctx, order, beat, string(enums.FulfillmentTriggerResend), false); err != nil {
		return nil, err
	}
	return &ResendResult{OrderID: order.ID, Email: order.CustomerEmail}, nil
}

// deliver renders the contract and emails it with the download links. The
// first delivery also archives the contract.
func (s *service) deliver(ctx context.Context, order *models.Order, beat *models.Beat, trigger string, archive bool) error {
	contract, err := s.contracts.Generate(ContractInput(order, beat, s.now()))
	if err != nil {
		s.metrics.IncFulfillment(trigger, metrics.OutcomePDFFailed)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "Failed to generate license")
	}
	if archive {
		s.archiveContract(ctx, order, contract, trigger)
	}

	msg, err := composePurchaseEmail(order, beat, contract)
	if err != nil {
		s.metrics.IncFulfillment(trigger, metrics.OutcomeEmailFailed)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "Failed to send email")
	}
	res, err := s.mailer.Send(ctx, msg)
	if err != nil {
		s.metrics.IncFulfillment(trigger, metrics.OutcomeEmailFailed)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to send email")
	}
	s.metrics.IncFulfillment(trigger, metrics.OutcomeEmailSent)

	messageID := ""
	if res != nil {
		messageID = res.MessageID
	}
	if err := s.orders.RecordEmail(ctx, order.ID, messageID, s.now()); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "fulfillment.record_email_failed")
	}
	s.info(s.withFields(ctx, map[string]any{"email_message_id": messageID}), "fulfillment.email_sent")
	return nil
}

func (s *service) archiveContract(ctx context.Context, order *models.Order, contract []byte, trigger string) {
	if s.archive == nil {
		return
	}
	obj, err := s.archive.Put(ctx, s3.PutInput{
		Key:         contractKeyPrefix + AttachmentName(order),
		Body:        bytes.NewReader(contract),
		ContentType: "application/pdf",
	})
	if err == nil {
		err = s.orders.RecordLicenseURL(ctx, order.ID, obj.URL)
	}
	if err != nil {
		s.metrics.IncFulfillment(trigger, metrics.OutcomeArchiveFailed)
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "fulfillment.archive_failed")
		}
		return
	}
	order.LicensePDFURL = &obj.URL
}

// ContractInput builds the contract for order. The agreement date is the
// order's completion time, falling back to fallback for legacy rows.
func ContractInput(order *models.Order, beat *models.Beat, fallback time.Time) licenses.ContractInput {
	issuedAt := fallback
	if order.CompletedAt != nil {
		issuedAt = *order.CompletedAt
	}
	return licenses.ContractInput{
		OrderID:       order.ID,
		LicenseType:   order.LicenseType,
		AmountCents:   order.AmountCents,
		BeatTitle:     beat.Title,
		Producer:      beat.Producer,
		BPM:           beat.BPM,
		Key:           beat.MusicalKey,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		IssuedAt:      issuedAt.UTC(),
	}
}

func (s *service) summary(ctx context.Context, order *models.Order) *orders.OrderSummary {
	title := ""
	if beat, err := s.beats.FindByID(ctx, order.BeatID); err == nil {
		title = beat.Title
	}
	return orders.SummaryFromModel(order, title)
}

func (s *service) withFields(ctx context.Context, fields map[string]any) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, fields)
}

func (s *service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func actorFor(trigger enums.FulfillmentTrigger) *outbox.ActorRef {
	if trigger == enums.FulfillmentTriggerWebhook {
		return &outbox.ActorRef{Kind: outbox.ActorStripe}
	}
	return &outbox.ActorRef{Kind: outbox.ActorCustomer}
}

