package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/internal/beats"
	"github.com/chryzcode/ycsyh-site/internal/licenses"
	"github.com/chryzcode/ycsyh-site/internal/orders"
	"github.com/chryzcode/ycsyh-site/pkg/db"
	"github.com/chryzcode/ycsyh-site/pkg/db/dbtest"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/email"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/outbox"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/payloads"
	"github.com/chryzcode/ycsyh-site/pkg/storage/s3"
	"github.com/chryzcode/ycsyh-site/pkg/stripe"
)

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*stripe.CheckoutSession
	err      error
}

func (f *fakeSessions) GetCheckoutSession(_ context.Context, id string) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, errors.New("no such session")
	}
	return s, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg email.Message) (*email.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg)
	return &email.Result{MessageID: "msg-" + uuid.NewString(), StatusCode: 202}, nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeArchive) Put(_ context.Context, in s3.PutInput) (*s3.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := io.ReadAll(in.Body); err != nil {
		return nil, err
	}
	f.keys = append(f.keys, in.Key)
	return &s3.Object{Key: in.Key, URL: "https://cdn.example.com/" + in.Key}, nil
}

// recordingGenerator keeps every contract input so tests can compare renders.
type recordingGenerator struct {
	mu     sync.Mutex
	inputs []licenses.ContractInput
	err    error
}

func (g *recordingGenerator) Generate(in licenses.ContractInput) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.inputs = append(g.inputs, in)
	return licenses.NewGenerator().Generate(in)
}

type harness struct {
	conn      *gorm.DB
	svc       Service
	sessions  *fakeSessions
	mailer    *fakeMailer
	archive   *fakeArchive
	generator *recordingGenerator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	h := &harness{
		conn:      conn,
		sessions:  &fakeSessions{sessions: map[string]*stripe.CheckoutSession{}},
		mailer:    &fakeMailer{},
		archive:   &fakeArchive{},
		generator: &recordingGenerator{},
	}
	svc, err := NewService(ServiceParams{
		Sessions:  h.sessions,
		Orders:    orders.NewRepository(conn),
		Beats:     beats.NewRepository(conn),
		Tx:        db.FromGorm(conn),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
		Contracts: h.generator,
		Archive:   h.archive,
		Mailer:    h.mailer,
		Clock:     func() time.Time { return time.Date(2026, 6, 1, 15, 4, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) paidOrder(t *testing.T, licenseType enums.LicenseType) (models.Beat, models.Order) {
	t.Helper()
	beat := dbtest.SeedBeat(t, h.conn, nil)
	order := dbtest.SeedOrder(t, h.conn, beat, func(o *models.Order) { o.LicenseType = licenseType })
	h.sessions.sessions[*order.StripeSessionID] = &stripe.CheckoutSession{
		ID:              *order.StripeSessionID,
		PaymentStatus:   stripe.PaymentStatusPaid,
		PaymentIntentID: "pi_" + order.ID.String()[:8],
	}
	return beat, order
}

func (h *harness) order(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var got models.Order
	require.NoError(t, h.conn.First(&got, "id = ?", id).Error)
	return got
}

func (h *harness) beat(t *testing.T, id uuid.UUID) models.Beat {
	t.Helper()
	var got models.Beat
	require.NoError(t, h.conn.First(&got, "id = ?", id).Error)
	return got
}

func TestFulfillDeliversOrder(t *testing.T) {
	h := newHarness(t)
	beat, order := h.paidOrder(t, enums.LicenseTypeWAV)

	res, err := h.svc.Fulfill(context.Background(), FulfillInput{SessionID: *order.StripeSessionID, Trigger: enums.FulfillmentTriggerPoll})
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, enums.OrderStatusCompleted, res.Order.Status)
	assert.True(t, res.Order.FilesDelivered)
	assert.Equal(t, "Night Shift", res.Order.Beat.Title)

	stored := h.order(t, order.ID)
	assert.Equal(t, enums.OrderStatusCompleted, stored.Status)
	require.NotNil(t, stored.StripePaymentIntentID)
	require.NotNil(t, stored.EmailSentAt)
	require.NotNil(t, stored.LicensePDFURL)
	assert.Contains(t, *stored.LicensePDFURL, "contracts/license-"+order.ID.String()+".pdf")
	assert.False(t, h.beat(t, beat.ID).IsSold)

	require.Equal(t, 1, h.mailer.count())
	msg := h.mailer.sent[0]
	assert.Equal(t, "Your Purchase: Night Shift - YCSYH", msg.Subject)
	assert.Equal(t, "buyer@example.com", msg.To)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "license-"+order.ID.String()+".pdf", msg.Attachments[0].Filename)
	assert.Contains(t, msg.HTML, "https://cdn.example.com/beats/audio/night.mp3")
	assert.Contains(t, msg.HTML, "https://cdn.example.com/beats/audio/night.wav")
	assert.NotContains(t, msg.HTML, "Trackouts")

	events, err := outbox.NewRepository(h.conn).ListByAggregate(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderFulfilled, events[0].EventType)
}

func TestFulfillTwiceHasNoSecondEffects(t *testing.T) {
	h := newHarness(t)
	_, order := h.paidOrder(t, enums.LicenseTypeMP3)
	input := FulfillInput{SessionID: *order.StripeSessionID, Trigger: enums.FulfillmentTriggerWebhook}

	_, err := h.svc.Fulfill(context.Background(), input)
	require.NoError(t, err)
	first := h.order(t, order.ID)

	input.Trigger = enums.FulfillmentTriggerPoll
	res, err := h.svc.Fulfill(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
	assert.Equal(t, 1, h.mailer.count())
	assert.Len(t, h.generator.inputs, 1)
	assert.Len(t, h.archive.keys, 1)

	second := h.order(t, order.ID)
	assert.Equal(t, first.EmailMessageID, second.EmailMessageID)
	assert.True(t, first.CompletedAt.Equal(*second.CompletedAt))
}

func TestFulfillConcurrentCallersSendOneEmail(t *testing.T) {
	h := newHarness(t)
	beat, order := h.paidOrder(t, enums.LicenseTypeExclusive)

	const callers = 6
	var wg sync.WaitGroup
	results := make(chan *Result, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trigger := enums.FulfillmentTriggerPoll
			if i%2 == 0 {
				trigger = enums.FulfillmentTriggerWebhook
			}
			res, err := h.svc.Fulfill(context.Background(), FulfillInput{SessionID: *order.StripeSessionID, Trigger: trigger})
			assert.NoError(t, err)
			results <- res
		}(i)
	}
	wg.Wait()
	close(results)

	winners := 0
	for res := range results {
		if res != nil && !res.AlreadyProcessed {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, h.mailer.count())
	assert.True(t, h.beat(t, beat.ID).IsSold)
}

func TestFulfillOnlyExclusiveMarksSold(t *testing.T) {
	for _, licenseType := range enums.LicenseTypes() {
		t.Run(string(licenseType), func(t *testing.T) {
			h := newHarness(t)
			beat, order := h.paidOrder(t, licenseType)
			_, err := h.svc.Fulfill(context.Background(), FulfillInput{SessionID: *order.StripeSessionID, Trigger: enums.FulfillmentTriggerWebhook})
			require.NoError(t, err)
			assert.Equal(t, licenseType.IsExclusive(), h.beat(t, beat.ID).IsSold)
		})
	}
}

func TestFulfillUnpaidSession(t *testing.T) {
	h := newHarness(t)
	beat := dbtest.SeedBeat(t, h.conn, nil)
	order := dbtest.SeedOrder(t, h.conn, beat, nil)
	h.sessions.sessions[*order.StripeSessionID] = &stripe.CheckoutSession{ID: *order.StripeSessionID, PaymentStatus: "unpaid"}

	_, err := h.svc.Fulfill(context.Background(), FulfillInput{SessionID: *order.StripeSessionID, Trigger: enums.FulfillmentTriggerPoll})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, "Payment not completed", pkgerrors.As(err).Message())

	res, err := h.svc.Fulfill(context.Background(), FulfillInput{SessionID: *order.StripeSessionID, Trigger: enums.FulfillmentTriggerWebhook})
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	assert.Equal(t, enums.OrderStatusPending, h.order(t, order.ID).Status)
	assert.Zero(t, h.mailer.count())
}

func TestFulfillPaidSessionOnExpiredOrder(t *testing.T) {
	h := newHarness(t)
	beat, order := h.paidOrder(t, enums.LicenseTypeExclusive)
	require.NoError(t, h.conn.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", enums.OrderStatusFailed).Error)

	for _, trigger := range []enums.FulfillmentTrigger{enums.FulfillmentTriggerPoll, enums.FulfillmentTriggerWebhook} {
		res, err := h.svc.Fulfill(context.Background(), FulfillInput{SessionID: *order.StripeSessionID, Trigger: trigger})
		require.Error(t, err, trigger)
		assert.Nil(t, res)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), trigger)
	}

	assert.Equal(t, enums.OrderStatusFailed, h.order(t, order.ID).Status)
	assert.False(t, h.beat(t, beat.ID).IsSold)
	assert.Zero(t, h.mailer.count())
}

func TestFulfillEmailFailureKeepsOrderCompleted(t *testing.T) {
	h := newHarness(t)
	h.mailer.err = errors.New("sendgrid down")
	_, order := h.paidOrder(t, enums.LicenseTypeMP3)

	res, err := h.svc.Fulfill(context.Background(), FulfillInput{SessionID: *order.StripeSessionID, Trigger: enums.FulfillmentTriggerPoll})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, res.Order.Status)

	stored := h.order(t, order.ID)
	assert.Equal(t, enums.OrderStatusCompleted, stored.Status)
	assert.Nil(t, stored.EmailSentAt)
}

func TestFulfillMissingOrder(t *testing.T) {
	h := newHarness(t)
	h.sessions.sessions["cs_orphan"] = &stripe.CheckoutSession{ID: "cs_orphan", PaymentStatus: stripe.PaymentStatusPaid}

	_, err := h.svc.Fulfill(context.Background(), FulfillInput{SessionID: "cs_orphan", Trigger: enums.FulfillmentTriggerPoll})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, "Order not found", pkgerrors.As(err).Message())
}

func TestFulfillValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Fulfill(context.Background(), FulfillInput{Trigger: enums.FulfillmentTriggerPoll})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	h.sessions.err = errors.New("stripe unavailable")
	_, err = h.svc.Fulfill(context.Background(), FulfillInput{SessionID: "cs_x", Trigger: enums.FulfillmentTriggerPoll})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestResendReproducesContract(t *testing.T) {
	h := newHarness(t)
	_, order := h.paidOrder(t, enums.LicenseTypeWAV)
	_, err := h.svc.Fulfill(context.Background(), FulfillInput{SessionID: *order.StripeSessionID, Trigger: enums.FulfillmentTriggerPoll})
	require.NoError(t, err)

	res, err := h.svc.Resend(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, res.OrderID)
	assert.Equal(t, "buyer@example.com", res.Email)
	assert.Equal(t, 2, h.mailer.count())
	assert.Len(t, h.archive.keys, 1)

	require.Len(t, h.generator.inputs, 2)
	original, err := licenses.ContractLines(h.generator.inputs[0])
	require.NoError(t, err)
	resent, err := licenses.ContractLines(h.generator.inputs[1])
	require.NoError(t, err)
	assert.Equal(t, original, resent)

	stored := h.order(t, order.ID)
	assert.Equal(t, enums.OrderStatusCompleted, stored.Status)
}

func TestResendRejectsPendingOrder(t *testing.T) {
	h := newHarness(t)
	beat := dbtest.SeedBeat(t, h.conn, nil)
	order := dbtest.SeedOrder(t, h.conn, beat, nil)

	_, err := h.svc.Resend(context.Background(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.Resend(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestResendSurfacesEmailFailure(t *testing.T) {
	h := newHarness(t)
	_, order := h.paidOrder(t, enums.LicenseTypeMP3)
	_, err := h.svc.Fulfill(context.Background(), FulfillInput{SessionID: *order.StripeSessionID, Trigger: enums.FulfillmentTriggerPoll})
	require.NoError(t, err)

	h.mailer.err = errors.New("rejected")
	_, err = h.svc.Resend(context.Background(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestFulfilledEventPayload(t *testing.T) {
	h := newHarness(t)
	beat, order := h.paidOrder(t, enums.LicenseTypeExclusive)
	_, err := h.svc.Fulfill(context.Background(), FulfillInput{SessionID: *order.StripeSessionID, Trigger: enums.FulfillmentTriggerWebhook})
	require.NoError(t, err)

	events, err := outbox.NewRepository(h.conn).ListByAggregate(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var data payloads.OrderFulfilledEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, beat.ID, data.BeatID)
	assert.True(t, data.BeatSold)
	assert.Equal(t, enums.FulfillmentTriggerWebhook, data.Trigger)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, outbox.ActorStripe, envelope.Actor.Kind)
}
