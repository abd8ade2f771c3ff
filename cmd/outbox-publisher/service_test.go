package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/metrics"
	"github.com/chryzcode/ycsyh-site/pkg/outbox"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/payloads"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/registry"
)

func TestProcessBatchPublishesAndRecordsFailures(t *testing.T) {
	ok := orderEvent(t, enums.EventOrderCreated, 0)
	flaky := orderEvent(t, enums.EventOrderFulfilled, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{ok, flaky}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{},
		fakePublishResult{err: errors.New("unavailable")},
	}}
	reg := prometheus.NewRegistry()
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedOrder()}, &fakeDLQRepo{}, Settings{MaxAttempts: 5}, reg)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.published) != 1 || repo.published[0] != ok.ID {
		t.Fatalf("expected %s published, got %v", ok.ID, repo.published)
	}
	if len(repo.failed) != 1 || repo.failed[0] != flaky.ID {
		t.Fatalf("expected %s marked failed, got %v", flaky.ID, repo.failed)
	}
	if len(repo.terminal) != 0 {
		t.Fatalf("transient failure must not be terminal")
	}

	msg := pub.messages[0]
	if msg.Attributes["event_type"] != string(enums.EventOrderCreated) {
		t.Fatalf("unexpected event_type attribute %q", msg.Attributes["event_type"])
	}
	if msg.Attributes["aggregate_id"] != ok.AggregateID.String() {
		t.Fatalf("unexpected aggregate_id attribute %q", msg.Attributes["aggregate_id"])
	}
	if !bytes.Equal(msg.Data, ok.Payload) {
		t.Fatalf("message data should carry the stored envelope")
	}

	count, err := testutil.GatherAndCount(reg, "ycsyh_outbox_published_total", "ycsyh_outbox_publish_failures_total")
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected published and failure series, got %d", count)
	}
}

func TestProcessBatchDeadLettersNonRetryable(t *testing.T) {
	event := orderEvent(t, enums.EventOrderCreated, 0)
	event.AggregateType = "unknown"
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	resolver := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("aggregate mismatch"))}
	svc := newTestService(t, repo, &fakePublisher{}, resolver, dlq, Settings{}, nil)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected reason %s", entry.ErrorReason)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row marked terminal")
	}
}

func TestProcessBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	event := orderEvent(t, enums.EventOrderFailed, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("deadline exceeded")}}}
	dlq := &fakeDLQRepo{}
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedOrder()}, dlq, Settings{BatchSize: 1, MaxAttempts: 2}, nil)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(dlq.entries))
	}
	if dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected reason %s", dlq.entries[0].ErrorReason)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("dead-lettered row should not also be marked failed")
	}
}

func TestProcessBatchEmpty(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, Settings{}, nil)
	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if processed {
		t.Fatalf("empty batch should report nothing processed")
	}
}

func TestPublisherForCachesPerTopic(t *testing.T) {
	calls := map[string]int{}
	svc := newTestService(t, &fakeRepo{}, nil, &fakeRegistry{}, &fakeDLQRepo{}, Settings{}, nil)
	svc.factory = func(topic string) publisher {
		calls[topic]++
		return &fakePublisher{}
	}

	svc.publisherFor("orders")
	svc.publisherFor("orders")
	svc.publisherFor("refunds")

	if calls["orders"] != 1 || calls["refunds"] != 1 {
		t.Fatalf("expected one publisher per topic, got %v", calls)
	}
}

func TestSettingsFromDefaults(t *testing.T) {
	s := SettingsFrom(config.OutboxConfig{})
	if s.BatchSize != defaultBatchSize || s.MaxAttempts != defaultMaxAttempts || s.PollInterval != defaultPollInterval {
		t.Fatalf("unexpected defaults %+v", s)
	}
	s = SettingsFrom(config.OutboxConfig{BatchSize: 5, PollIntervalMS: 2000, MaxAttempts: 3})
	if s.BatchSize != 5 || s.MaxAttempts != 3 || s.PollInterval != 2*time.Second {
		t.Fatalf("unexpected settings %+v", s)
	}
}

func TestNextBackoffCaps(t *testing.T) {
	base := 500 * time.Millisecond
	if got := nextBackoff(base, base, maxBackoff); got != time.Second {
		t.Fatalf("expected doubling, got %s", got)
	}
	if got := nextBackoff(8*time.Second, base, maxBackoff); got != maxBackoff {
		t.Fatalf("expected cap, got %s", got)
	}
	if got := nextBackoff(0, base, maxBackoff); got != time.Second {
		t.Fatalf("expected base doubling, got %s", got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, resolver registryResolver, dlq dlqRepository, settings Settings, reg prometheus.Registerer) *Service {
	t.Helper()
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	svc, err := NewService(ServiceParams{
		Settings:         settings,
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		DLQRepository:    dlq,
		Registry:         resolver,
		Metrics:          metrics.NewOutboxMetrics(reg),
		PublisherFactory: func(string) publisher { return pub },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func orderEvent(tb testing.TB, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	tb.Helper()
	id := uuid.New()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{"order_id":"` + id.String() + `"}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
		CreatedAt:     time.Now(),
	}
}

func resolvedOrder() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "ycsyh-orders",
			AggregateType: enums.AggregateOrder,
		},
		Payload: &payloads.OrderCreatedEvent{},
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.EventType = event.EventType
	resolved.Envelope.EventID = event.ID.String()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
