// Package idempotency records which outbox events each Pub/Sub consumer has
// already handled, so at-least-once delivery turns into effectively-once.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/chryzcode/ycsyh-site/pkg/redis"
)

// Manager marks events per consumer. The mark is the time the event was
// first claimed, stored under ycsyh:idempotency:consumed:<consumer>:<event>.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

// NewManager returns a Manager whose marks expire after ttl. A zero ttl keeps
// marks until they are deleted.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store required")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("idempotency ttl %s is negative", ttl)
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed claims eventID for consumer. It returns true when a
// previous delivery already claimed it.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339Nano), m.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return !claimed, nil
}

// ProcessedAt returns when consumer claimed eventID, if it has.
func (m *Manager) ProcessedAt(ctx context.Context, consumer string, eventID uuid.UUID) (time.Time, bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return time.Time{}, false, err
	}
	raw, err := m.store.Get(ctx, key)
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read %s: %w", key, err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// Marks written before timestamps were stored hold "1".
		return time.Time{}, true, nil
	}
	return at, true, nil
}

// Delete drops the claim so the next redelivery is handled again.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" || strings.Contains(consumer, ":") {
		return "", fmt.Errorf("invalid consumer name %q", consumer)
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id required")
	}
	return m.store.IdempotencyKey("consumed:"+consumer, eventID.String()), nil
}
