package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const provider = "stripe"

var errEventIDRequired = errors.New("stripe event id is required")

type eventStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookEventKey(provider, eventID string) string
}

// IdempotencyGuard claims Stripe event ids in Redis. Stripe retries a
// delivery for up to three days, so the ttl should cover that window.
type IdempotencyGuard struct {
	store eventStore
	ttl   time.Duration
	now   func() time.Time
}

func NewIdempotencyGuard(store eventStore, ttl time.Duration) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl <= 0:
		return nil, fmt.Errorf("webhook dedupe ttl must be positive, got %s", ttl)
	}
	return &IdempotencyGuard{store: store, ttl: ttl, now: time.Now}, nil
}

func (g *IdempotencyGuard) key(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", errEventIDRequired
	}
	return g.store.WebhookEventKey(provider, eventID), nil
}

// CheckAndMark claims eventID. It returns true when an earlier delivery
// already holds the claim. The stored value is the claim time.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	claimed, err := g.store.SetNX(ctx, key, g.now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim stripe event %s: %w", eventID, err)
	}
	return !claimed, nil
}

// Delete releases the claim after a failed delivery so Stripe's retry runs.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}
