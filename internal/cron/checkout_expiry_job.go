package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

const (
	defaultCheckoutPendingTTL = 48 * time.Hour
	// stripeSessionLifetime is the longest a Checkout session stays payable.
	stripeSessionLifetime = 24 * time.Hour
)

type staleOrderExpirer interface {
	ExpireStale(ctx context.Context, cutoff time.Time) (int, error)
}

type CheckoutExpiryJobParams struct {
	Logger *logger.Logger
	Orders staleOrderExpirer
	// PendingTTL must exceed stripeSessionLifetime. Zero means the default.
	PendingTTL time.Duration
}

type checkoutExpiryJob struct {
	logg   *logger.Logger
	orders staleOrderExpirer
	ttl    time.Duration
	now    func() time.Time
}

func NewCheckoutExpiryJob(params CheckoutExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.PendingTTL
	if ttl == 0 {
		ttl = defaultCheckoutPendingTTL
	}
	if ttl <= stripeSessionLifetime {
		return nil, fmt.Errorf("pending ttl %s must exceed the %s checkout session lifetime", ttl, stripeSessionLifetime)
	}
	return &checkoutExpiryJob{logg: params.Logger, orders: params.Orders, ttl: ttl, now: time.Now}, nil
}

func (j *checkoutExpiryJob) Name() string { return "checkout-expiry" }

func (j *checkoutExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	expired, err := j.orders.ExpireStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire pending orders: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"orders_expired": expired,
	}), "cron.checkout_expiry.complete")
	return nil
}
