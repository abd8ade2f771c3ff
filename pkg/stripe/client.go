// Package stripe is the YCSYH wrapper around stripe-go: checkout sessions
// for beat purchases and webhook signature verification.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

const apiTimeout = 30 * time.Second

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = errors.New(`stripe environment must be "test" or "live"`)
)

type Client struct {
	sessions      sessionAPI
	mode          string
	signingSecret string
}

// sessionAPI is the part of stripe.Client's V1CheckoutSessions we call.
type sessionAPI interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	Retrieve(ctx context.Context, id string, params *stripe.CheckoutSessionRetrieveParams) (*stripe.CheckoutSession, error)
	Expire(ctx context.Context, id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)
}

// NewClient refuses to start when the key's mode disagrees with
// YCSYH_STRIPE_ENV, so a staging deploy cannot charge real cards.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := cfg.Environment()
	if mode != "test" && mode != "live" {
		return nil, errInvalidStripeEnv
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errSecretRequired
	}
	keyMode, err := keyMode(key)
	if err != nil {
		return nil, err
	}
	if keyMode != mode {
		return nil, fmt.Errorf("stripe environment is %q but the api key is a %s key", mode, keyMode)
	}

	api := stripe.NewClient(key, stripe.WithBackends(stripe.NewBackends(&http.Client{Timeout: apiTimeout})))
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", mode), "stripe.client.ready")
	}
	return &Client{sessions: api.V1CheckoutSessions, mode: mode, signingSecret: secret}, nil
}

// Environment is "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.mode
}

// keyMode reads the mode out of a secret (sk_) or restricted (rk_) key.
// Publishable keys are rejected.
func keyMode(key string) (string, error) {
	kind, rest, _ := strings.Cut(key, "_")
	mode, _, _ := strings.Cut(rest, "_")
	if kind != "sk" && kind != "rk" {
		return "", errors.New("stripe api key must be a secret (sk_) or restricted (rk_) key")
	}
	if mode != "test" && mode != "live" {
		return "", fmt.Errorf("stripe api key has unknown mode %q", mode)
	}
	return mode, nil
}
