package stripe

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// Checkout events the storefront reacts to.
const (
	EventCheckoutSessionCompleted             = "checkout.session.completed"
	EventCheckoutSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutSessionExpired               = "checkout.session.expired"
)

// ErrInvalidSignature is returned when the Stripe-Signature header does not verify.
var ErrInvalidSignature = errors.New("invalid stripe signature")

// Event is a verified webhook event.
type Event struct {
	ID   string
	Type string
	Data json.RawMessage
}

// ConstructEvent verifies the payload signature and decodes the event envelope.
func (c *Client) ConstructEvent(payload []byte, signatureHeader string) (Event, error) {
	return constructEvent(payload, signatureHeader, c.signingSecret)
}

func constructEvent(payload []byte, signatureHeader, secret string) (Event, error) {
	if signatureHeader == "" {
		return Event{}, fmt.Errorf("%w: missing header", ErrInvalidSignature)
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data != nil {
		out.Data = evt.Data.Raw
	}
	return out, nil
}

// SessionFromEvent decodes the checkout session carried by a checkout.session.* event.
func SessionFromEvent(evt Event) (*CheckoutSession, error) {
	if len(evt.Data) == 0 {
		return nil, errors.New("event has no data")
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data, &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	if session.ID == "" {
		return nil, errors.New("checkout session id missing from event")
	}
	return fromStripe(&session), nil
}
