package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

// PaymentStatusPaid is the checkout session payment_status once funds are captured.
const PaymentStatusPaid = "paid"

// CheckoutSessionInput describes a single-line-item hosted checkout.
type CheckoutSessionInput struct {
	Currency          string
	ProductName       string
	Description       string
	UnitAmountCents   int64
	CustomerEmail     string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Metadata          map[string]string
}

// CheckoutSession is the subset of a Stripe session the storefront relies on.
type CheckoutSession struct {
	ID                string
	URL               string
	Status            string
	PaymentStatus     string
	PaymentIntentID   string
	ClientReferenceID string
	CustomerEmail     string
	AmountTotal       int64
	Metadata          map[string]string
}

// Paid reports whether the session has been paid.
func (s CheckoutSession) Paid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}

func (in CheckoutSessionInput) validate() error {
	switch {
	case strings.TrimSpace(in.ProductName) == "":
		return errors.New("product name is required")
	case in.UnitAmountCents <= 0:
		return errors.New("unit amount must be positive")
	case in.SuccessURL == "" || in.CancelURL == "":
		return errors.New("success and cancel urls are required")
	}
	return nil
}

func buildCreateParams(in CheckoutSessionInput) *stripe.CheckoutSessionCreateParams {
	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyGBP)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(currency),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name:        stripe.String(in.ProductName),
						Description: optionalString(in.Description),
					},
					UnitAmount: stripe.Int64(in.UnitAmountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		CustomerEmail:     optionalString(in.CustomerEmail),
		ClientReferenceID: optionalString(in.ClientReferenceID),
	}
	if len(in.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(in.Metadata))
		for k, v := range in.Metadata {
			params.Metadata[k] = v
		}
	}
	return params
}

// CreateCheckoutSession creates a hosted checkout session for one line item.
func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	session, err := c.sessions.Create(ctx, buildCreateParams(in))
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return fromStripe(session), nil
}

// GetCheckoutSession retrieves the live state of a session.
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("session id is required")
	}
	session, err := c.sessions.Retrieve(ctx, id, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session %s: %w", id, err)
	}
	return fromStripe(session), nil
}

// ExpireCheckoutSession closes an open session so it can no longer be paid.
func (c *Client) ExpireCheckoutSession(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}
	if _, err := c.sessions.Expire(ctx, id, &stripe.CheckoutSessionExpireParams{}); err != nil {
		return fmt.Errorf("expire checkout session %s: %w", id, err)
	}
	return nil
}

func fromStripe(s *stripe.CheckoutSession) *CheckoutSession {
	if s == nil {
		return nil
	}
	out := &CheckoutSession{
		ID:                s.ID,
		URL:               s.URL,
		Status:            string(s.Status),
		PaymentStatus:     string(s.PaymentStatus),
		ClientReferenceID: s.ClientReferenceID,
		CustomerEmail:     s.CustomerEmail,
		AmountTotal:       s.AmountTotal,
		Metadata:          s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out
}

func optionalString(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return stripe.String(v)
}
