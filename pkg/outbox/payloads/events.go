package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/pkg/enums"
)

// Failure reasons carried on OrderFailedEvent.
const (
	FailureSessionCreate   = "session_create_failed"
	FailureSessionAttach   = "session_attach_failed"
	FailureCheckoutExpired = "checkout_expired"
	FailurePendingTimeout  = "pending_timeout"
)

// OrderCreatedEvent is emitted when a pending order is opened for checkout.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	BeatID      uuid.UUID         `json:"beat_id"`
	BeatTitle   string            `json:"beat_title"`
	LicenseType enums.LicenseType `json:"license_type"`
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	CreatedAt   time.Time         `json:"created_at"`
}

// OrderFulfilledEvent is emitted by the request that won the fulfillment claim.
type OrderFulfilledEvent struct {
	OrderID         uuid.UUID                `json:"order_id"`
	BeatID          uuid.UUID                `json:"beat_id"`
	BeatTitle       string                   `json:"beat_title"`
	LicenseType     enums.LicenseType        `json:"license_type"`
	AmountCents     int64                    `json:"amount_cents"`
	Currency        string                   `json:"currency"`
	PaymentIntentID string                   `json:"payment_intent_id,omitempty"`
	Trigger         enums.FulfillmentTrigger `json:"trigger"`
	BeatSold        bool                     `json:"beat_sold"`
	CompletedAt     time.Time                `json:"completed_at"`
}

// OrderFailedEvent is emitted when a pending order is abandoned.
type OrderFailedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	BeatID      uuid.UUID         `json:"beat_id"`
	LicenseType enums.LicenseType `json:"license_type"`
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	Reason      string            `json:"reason"`
	FailedAt    time.Time         `json:"failed_at"`
}
