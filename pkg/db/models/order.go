package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/pkg/enums"
)

// Order is a single purchase attempt, keyed by its Stripe checkout session once attached.
type Order struct {
	ID                    uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BeatID                uuid.UUID         `gorm:"column:beat_id;type:uuid;not null"`
	CustomerEmail         string            `gorm:"column:customer_email;not null"`
	CustomerName          string            `gorm:"column:customer_name;not null"`
	LicenseType           enums.LicenseType `gorm:"column:license_type;type:license_type_enum;not null"`
	AmountCents           int64             `gorm:"column:amount_cents;not null"`
	StripeSessionID       *string           `gorm:"column:stripe_session_id;uniqueIndex"`
	StripePaymentIntentID *string           `gorm:"column:stripe_payment_intent_id"`
	LicensePDFURL         *string           `gorm:"column:license_pdf_url"`
	Status                enums.OrderStatus `gorm:"column:status;type:order_status_enum;not null;default:'pending'"`
	FilesDelivered        bool              `gorm:"column:files_delivered;not null;default:false"`
	CompletedAt           *time.Time        `gorm:"column:completed_at"`
	EmailSentAt           *time.Time        `gorm:"column:email_sent_at"`
	EmailMessageID        *string           `gorm:"column:email_message_id"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// Delivered reports whether fulfillment has already run for this order.
func (o Order) Delivered() bool {
	return o.Status == enums.OrderStatusCompleted && o.FilesDelivered
}
