package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/pkg/db/models"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	AttachSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	// Claim moves a pending order to completed. claimed is false when another
	// caller already moved it out of pending.
	Claim(ctx context.Context, orderID uuid.UUID, paymentIntentID string, completedAt time.Time) (claimed bool, err error)
	// MarkFailed moves a pending order to failed; it never touches completed orders.
	MarkFailed(ctx context.Context, orderID uuid.UUID) (bool, error)
	RecordEmail(ctx context.Context, orderID uuid.UUID, messageID string, sentAt time.Time) error
	RecordLicenseURL(ctx context.Context, orderID uuid.UUID, url string) error
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}
