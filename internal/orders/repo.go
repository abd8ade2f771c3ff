package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/internal/repo"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
)

type repository struct {
	repo.Base[models.Order]
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase[models.Order](db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.Tx(tx)}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order required")
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = enums.OrderStatusPending
	}
	order.CustomerEmail = NormalizeEmail(order.CustomerEmail)
	return r.DB(ctx).Create(order).Error
}

// AttachSession records the Stripe session id on an order that has none yet.
func (r *repository) AttachSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	res := r.DB(ctx).Model(&models.Order{}).
		Where("id = ? AND stripe_session_id IS NULL", orderID).
		Updates(map[string]any{
			"stripe_session_id": sessionID,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	if err := r.DB(ctx).First(&order, "stripe_session_id = ?", sessionID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Claim(ctx context.Context, orderID uuid.UUID, paymentIntentID string, completedAt time.Time) (bool, error) {
	updates := map[string]any{
		"status":          enums.OrderStatusCompleted,
		"files_delivered": true,
		"completed_at":    completedAt.UTC(),
		"updated_at":      completedAt.UTC(),
	}
	if strings.TrimSpace(paymentIntentID) != "" {
		updates["stripe_payment_intent_id"] = paymentIntentID
	}
	n, err := r.UpdateWhere(ctx, updates, "id = ? AND status = ?", orderID, enums.OrderStatusPending)
	return n == 1, err
}

func (r *repository) MarkFailed(ctx context.Context, orderID uuid.UUID) (bool, error) {
	n, err := r.UpdateWhere(ctx, map[string]any{
		"status":     enums.OrderStatusFailed,
		"updated_at": time.Now().UTC(),
	}, "id = ? AND status = ?", orderID, enums.OrderStatusPending)
	return n == 1, err
}

func (r *repository) RecordEmail(ctx context.Context, orderID uuid.UUID, messageID string, sentAt time.Time) error {
	updates := map[string]any{
		"email_sent_at": sentAt.UTC(),
		"updated_at":    sentAt.UTC(),
	}
	if messageID != "" {
		updates["email_message_id"] = messageID
	}
	return r.DB(ctx).Model(&models.Order{}).Where("id = ?", orderID).Updates(updates).Error
}

func (r *repository) RecordLicenseURL(ctx context.Context, orderID uuid.UUID, url string) error {
	return r.DB(ctx).Model(&models.Order{}).Where("id = ?", orderID).
		Updates(map[string]any{
			"license_pdf_url": url,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// ListPendingBefore returns the oldest pending orders created before cutoff.
func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	q := r.DB(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff.UTC()).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.Order
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
