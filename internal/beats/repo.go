package beats

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/internal/repo"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
)

// Repository persists catalog listings.
type Repository struct {
	repo.Base[models.Beat]
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase[models.Beat](db)}
}

// List returns beats newest first.
func (r *Repository) List(ctx context.Context, params ListParams) ([]models.Beat, error) {
	q := r.DB(ctx).Model(&models.Beat{})
	if params.Category != nil {
		q = q.Where("category = ?", *params.Category)
	}
	if !params.IncludeSold {
		q = q.Where("is_sold = ?", false)
	}
	var rows []models.Beat
	err := q.Order("created_at DESC").Order("id").Find(&rows).Error
	return rows, err
}

func (r *Repository) Create(ctx context.Context, beat *models.Beat) error {
	if beat.ID == uuid.Nil {
		beat.ID = uuid.New()
	}
	return r.DB(ctx).Create(beat).Error
}

// Save writes every column of beat. is_sold is excluded; only fulfillment sets it.
func (r *Repository) Save(ctx context.Context, beat *models.Beat) error {
	return r.DB(ctx).Model(beat).Select(
		"title", "producer", "category", "bpm", "musical_key",
		"mp3_price_cents", "wav_price_cents", "trackout_price_cents", "exclusive_price_cents",
		"description", "image_url", "preview_url", "mp3_url", "wav_url", "trackouts_url",
		"updated_at",
	).Updates(beat).Error
}

// Delete removes the beat when no order references it. deleted is false when
// orders exist.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (deleted bool, err error) {
	err = r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var orders int64
		if err := tx.Model(&models.Order{}).Where("beat_id = ?", id).Count(&orders).Error; err != nil {
			return err
		}
		if orders > 0 {
			return nil
		}
		res := tx.Delete(&models.Beat{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// MarkSoldTx flags the beat sold inside the fulfillment transaction.
func (r *Repository) MarkSoldTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.Beat{}).Where("id = ?", id).Update("is_sold", true).Error
}
