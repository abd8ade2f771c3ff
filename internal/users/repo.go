package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/internal/repo"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
)

// Repository exposes user persistence.
type Repository struct {
	repo.Base[models.User]
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase[models.User](db)}
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("password_hash", hash).Error
}

// Upsert creates the user or, when the email already exists, replaces its
// name, password hash and admin flag. created reports which happened.
func (r *Repository) Upsert(ctx context.Context, dto UpsertUserDTO) (user *models.User, created bool, err error) {
	email := NormalizeEmail(dto.Email)
	err = r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.User
		findErr := tx.Where("email = ?", email).First(&existing).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			fresh := models.User{
				ID:           uuid.New(),
				Email:        email,
				Name:         dto.Name,
				PasswordHash: dto.PasswordHash,
				IsAdmin:      dto.IsAdmin,
			}
			if err := tx.Create(&fresh).Error; err != nil {
				return err
			}
			user, created = &fresh, true
			return nil
		case findErr != nil:
			return findErr
		}

		if err := tx.Model(&existing).Updates(map[string]any{
			"name":          dto.Name,
			"password_hash": dto.PasswordHash,
			"is_admin":      dto.IsAdmin,
		}).Error; err != nil {
			return err
		}
		existing.Name = dto.Name
		existing.PasswordHash = dto.PasswordHash
		existing.IsAdmin = dto.IsAdmin
		user = &existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}
