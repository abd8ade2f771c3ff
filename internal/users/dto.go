package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/pkg/db/models"
)

// UserDTO is the transport shape that omits the password hash.
type UserDTO struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	IsAdmin     bool       `json:"isAdmin"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// UpsertUserDTO holds what create-admin needs to persist an account.
type UpsertUserDTO struct {
	Email        string
	Name         string
	PasswordHash string
	IsAdmin      bool
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		IsAdmin:     u.IsAdmin,
		LastLoginAt: u.LastLoginAt,
	}
}

// NormalizeEmail trims and lowercases; stored emails are always in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
