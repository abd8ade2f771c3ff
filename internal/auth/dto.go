package auth

import (
	"time"

	"github.com/chryzcode/ycsyh-site/internal/users"
)

// LoginRequest captures the credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResult carries the token for the auth cookie; the token itself is never
// written to the JSON body.
type LoginResult struct {
	AccessToken string         `json:"-"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	User        *users.UserDTO `json:"user"`
}

// MeResponse is returned by /auth/me.
type MeResponse struct {
	User *users.UserDTO `json:"user"`
}
