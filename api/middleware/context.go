package middleware

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	tokenIDKey
	adminKey
	requestIDKey
)

// AdminIdentity is placed on the context by RequireAdmin.
type AdminIdentity struct {
	UserID uuid.UUID
	Email  string
}

func lookup[T any](ctx context.Context, key ctxKey) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	return v, ok
}

func with(ctx context.Context, key ctxKey, v any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

// UserIDFromContext is empty for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	id, _ := lookup[string](ctx, userIDKey)
	return id
}

// TokenIDFromContext returns the jti of the verified auth cookie.
func TokenIDFromContext(ctx context.Context) string {
	id, _ := lookup[string](ctx, tokenIDKey)
	return id
}

func AdminFromContext(ctx context.Context) (AdminIdentity, bool) {
	return lookup[AdminIdentity](ctx, adminKey)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return with(ctx, userIDKey, userID)
}

func WithTokenID(ctx context.Context, tokenID string) context.Context {
	return with(ctx, tokenIDKey, tokenID)
}

// WithAdmin also sets the user id, so handlers tested without RequireAdmin
// see the same context shape.
func WithAdmin(ctx context.Context, admin AdminIdentity) context.Context {
	return with(WithUserID(ctx, admin.UserID.String()), adminKey, admin)
}
