package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
)

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	SessionKey(tokenID string) string
}

// Store is the Redis surface the registry needs; *redis.Client satisfies it.
type Store interface {
	sessionStore
	sessionKeyer
}

// Checker exposes the read-only surface needed by middleware.
type Checker interface {
	HasSession(ctx context.Context, tokenID string) (bool, error)
}

// Manager tracks live logins by JWT id so a token can be revoked before it expires.
type Manager struct {
	store sessionStore
	keyer sessionKeyer
	ttl   time.Duration
}

// NewManager builds a registry whose entries live as long as the access token.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &Manager{store: store, keyer: store, ttl: ttl}, nil
}

// NewTokenID produces the identifier used as the JWT jti and registry key.
func NewTokenID() string {
	return uuid.NewString()
}

// Register records tokenID as an active session owned by userID.
func (m *Manager) Register(ctx context.Context, tokenID string, userID uuid.UUID) error {
	if strings.TrimSpace(tokenID) == "" {
		return errors.New("token id is required")
	}
	if err := m.store.Set(ctx, m.keyer.SessionKey(tokenID), userID.String(), m.ttl); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

// Revoke deletes the session; revoking an unknown id is not an error.
func (m *Manager) Revoke(ctx context.Context, tokenID string) error {
	if strings.TrimSpace(tokenID) == "" {
		return errors.New("token id is required")
	}
	return m.store.Del(ctx, m.keyer.SessionKey(tokenID))
}

// HasSession reports whether tokenID is still registered.
func (m *Manager) HasSession(ctx context.Context, tokenID string) (bool, error) {
	if strings.TrimSpace(tokenID) == "" {
		return false, nil
	}
	if _, err := m.store.Get(ctx, m.keyer.SessionKey(tokenID)); err != nil {
		if errors.Is(err, redislib.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
