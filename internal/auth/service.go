package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/internal/users"
	pkgAuth "github.com/chryzcode/ycsyh-site/pkg/auth"
	"github.com/chryzcode/ycsyh-site/pkg/auth/session"
	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/security"
)

const (
	invalidCredentialsMessage = "Invalid email or password"
	notAuthenticatedMessage   = "Not authenticated"
)

// Service defines the behavior needed by the auth controllers.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, tokenID string) error
	Me(ctx context.Context, userID uuid.UUID) (*MeResponse, error)
}

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type sessionRegistry interface {
	Register(ctx context.Context, tokenID string, userID uuid.UUID) error
	Revoke(ctx context.Context, tokenID string) error
}

type service struct {
	users    userRepository
	sessions sessionRegistry
	jwtCfg   config.JWTConfig
	password *config.PasswordConfig
	logg     *logger.Logger
	now      func() time.Time
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo  userRepository
	Sessions  sessionRegistry
	JWTConfig config.JWTConfig
	// Password, when set, upgrades hashes made with older argon2 settings
	// on successful login.
	Password *config.PasswordConfig
	Logger   *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if params.JWTConfig.TTL() <= 0 {
		return nil, fmt.Errorf("jwt expiration must be positive")
	}
	return &service{
		users:    params.UserRepo,
		sessions: params.Sessions,
		jwtCfg:   params.JWTConfig,
		password: params.Password,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	s.maybeRehash(ctx, user, req.Password)

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	user.LastLoginAt = &now

	tokenID := session.NewTokenID()
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID:  user.ID,
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
		JTI:     tokenID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if err := s.sessions.Register(ctx, tokenID, user.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "register session")
	}

	return &LoginResult{
		AccessToken: token,
		ExpiresAt:   now.Add(s.jwtCfg.TTL()),
		User:        users.FromModel(user),
	}, nil
}

// Logout revokes the session; an empty token id is a no-op so logout is always safe to call.
func (s *service) Logout(ctx context.Context, tokenID string) error {
	if strings.TrimSpace(tokenID) == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, tokenID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revoke session")
	}
	return nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*MeResponse, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, notAuthenticatedMessage)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, notAuthenticatedMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return &MeResponse{User: users.FromModel(user)}, nil
}

// maybeRehash is best effort: the login already succeeded with the old hash.
func (s *service) maybeRehash(ctx context.Context, user *models.User, password string) {
	if s.password == nil || !security.NeedsRehash(user.PasswordHash, *s.password) {
		return
	}
	hash, err := security.HashPassword(password, *s.password)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithUserID(ctx, user.ID.String()), "auth.rehash_failed", err)
		}
		return
	}
	user.PasswordHash = hash
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	input := users.NormalizeEmail(email)
	if input == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByEmail(ctx, input)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	valid, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return user, nil
}
