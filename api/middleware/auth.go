package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/api/responses"
	pkgAuth "github.com/chryzcode/ycsyh-site/pkg/auth"
	"github.com/chryzcode/ycsyh-site/pkg/auth/session"
	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

const (
	unauthorizedMessage     = "Unauthorized"
	notAuthenticatedMessage = "Not authenticated"
	adminRequiredMessage    = "Forbidden - Admin access required"
)

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenFromRequest reads the auth cookie, falling back to a bearer header for
// non-browser clients.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil {
		if v := strings.TrimSpace(cookie.Value); v != "" {
			return v
		}
	}
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return ""
}

// Auth guards the signed-in user's own routes. It verifies the auth cookie
// and its live session, then seeds the request context with the user and
// token ids. Rejections read "Not authenticated".
func Auth(cfg config.JWTConfig, verifier session.Checker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verify(r, cfg, verifier)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
					err = pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, notAuthenticatedMessage)
				}
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims, logg)))
		})
	}
}

// Identify attaches the caller's identity when a valid session cookie is
// present and passes anonymous requests through untouched. Session store
// failures are treated as anonymous.
func Identify(cfg config.JWTConfig, verifier session.Checker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verify(r, cfg, verifier)
			if err != nil {
				if logg != nil && pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
					logg.Warn(r.Context(), "auth.identify.session_check_failed")
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims, logg)))
		})
	}
}

// RequireAdmin guards the admin route group. The user row is re-read on every
// request so a revoked admin flag takes effect before the token expires.
func RequireAdmin(cfg config.JWTConfig, verifier session.Checker, users userLookup, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verify(r, cfg, verifier)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			user, err := users.FindByID(r.Context(), claims.UserID)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, unauthorizedMessage))
				return
			case err != nil:
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user"))
				return
			}
			if !user.IsAdmin {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, adminRequiredMessage))
				return
			}

			ctx := WithTokenID(r.Context(), claims.ID)
			ctx = WithAdmin(ctx, AdminIdentity{UserID: user.ID, Email: user.Email})
			if logg != nil {
				ctx = logg.WithUserID(ctx, user.ID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withClaims(ctx context.Context, claims *pkgAuth.AccessTokenClaims, logg *logger.Logger) context.Context {
	userID := claims.UserID.String()
	ctx = WithTokenID(WithUserID(ctx, userID), claims.ID)
	if logg != nil {
		ctx = logg.WithUserID(ctx, userID)
	}
	return ctx
}

func verify(r *http.Request, cfg config.JWTConfig, verifier session.Checker) (*pkgAuth.AccessTokenClaims, error) {
	token := TokenFromRequest(r, cfg.CookieName)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, unauthorizedMessage)
	}
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, unauthorizedMessage)
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, unauthorizedMessage)
	}
	if verifier != nil {
		ok, err := verifier.HasSession(r.Context(), claims.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, unauthorizedMessage)
		}
	}
	return claims, nil
}
