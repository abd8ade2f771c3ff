package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/api/middleware"
	"github.com/chryzcode/ycsyh-site/api/responses"
	"github.com/chryzcode/ycsyh-site/api/validators"
	"github.com/chryzcode/ycsyh-site/internal/auth"
	"github.com/chryzcode/ycsyh-site/pkg/config"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

const notAuthenticatedMessage = "Not authenticated"

// CookieSettings controls how the auth cookie is written.
type CookieSettings struct {
	Name   string
	Secure bool
}

// CookieSettingsFrom derives cookie settings from config; Secure is only set in prod.
func CookieSettingsFrom(cfg *config.Config) CookieSettings {
	name := cfg.JWT.CookieName
	if name == "" {
		name = "auth-token"
	}
	return CookieSettings{Name: name, Secure: cfg.App.IsProd()}
}

// AuthLogin verifies credentials and sets the HttpOnly session cookie.
func AuthLogin(svc auth.Service, cookies CookieSettings, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     cookies.Name,
			Value:    result.AccessToken,
			Path:     "/",
			Expires:  result.ExpiresAt,
			MaxAge:   int(time.Until(result.ExpiresAt).Seconds()),
			HttpOnly: true,
			Secure:   cookies.Secure,
			SameSite: http.SameSiteLaxMode,
		})
		responses.WriteSuccess(w, result)
	}
}

// AuthLogout revokes the current session when there is one and always clears
// the cookie.
func AuthLogout(svc auth.Service, cookies CookieSettings, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		if err := svc.Logout(r.Context(), middleware.TokenIDFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     cookies.Name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   cookies.Secure,
			SameSite: http.SameSiteLaxMode,
		})
		responses.WriteSuccess(w, messageResponse{Message: "Logged out successfully"})
	}
}

// AuthMe returns the signed-in user. Mounted behind middleware.Auth.
func AuthMe(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, notAuthenticatedMessage))
			return
		}

		me, err := svc.Me(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, me)
	}
}
