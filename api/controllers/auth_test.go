package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/api/middleware"
	"github.com/chryzcode/ycsyh-site/internal/auth"
	"github.com/chryzcode/ycsyh-site/internal/users"
	"github.com/chryzcode/ycsyh-site/pkg/config"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
)

type stubAuthService struct {
	login      *auth.LoginResult
	me         *auth.MeResponse
	err        error
	revokedJTI string
}

func (s *stubAuthService) Login(context.Context, auth.LoginRequest) (*auth.LoginResult, error) {
	return s.login, s.err
}

func (s *stubAuthService) Logout(_ context.Context, tokenID string) error {
	s.revokedJTI = tokenID
	return s.err
}

func (s *stubAuthService) Me(_ context.Context, userID uuid.UUID) (*auth.MeResponse, error) {
	if s.me == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, notAuthenticatedMessage)
	}
	return s.me, s.err
}

func TestCookieSettingsFrom(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "prod"}, JWT: config.JWTConfig{CookieName: "auth-token"}}
	if got := CookieSettingsFrom(cfg); got.Name != "auth-token" || !got.Secure {
		t.Fatalf("expected secure auth-token cookie in prod, got %+v", got)
	}
	cfg.App.Env = "dev"
	cfg.JWT.CookieName = ""
	if got := CookieSettingsFrom(cfg); got.Name != "auth-token" || got.Secure {
		t.Fatalf("expected insecure default cookie in dev, got %+v", got)
	}
}

func TestAuthLoginSetsCookie(t *testing.T) {
	user := &users.UserDTO{ID: uuid.New(), Email: "admin@ycsyh.test", Name: "Admin", IsAdmin: true}
	svc := &stubAuthService{login: &auth.LoginResult{AccessToken: "jwt-token", ExpiresAt: time.Now().Add(7 * 24 * time.Hour), User: user}}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"admin@ycsyh.test","password":"Secret#1"}`))
	rec := httptest.NewRecorder()
	AuthLogin(svc, CookieSettings{Name: "auth-token", Secure: true}, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "auth-token" || c.Value != "jwt-token" || !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie %+v", c)
	}
	if strings.Contains(rec.Body.String(), "jwt-token") {
		t.Fatalf("token must not appear in the body")
	}
	var got auth.LoginResult
	decodeData(t, rec, &got)
	if got.User == nil || !got.User.IsAdmin {
		t.Fatalf("expected user in body, got %+v", got)
	}
}

func TestAuthLoginFailure(t *testing.T) {
	svc := &stubAuthService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "Invalid email or password")}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"admin@ycsyh.test","password":"wrong"}`))
	rec := httptest.NewRecorder()
	AuthLogin(svc, CookieSettings{Name: "auth-token"}, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("no cookie on failure")
	}
}

func TestAuthLogoutClearsCookie(t *testing.T) {
	svc := &stubAuthService{}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req = req.WithContext(middleware.WithTokenID(req.Context(), "jti-1"))
	rec := httptest.NewRecorder()
	AuthLogout(svc, CookieSettings{Name: "auth-token"}, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.revokedJTI != "jti-1" {
		t.Fatalf("expected session jti-1 revoked, got %q", svc.revokedJTI)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 || cookies[0].Value != "" {
		t.Fatalf("expected expired cookie, got %+v", cookies)
	}
}

func TestAuthMe(t *testing.T) {
	user := &users.UserDTO{ID: uuid.New(), Email: "admin@ycsyh.test", IsAdmin: true}
	svc := &stubAuthService{me: &auth.MeResponse{User: user}}

	rec := httptest.NewRecorder()
	AuthMe(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 anonymous, got %d", rec.Code)
	}
	if msg := decodeError(t, rec).Error.Message; msg != "Not authenticated" {
		t.Fatalf("unexpected message %q", msg)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), user.ID.String()))
	rec = httptest.NewRecorder()
	AuthMe(svc, testLogger()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got auth.MeResponse
	decodeData(t, rec, &got)
	if got.User == nil || got.User.ID != user.ID {
		t.Fatalf("unexpected user %+v", got.User)
	}
}
