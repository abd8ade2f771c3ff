package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chryzcode/ycsyh-site/pkg/auth"
	"github.com/chryzcode/ycsyh-site/pkg/auth/session"
	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "ycsyh", ExpirationMinutes: 60, CookieName: "auth-token"}
}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWTConfig(), stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(okHandler))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidCookie(t *testing.T) {
	handler := Auth(testJWTConfig(), stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth-token", Value: "invalid"})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsRevokedSession(t *testing.T) {
	cfg := testJWTConfig()
	token, _ := mintTestToken(t, cfg, uuid.New(), false)
	handler := Auth(cfg, stubSessionVerifier{ok: false}, nil)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth-token", Value: token})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSessionStoreErrorIsDependency(t *testing.T) {
	cfg := testJWTConfig()
	token, _ := mintTestToken(t, cfg, uuid.New(), false)
	handler := Auth(cfg, stubSessionVerifier{err: errors.New("redis down")}, nil)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth-token", Value: token})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

func TestAuthAllowsValidCookie(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()
	token, jti := mintTestToken(t, cfg, userID, false)

	var gotUser, gotToken string
	handler := Auth(cfg, stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotToken = TokenIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth-token", Value: token})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotUser != userID.String() {
		t.Fatalf("expected user %s got %s", userID, gotUser)
	}
	if gotToken != jti {
		t.Fatalf("expected token id %s got %s", jti, gotToken)
	}
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	cfg := testJWTConfig()
	token, _ := mintTestToken(t, cfg, uuid.New(), false)
	handler := Auth(cfg, stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	cfg := testJWTConfig()
	adminID := uuid.New()
	buyerID := uuid.New()
	users := stubUsers{
		adminID: {ID: adminID, Email: "admin@ycsyh.com", IsAdmin: true},
		buyerID: {ID: buyerID, Email: "fan@example.com"},
	}

	tests := []struct {
		name   string
		userID uuid.UUID
		// claim says admin, row decides
		claimAdmin bool
		want       int
	}{
		{name: "admin row", userID: adminID, claimAdmin: true, want: http.StatusOK},
		{name: "demoted user with admin claim", userID: buyerID, claimAdmin: true, want: http.StatusForbidden},
		{name: "deleted user", userID: uuid.New(), claimAdmin: true, want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _ := mintTestToken(t, cfg, tt.userID, tt.claimAdmin)
			var identity AdminIdentity
			handler := RequireAdmin(cfg, stubSessionVerifier{ok: true}, users, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, _ = AdminFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/beats", nil)
			req.AddCookie(&http.Cookie{Name: "auth-token", Value: token})
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tt.want {
				t.Fatalf("expected %d got %d", tt.want, resp.Code)
			}
			if tt.want == http.StatusOK && identity.UserID != adminID {
				t.Fatalf("expected admin identity in context, got %+v", identity)
			}
		})
	}
}

func TestRequireAdminWithoutCookie(t *testing.T) {
	handler := RequireAdmin(testJWTConfig(), stubSessionVerifier{ok: true}, stubUsers{}, nil)(http.HandlerFunc(okHandler))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/api/beats/1", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if resp.Body.Len() == 0 {
		t.Fatal("expected error body")
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, isAdmin bool) (string, string) {
	t.Helper()
	jti := session.NewTokenID()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		UserID:  userID,
		Email:   "someone@example.com",
		IsAdmin: isAdmin,
		JTI:     jti,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, jti
}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(context.Context, string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.ok, nil
}

type stubUsers map[uuid.UUID]*models.User

func (s stubUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}
