package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chryzcode/ycsyh-site/api/responses"
	"github.com/chryzcode/ycsyh-site/internal/users"
	"github.com/chryzcode/ycsyh-site/pkg/config"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

// login bodies are tiny; anything larger is not worth buffering to find the email.
const maxLoginBodyBytes = 16 << 10

type windowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type throttleRule struct {
	scope string
	limit int64
}

// LoginThrottle counts login attempts per client IP and per email address in
// fixed Redis windows. Over either limit the request is refused with 429 and
// a Retry-After header covering the window.
func LoginThrottle(cfg config.AuthRateLimitConfig, limiter windowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || cfg.LoginWindow <= 0 || (cfg.LoginIPLimit <= 0 && cfg.LoginEmailLimit <= 0) {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			rules := make([]throttleRule, 0, 2)

			if cfg.LoginIPLimit > 0 {
				if ip := clientIP(r); ip != "" {
					rules = append(rules, throttleRule{scope: "login:ip:" + ip, limit: int64(cfg.LoginIPLimit)})
				}
			}
			if cfg.LoginEmailLimit > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBodyBytes))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if email := loginEmail(body); email != "" {
					rules = append(rules, throttleRule{scope: "login:email:" + digest(email), limit: int64(cfg.LoginEmailLimit)})
				}
			}

			for _, rule := range rules {
				allowed, attempts, err := limiter.FixedWindowAllow(ctx, rule.scope, rule.limit, cfg.LoginWindow)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
					return
				}
				if allowed {
					continue
				}
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"scope":    rule.scope,
						"attempts": attempts,
						"limit":    rule.limit,
					}), "auth.login.throttled")
				}
				retryAfter := int(cfg.LoginWindow.Round(time.Second).Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "Too many login attempts, try again later").
					WithDetails(map[string]any{"retryAfterSeconds": retryAfter}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the left-most X-Forwarded-For hop, then X-Real-IP, then the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func loginEmail(body []byte) string {
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return users.NormalizeEmail(payload.Email)
}

// digest keeps raw email addresses out of Redis keys.
func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%.16s", hex.EncodeToString(sum[:]))
}
