package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/chryzcode/ycsyh-site/api/responses"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	pkgredis "github.com/chryzcode/ycsyh-site/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	defaultIdempotencyTTL = 24 * time.Hour
	inFlightTTL           = 2 * time.Minute
	maxIdempotencyKeyLen  = 255
	maxReplayBodyBytes    = 1 << 20
)

// reservation is what the key holds while the first request runs.
type reservation struct {
	State       string            `json:"state"`
	RequestHash string            `json:"request_hash"`
	Status      int               `json:"status,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

const (
	stateInFlight = "in_flight"
	stateDone     = "done"
)

// Idempotency makes retried checkout, resend-email and beat-create calls safe. The first
// request with a given key reserves it; a concurrent duplicate gets 409, a
// later duplicate with the same body gets the stored response, and a
// duplicate with a different body gets 409. 5xx responses release the key.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if store == nil || clientKey == "" || !isIdempotentRoute(r) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxReplayBodyBytes+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body could not be read"))
				return
			}
			if len(body) > maxReplayBodyBytes {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeTooLarge, "request body too large"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			digest := requestDigest(body)
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)

			pending, err := json.Marshal(reservation{State: stateInFlight, RequestHash: digest})
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency reservation"))
				return
			}
			reserved, err := store.SetNX(ctx, key, string(pending), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayOrReject(ctx, store, key, digest, w, logg)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.statusCode()
			if status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil {
					logError(ctx, logg, "idempotency.release_failed", err)
				}
				return
			}
			done := reservation{
				State:       stateDone,
				RequestHash: digest,
				Status:      status,
				Body:        rec.body.Bytes(),
				ContentType: rec.Header().Get("Content-Type"),
			}
			if loc := rec.Header().Get("Location"); loc != "" {
				done.Headers = map[string]string{"Location": loc}
			}
			payload, err := json.Marshal(done)
			if err != nil {
				logError(ctx, logg, "idempotency.encode_failed", err)
				return
			}
			// The store only exposes SetNX, so the in-flight marker is cleared first.
			if err := store.Del(ctx, key); err != nil {
				logError(ctx, logg, "idempotency.store_failed", err)
				return
			}
			if _, err := store.SetNX(ctx, key, string(payload), ttl); err != nil {
				logError(ctx, logg, "idempotency.store_failed", err)
			}
		})
	}
}

func replayOrReject(ctx context.Context, store pkgredis.IdempotencyStore, key, digest string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// Released between SetNX and Get; the first attempt failed.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "previous request with this Idempotency-Key failed, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	var prior reservation
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	if prior.RequestHash != digest {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "Idempotency-Key reused with a different request body"))
		return
	}
	if prior.State != stateDone {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
		return
	}

	h := w.Header()
	if prior.ContentType != "" {
		h.Set("Content-Type", prior.ContentType)
	}
	for name, value := range prior.Headers {
		h.Set(name, value)
	}
	h.Set(ReplayedHeader, "true")
	w.WriteHeader(prior.Status)
	_, _ = w.Write(prior.Body)
}

// idempotencyScope keeps keys from colliding across users and order ids.
func idempotencyScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func isIdempotentRoute(r *http.Request) bool {
	pattern := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			pattern = p
		}
	}
	// Checkout and resend open a Stripe session or send mail; beat creation
	// inserts a catalog row.
	switch r.Method + " " + pattern {
	case "POST /api/checkout", "POST /api/orders/{orderId}/resend-email", "POST /api/beats":
		return true
	}
	return false
}

func requestDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	if c.body.Len() < maxReplayBodyBytes {
		c.body.Write(b)
	}
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
