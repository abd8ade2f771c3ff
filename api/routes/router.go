package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chryzcode/ycsyh-site/api/controllers"
	ordercontrollers "github.com/chryzcode/ycsyh-site/api/controllers/orders"
	webhookcontrollers "github.com/chryzcode/ycsyh-site/api/controllers/webhooks"
	"github.com/chryzcode/ycsyh-site/api/middleware"
	"github.com/chryzcode/ycsyh-site/internal/auth"
	"github.com/chryzcode/ycsyh-site/internal/beats"
	checkoutsvc "github.com/chryzcode/ycsyh-site/internal/checkout"
	"github.com/chryzcode/ycsyh-site/internal/fulfillment"
	"github.com/chryzcode/ycsyh-site/internal/orders"
	"github.com/chryzcode/ycsyh-site/internal/uploads"
	stripewebhook "github.com/chryzcode/ycsyh-site/internal/webhooks/stripe"
	"github.com/chryzcode/ycsyh-site/pkg/auth/session"
	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/db/models"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	pkgredis "github.com/chryzcode/ycsyh-site/pkg/redis"
	"github.com/chryzcode/ycsyh-site/pkg/stripe"
)

// RedisStore is the Redis surface the HTTP layer needs: idempotency replay,
// login throttling and the readiness ping.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type EventVerifier interface {
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

type WebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Dependencies bundles everything NewRouter mounts.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    RedisStore
	Sessions session.Checker
	Users    UserFinder
	Metrics  prometheus.Gatherer

	Auth        auth.Service
	Beats       beats.Service
	Checkout    checkoutsvc.Service
	Fulfillment fulfillment.Service
	Orders      orders.Service
	Uploads     uploads.Service

	StripeEvents  EventVerifier
	StripeWebhook webhookcontrollers.StripeWebhookService
	WebhookGuard  WebhookGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Store.AllowedOrigins),
	)

	idempotent := middleware.Idempotency(deps.Redis, cfg.Eventing.CheckoutIdempotencyTTL, logg)
	cookies := controllers.CookieSettingsFrom(cfg)

	readiness := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readiness["db"] = deps.DB
	}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeEvents, deps.WebhookGuard, logg))

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.LoginThrottle(cfg.AuthRateLimit, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.Auth, cookies, logg))
			// Logout clears a stale cookie even when its session is already gone.
			r.With(middleware.Identify(cfg.JWT, deps.Sessions, logg)).Post("/logout", controllers.AuthLogout(deps.Auth, cookies, logg))
			r.With(middleware.Auth(cfg.JWT, deps.Sessions, logg)).Get("/me", controllers.AuthMe(deps.Auth, logg))
		})

		r.Get("/beats", controllers.BeatList(deps.Beats, logg))
		r.Get("/beats/{id}", controllers.BeatGet(deps.Beats, logg))
		r.Get("/beats/{id}/preview", controllers.BeatPreview(deps.Beats, logg))

		r.With(idempotent).Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Post("/orders/process", ordercontrollers.Process(deps.Fulfillment, logg))
		r.Get("/orders/session/{sessionId}", ordercontrollers.BySession(deps.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(cfg.JWT, deps.Sessions, deps.Users, logg))
			r.Use(idempotent)

			r.Post("/beats", controllers.AdminBeatCreate(deps.Beats, logg))
			r.Put("/beats/{id}", controllers.AdminBeatUpdate(deps.Beats, logg))
			r.Delete("/beats/{id}", controllers.AdminBeatDelete(deps.Beats, logg))
			r.Get("/admin/beats/{id}", controllers.AdminBeatGet(deps.Beats, logg))

			r.Post("/orders/{orderId}/resend-email", ordercontrollers.ResendEmail(deps.Fulfillment, logg))

			r.Post("/upload", controllers.Upload(deps.Uploads, logg))
			r.Post("/upload/signature", controllers.UploadSignature(deps.Uploads, logg))
		})
	})

	return r
}

var (
	_ EventVerifier = (*stripe.Client)(nil)
	_ WebhookGuard  = (*stripewebhook.IdempotencyGuard)(nil)
	_ RedisStore    = (*pkgredis.Client)(nil)
)
