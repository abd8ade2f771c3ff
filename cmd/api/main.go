package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chryzcode/ycsyh-site/api/routes"
	"github.com/chryzcode/ycsyh-site/internal/auth"
	"github.com/chryzcode/ycsyh-site/internal/beats"
	"github.com/chryzcode/ycsyh-site/internal/checkout"
	"github.com/chryzcode/ycsyh-site/internal/fulfillment"
	"github.com/chryzcode/ycsyh-site/internal/licenses"
	"github.com/chryzcode/ycsyh-site/internal/orders"
	"github.com/chryzcode/ycsyh-site/internal/uploads"
	"github.com/chryzcode/ycsyh-site/internal/users"
	stripewebhook "github.com/chryzcode/ycsyh-site/internal/webhooks/stripe"
	"github.com/chryzcode/ycsyh-site/pkg/auth/session"
	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/db"
	"github.com/chryzcode/ycsyh-site/pkg/email"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/metrics"
	"github.com/chryzcode/ycsyh-site/pkg/migrate"
	"github.com/chryzcode/ycsyh-site/pkg/outbox"
	"github.com/chryzcode/ycsyh-site/pkg/redis"
	"github.com/chryzcode/ycsyh-site/pkg/storage/s3"
	"github.com/chryzcode/ycsyh-site/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api exited with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT.TTL())
	if err != nil {
		return err
	}

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}
	mailer, err := email.NewClient(cfg.Sendgrid)
	if err != nil {
		return err
	}
	storage, err := s3.NewClient(ctx, cfg.Storage, logg)
	if err != nil {
		return err
	}

	registry := metrics.NewRegistry()
	orderMetrics := metrics.NewOrderMetrics(registry)

	gormDB := dbClient.DB()
	usersRepo := users.NewRepository(gormDB)
	beatsRepo := beats.NewRepository(gormDB)
	ordersRepo := orders.NewRepository(gormDB)
	emitter := outbox.NewService(outbox.NewRepository(gormDB), logg)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:  usersRepo,
		Sessions:  sessionManager,
		JWTConfig: cfg.JWT,
		Password:  &cfg.Password,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	beatService, err := beats.NewService(beatsRepo)
	if err != nil {
		return err
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Beats:    beatsRepo,
		Tx:       dbClient,
		Outbox:   emitter,
		Metrics:  orderMetrics,
		Logger:   logg,
		Currency: cfg.Store.Currency,
	})
	if err != nil {
		return err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:       dbClient,
		Beats:    beatsRepo,
		Orders:   ordersRepo,
		Failer:   orderService,
		Sessions: stripeClient,
		Outbox:   emitter,
		Metrics:  orderMetrics,
		Logger:   logg,
		BaseURL:  cfg.Store.BaseURL,
		Currency: cfg.Store.Currency,
	})
	if err != nil {
		return err
	}

	fulfillmentParams := fulfillment.ServiceParams{
		Sessions:  stripeClient,
		Orders:    ordersRepo,
		Beats:     beatsRepo,
		Tx:        dbClient,
		Outbox:    emitter,
		Contracts: licenses.NewGenerator(),
		Mailer:    mailer,
		Metrics:   orderMetrics,
		Logger:    logg,
		Currency:  cfg.Store.Currency,
	}
	if cfg.FeatureFlags.ArchiveContracts {
		fulfillmentParams.Archive = storage
	}
	fulfillmentService, err := fulfillment.NewService(fulfillmentParams)
	if err != nil {
		return err
	}

	uploadService, err := uploads.NewService(storage, logg)
	if err != nil {
		return err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Fulfillment: fulfillmentService,
		Orders:      orderService,
		Logger:      logg,
	})
	if err != nil {
		return err
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.StripeWebhookTTL)
	if err != nil {
		return err
	}

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		DB:            dbClient,
		Redis:         redisClient,
		Sessions:      sessionManager,
		Users:         usersRepo,
		Metrics:       registry,
		Auth:          authService,
		Beats:         beatService,
		Checkout:      checkoutService,
		Fulfillment:   fulfillmentService,
		Orders:        orderService,
		Uploads:       uploadService,
		StripeEvents:  stripeClient,
		StripeWebhook: webhookService,
		WebhookGuard:  webhookGuard,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   id,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
