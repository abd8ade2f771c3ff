package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/chryzcode/ycsyh-site/internal/beats"
	"github.com/chryzcode/ycsyh-site/internal/cron"
	"github.com/chryzcode/ycsyh-site/internal/orders"
	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/db"
	"github.com/chryzcode/ycsyh-site/pkg/instance"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/metrics"
	"github.com/chryzcode/ycsyh-site/pkg/migrate"
	"github.com/chryzcode/ycsyh-site/pkg/outbox"
	"github.com/chryzcode/ycsyh-site/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
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

	promRegistry := metrics.NewRegistry()
	metrics.Serve(ctx, cfg.Service.MetricsAddr, promRegistry, logg)

	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(gormDB),
		Beats:    beats.NewRepository(gormDB),
		Tx:       dbClient,
		Outbox:   outbox.NewService(outboxRepo, logg),
		Metrics:  metrics.NewOrderMetrics(promRegistry),
		Logger:   logg,
		Currency: cfg.Store.Currency,
	})
	if err != nil {
		return err
	}

	expiryJob, err := cron.NewCheckoutExpiryJob(cron.CheckoutExpiryJobParams{
		Logger:     logg,
		Orders:     orderService,
		PendingTTL: cfg.Cron.CheckoutPendingTTL,
	})
	if err != nil {
		return err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return err
	}
	jobs, err := cron.NewRegistry(expiryJob, retentionJob)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(promRegistry),
		Schedule:   cfg.Cron.Schedule,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return err
	}

	logg.Info(logg.WithField(ctx, "schedule", cfg.Cron.Schedule), "starting cron worker")
	return service.Run(ctx)
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}
