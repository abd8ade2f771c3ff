package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chryzcode/ycsyh-site/internal/analytics/router"
	"github.com/chryzcode/ycsyh-site/internal/analytics/worker"
	"github.com/chryzcode/ycsyh-site/internal/analytics/writer"
	"github.com/chryzcode/ycsyh-site/pkg/bigquery"
	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/instance"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/idempotency"
	"github.com/chryzcode/ycsyh-site/pkg/outbox/registry"
	"github.com/chryzcode/ycsyh-site/pkg/pubsub"
	"github.com/chryzcode/ycsyh-site/pkg/redis"
)

const serviceKind = "worker"

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
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return resourceErr("redis", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return resourceErr("pubsub", err)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()
	if err := pubsubClient.EnsureOrdersSubscription(ctx); err != nil {
		return resourceErr("orders subscription", err)
	}

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return resourceErr("bigquery", err)
	}
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing bigquery client", err)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return resourceErr("idempotency manager", err)
	}

	salesWriter, err := writer.New(bqClient, writer.Config{
		SalesTable: bqClient.SalesTable(),
		BatchSize:  1,
	})
	if err != nil {
		return resourceErr("sales writer", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := salesWriter.Flush(flushCtx); err != nil {
			logg.Error(flushCtx, "failed to flush sales rows", err)
		}
	}()

	handler, err := router.NewRouter(registry.NewOrderDecoderRegistry(), salesWriter, logg)
	if err != nil {
		return resourceErr("sales router", err)
	}

	service, err := worker.NewService(pubsubClient.OrdersSubscription(), handler, manager, logg)
	if err != nil {
		return resourceErr("worker service", err)
	}

	logg.Info(ctx, "worker ready")
	return service.Run(ctx)
}

func resourceErr(resource string, err error) error {
	return fmt.Errorf("resource not working: %s: %w", resource, err)
}
