package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/giftdrop-backend/internal/notifications"
	"github.com/angelmondragon/giftdrop-backend/internal/users"
	"github.com/angelmondragon/giftdrop-backend/pkg/config"
	"github.com/angelmondragon/giftdrop-backend/pkg/db"
	"github.com/angelmondragon/giftdrop-backend/pkg/instance"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
	"github.com/angelmondragon/giftdrop-backend/pkg/metrics"
	"github.com/angelmondragon/giftdrop-backend/pkg/migrate"
	"github.com/angelmondragon/giftdrop-backend/pkg/outbox"
	"github.com/angelmondragon/giftdrop-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/giftdrop-backend/pkg/redis"
	"github.com/angelmondragon/giftdrop-backend/pkg/telegram"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: notifications.ConsumerName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: notifications.ConsumerName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Instance:    instance.GetID(),
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	guard, err := idempotency.NewGuard(redisClient, notifications.ConsumerName, cfg.Outbox.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}

	bot, err := telegram.NewBot(cfg.Telegram, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create telegram bot", err)
		os.Exit(1)
	}

	var registerer prometheus.Registerer
	if cfg.FeatureFlags.MetricsEnabled {
		registerer = prometheus.DefaultRegisterer
	}

	conn := dbClient.DB()
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Logger:      logg,
		DB:          dbClient,
		Outbox:      outbox.NewRepository(conn),
		Registry:    outbox.DefaultRegistry(),
		Guard:       guard,
		Notifier:    notifications.NewNotifier(bot, bot.MiniAppURL("")),
		Users:       users.NewRepository(conn),
		Metrics:     metrics.NewLifecycleMetrics(registerer),
		BatchSize:   cfg.Outbox.BatchSize,
		Poll:        time.Duration(cfg.Outbox.PollIntervalMS) * time.Millisecond,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"consumer": notifications.ConsumerName,
	})
	logg.Info(ctx, "starting notification worker")

	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "notification worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "notification worker shutting down gracefully")
}
