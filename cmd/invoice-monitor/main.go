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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/giftdrop-backend/internal/activities"
	"github.com/angelmondragon/giftdrop-backend/internal/cron"
	"github.com/angelmondragon/giftdrop-backend/internal/gifts"
	"github.com/angelmondragon/giftdrop-backend/internal/invoices"
	"github.com/angelmondragon/giftdrop-backend/internal/ownership"
	"github.com/angelmondragon/giftdrop-backend/internal/payments"
	"github.com/angelmondragon/giftdrop-backend/internal/users"
	"github.com/angelmondragon/giftdrop-backend/pkg/config"
	"github.com/angelmondragon/giftdrop-backend/pkg/cryptopay"
	"github.com/angelmondragon/giftdrop-backend/pkg/db"
	"github.com/angelmondragon/giftdrop-backend/pkg/instance"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
	"github.com/angelmondragon/giftdrop-backend/pkg/metrics"
	"github.com/angelmondragon/giftdrop-backend/pkg/migrate"
	"github.com/angelmondragon/giftdrop-backend/pkg/outbox"
	"github.com/angelmondragon/giftdrop-backend/pkg/redis"
)

const serviceName = "invoice-monitor"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
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

	var registerer prometheus.Registerer
	if cfg.FeatureFlags.MetricsEnabled {
		registerer = prometheus.DefaultRegisterer
	}
	lifecycle := metrics.NewLifecycleMetrics(registerer)
	cronMetrics := metrics.NewCronJobMetrics(registerer)

	gateway, err := cryptopay.NewClient(cryptopay.ClientParams{Config: cfg.CryptoPay, Observer: lifecycle})
	if err != nil {
		logg.Error(context.Background(), "failed to create crypto pay client", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	ledger := invoices.NewRepository(conn)
	outboxRepo := outbox.NewRepository(conn)
	paymentService, err := payments.NewService(dbClient, payments.Repositories{
		Invoices:   ledger,
		Gifts:      gifts.NewRepository(conn),
		Ownership:  ownership.NewRepository(conn),
		Activities: activities.NewRepository(conn),
		Users:      users.NewRepository(conn),
	}, outbox.NewService(outboxRepo, logg), lifecycle, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	sweepParams := cron.SweepJobParams{
		Logger:    logg,
		Invoices:  ledger,
		Gateway:   gateway,
		Payments:  paymentService,
		BatchSize: cfg.Reconciler.BatchSize,
		Timeout:   cfg.CryptoPay.Timeout,
	}
	reconcileJob, err := cron.NewInvoiceReconcileJob(sweepParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile job", err)
		os.Exit(1)
	}
	expiryJob, err := cron.NewInvoiceLocalExpiryJob(sweepParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create local expiry job", err)
		os.Exit(1)
	}
	invoiceRetention, err := cron.NewInvoiceRetentionJob(cron.InvoiceRetentionJobParams{
		Logger:    logg,
		Invoices:  ledger,
		Retention: cfg.Reconciler.InvoiceRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create invoice retention job", err)
		os.Exit(1)
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Outbox:        outboxRepo,
		RetentionDays: cfg.Outbox.RetentionDays,
		MinAttempts:   cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	sweepLock, maintenanceLock, closeLocks, err := newLocks(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron locks", err)
		os.Exit(1)
	}
	defer closeLocks()

	sweeps, err := cron.NewService(cron.ServiceParams{
		Name:     "invoice-sweeps",
		Logger:   logg.Named("invoice-sweeps"),
		Registry: cron.NewRegistry(reconcileJob, expiryJob),
		Lock:     sweepLock,
		Metrics:  cronMetrics,
		Interval: cfg.Reconciler.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}
	maintenance, err := cron.NewService(cron.ServiceParams{
		Name:     "maintenance",
		Logger:   logg.Named("maintenance"),
		Registry: cron.NewRegistry(invoiceRetention, outboxRetention),
		Lock:     maintenanceLock,
		Metrics:  cronMetrics,
		Interval: cfg.Reconciler.MaintenanceInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Reconciler.Interval,
		"batch":    cfg.Reconciler.BatchSize,
	})
	logg.Info(ctx, "starting invoice monitor")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return sweeps.Run(groupCtx) })
	group.Go(func() error { return maintenance.Run(groupCtx) })
	if cfg.FeatureFlags.MetricsEnabled {
		serveMetrics(groupCtx, group, cfg)
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "invoice monitor stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "invoice monitor shutting down gracefully")
}

// newLocks uses redis so only one monitor replica sweeps at a time. Sqlite
// deployments are single instance and fall back to in-process locks.
func newLocks(cfg *config.Config, logg *logger.Logger) (cron.Lock, cron.Lock, func(), error) {
	if cfg.DB.Driver == db.DriverSQLite {
		return &cron.LocalLock{}, &cron.LocalLock{}, func() {}, nil
	}
	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}
	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	sweepLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName+":sweeps:"+env), cfg.Reconciler.LockTTL)
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	maintenanceLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName+":maintenance:"+env), cfg.Reconciler.LockTTL)
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	return sweepLock, maintenanceLock, closeFn, nil
}

func serveMetrics(ctx context.Context, group *errgroup.Group, cfg *config.Config) {
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}
