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

	"github.com/angelmondragon/giftdrop-backend/api/routes"
	"github.com/angelmondragon/giftdrop-backend/internal/activities"
	"github.com/angelmondragon/giftdrop-backend/internal/gifts"
	"github.com/angelmondragon/giftdrop-backend/internal/invoices"
	"github.com/angelmondragon/giftdrop-backend/internal/ownership"
	"github.com/angelmondragon/giftdrop-backend/internal/payments"
	"github.com/angelmondragon/giftdrop-backend/internal/transfers"
	"github.com/angelmondragon/giftdrop-backend/internal/users"
	cryptopaywebhook "github.com/angelmondragon/giftdrop-backend/internal/webhooks/cryptopay"
	"github.com/angelmondragon/giftdrop-backend/pkg/config"
	"github.com/angelmondragon/giftdrop-backend/pkg/cryptopay"
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

	var registerer prometheus.Registerer
	if cfg.FeatureFlags.MetricsEnabled {
		registerer = prometheus.DefaultRegisterer
	}
	lifecycle := metrics.NewLifecycleMetrics(registerer)

	gateway, err := cryptopay.NewClient(cryptopay.ClientParams{Config: cfg.CryptoPay, Observer: lifecycle})
	if err != nil {
		logg.Error(context.Background(), "failed to create crypto pay client", err)
		os.Exit(1)
	}
	bot, err := telegram.NewBot(cfg.Telegram, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create telegram bot", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	ledger := invoices.NewRepository(conn)
	giftRepo := gifts.NewRepository(conn)
	ownershipRepo := ownership.NewRepository(conn)
	activityRepo := activities.NewRepository(conn)
	userRepo := users.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	giftService, err := gifts.NewService(gifts.ServiceParams{
		DB:            dbClient,
		Gifts:         giftRepo,
		Ledger:        ledger,
		Gateway:       gateway,
		Logger:        logg,
		Metrics:       lifecycle,
		HardExpiry:    cfg.Reconciler.InvoiceHardExpiry,
		GatewayExpiry: cfg.CryptoPay.InvoiceExpiry,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create gift service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(dbClient, payments.Repositories{
		Invoices:   ledger,
		Gifts:      giftRepo,
		Ownership:  ownershipRepo,
		Activities: activityRepo,
		Users:      userRepo,
	}, emitter, lifecycle, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	transferService, err := transfers.NewService(transfers.ServiceParams{
		DB:         dbClient,
		Transfers:  transfers.NewRepository(conn),
		Ownership:  ownershipRepo,
		Activities: activityRepo,
		Users:      userRepo,
		Outbox:     emitter,
		Metrics:    lifecycle,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create transfer service", err)
		os.Exit(1)
	}

	webhookService, err := cryptopaywebhook.NewService(paymentService, logg.Named(cryptopaywebhook.ConsumerName))
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := idempotency.NewGuard(redisClient, cryptopaywebhook.ConsumerName, cfg.Redis.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Cache:     redisClient,
			Users:     users.NewService(userRepo),
			Gifts:     giftService,
			Invoices:  invoices.NewService(ledger),
			Ownership: ownership.NewService(ownershipRepo),
			Transfers: transferService,
			Activity:  activities.NewService(activityRepo),
			Links:     bot,
			Webhook:   webhookService,
			Guard:     webhookGuard,
			Gateway:   gateway,
			Metrics:   promhttp.Handler(),
		}),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
