package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/giftdrop-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/giftdrop-backend/api/controllers/webhooks"
	"github.com/angelmondragon/giftdrop-backend/api/middleware"
	"github.com/angelmondragon/giftdrop-backend/pkg/config"
	"github.com/angelmondragon/giftdrop-backend/pkg/cryptopay"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
	"github.com/angelmondragon/giftdrop-backend/pkg/redis"
	"github.com/angelmondragon/giftdrop-backend/pkg/telegram"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type userService interface {
	controllers.ProfileReader
	Ensure(ctx context.Context, tgUser telegram.WebAppUser) (*models.User, error)
}

type giftService interface {
	controllers.GiftCatalog
	controllers.GiftBuyer
	controllers.GiftAdmin
}

type ownershipService interface {
	controllers.AvailableGiftLister
	controllers.OwnedGiftLister
}

type activityService interface {
	controllers.GiftActivityLister
	controllers.UserActivityLister
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, updateID string) (bool, error)
	Forget(ctx context.Context, updateID string) error
}

type linkBuilder interface {
	MiniAppURL(startParam string) string
}

type cacheStore interface {
	redis.IdempotencyStore
	Ping(ctx context.Context) error
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RouterParams carries the services behind the HTTP surface. DB and Cache are
// optional for readiness; Metrics is mounted only when set.
type RouterParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        pinger
	Cache     cacheStore
	Users     userService
	Gifts     giftService
	Invoices  controllers.InvoiceReader
	Ownership ownershipService
	Transfers controllers.TransferService
	Activity  activityService
	Links     linkBuilder
	Webhook   webhookcontrollers.CryptoPayWebhookService
	Guard     webhookGuard
	Gateway   *cryptopay.Client
	Metrics   http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Cache))
	})
	if p.Metrics != nil && cfg.FeatureFlags.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", p.Metrics)
	}

	buyPolicy := middleware.NewRateLimitPolicy("buy", cfg.RateLimit.BuyWindow, cfg.RateLimit.BuyLimit)

	webhook := webhookcontrollers.CryptoPayWebhookParams{
		Service: p.Webhook,
		Guard:   p.Guard,
		Secret:  cfg.CryptoPay.WebhookPath,
		Logger:  logg,
	}
	if cfg.CryptoPay.VerifySignature && p.Gateway != nil {
		webhook.Verifier = p.Gateway
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/cryptopay/{secret}", webhookcontrollers.CryptoPayWebhook(webhook))

		r.Group(func(r chi.Router) {
			r.Use(middleware.TelegramAuth(cfg.Telegram, cfg.Telegram.AllowDebugLogin && !cfg.App.IsProd(), p.Users, logg))
			if p.Cache != nil {
				r.Use(middleware.Idempotency(p.Cache, middleware.IdempotencyOptions{
					Routes:      middleware.IdempotentRoutes,
					TTL:         cfg.Redis.IdempotencyTTL,
					InFlightTTL: cfg.Redis.IdempotencyInFlightTTL,
				}, logg))
			}

			r.Route("/gifts", func(r chi.Router) {
				r.Get("/store", controllers.GiftStore(p.Gifts, logg))
				r.With(middleware.RateLimit(buyPolicy, p.Cache, logg)).Post("/buy", controllers.GiftBuy(p.Gifts, logg))
				r.Get("/invoices/{invoiceId}", controllers.InvoiceStatus(p.Invoices, logg))
				r.Get("/my", controllers.MyGifts(p.Ownership, logg))
				r.Post("/send", controllers.GiftSend(p.Transfers, p.Links, logg))
				r.Post("/receive", controllers.GiftReceive(p.Transfers, logg))
				r.Get("/{giftId}/actions", controllers.GiftActions(p.Activity, logg))
			})

			r.Route("/profile", func(r chi.Router) {
				r.Get("/me", controllers.ProfileMe(p.Users, logg))
				r.Get("/{telegramId}", controllers.ProfileByTelegramID(p.Users, logg))
				r.Get("/{telegramId}/gifts", controllers.ProfileGifts(p.Users, p.Ownership, logg))
				r.Get("/{telegramId}/actions", controllers.ProfileActions(p.Users, p.Activity, logg))
			})

			r.Get("/leaderboard", controllers.Leaderboard(p.Users, logg))

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin(cfg.Telegram, logg))
				r.Post("/gifts", controllers.AdminCreateGift(p.Gifts, logg))
				r.Put("/gifts/{giftId}", controllers.AdminUpdateGift(p.Gifts, logg))
			})
		})
	})

	return r
}
