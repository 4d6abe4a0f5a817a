package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/giftdrop-backend/api/responses"
	"github.com/angelmondragon/giftdrop-backend/pkg/config"
	"github.com/angelmondragon/giftdrop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
	"github.com/angelmondragon/giftdrop-backend/pkg/telegram"
)

const (
	initDataScheme   = "tma "
	debugLoginHeader = "X-Telegram-Id"
)

type userEnsurer interface {
	Ensure(ctx context.Context, tgUser telegram.WebAppUser) (*models.User, error)
}

// TelegramAuth identifies the mini-app user from signed init data sent as
// `Authorization: tma <initData>` and upserts their profile. When debug login
// is allowed, a bare X-Telegram-Id header is accepted instead.
func TelegramAuth(cfg config.TelegramConfig, allowDebug bool, users userEnsurer, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tgUser, err := identify(r, cfg, allowDebug)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			user, err := users.Ensure(ctx, *tgUser)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			ctx = WithUser(ctx, user.ID, user.TelegramID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, user.ID.String())
				ctx = logg.WithTelegramID(ctx, user.TelegramID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identify(r *http.Request, cfg config.TelegramConfig, allowDebug bool) (*telegram.WebAppUser, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > len(initDataScheme) && strings.EqualFold(raw[:len(initDataScheme)], initDataScheme) {
		data, err := telegram.ValidateInitData(strings.TrimSpace(raw[len(initDataScheme):]), cfg.BotToken, cfg.InitDataMaxAge, time.Now())
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid init data")
		}
		return &data.User, nil
	}

	if allowDebug {
		if header := strings.TrimSpace(r.Header.Get(debugLoginHeader)); header != "" {
			id, err := strconv.ParseInt(header, 10, 64)
			if err != nil || id <= 0 {
				return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid telegram id")
			}
			return &telegram.WebAppUser{ID: id, FirstName: "dev"}, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
}
