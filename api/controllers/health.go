package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/giftdrop-backend/api/responses"
	"github.com/angelmondragon/giftdrop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/giftdrop-backend/pkg/errors"
	"github.com/angelmondragon/giftdrop-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Giftdrop-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and redis. Nil dependencies are skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, database, cache pinger) http.HandlerFunc {
	checks := map[string]pinger{"db": database, "redis": cache}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Giftdrop-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		for name, dep := range checks {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
