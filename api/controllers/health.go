package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/dkoroteev/genbot-backend/api/responses"
	"github.com/dkoroteev/genbot-backend/pkg/config"
	"github.com/dkoroteev/genbot-backend/pkg/db"
	pkgerrors "github.com/dkoroteev/genbot-backend/pkg/errors"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
	"github.com/dkoroteev/genbot-backend/pkg/redis"
)

const readyProbeTimeout = 2 * time.Second

// HealthLive answers as soon as the process serves traffic.
func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-GenBot-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady verifies the backing stores before reporting ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
		defer cancel()

		w.Header().Set("X-GenBot-Env", cfg.App.Env)

		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
				return
			}
		}
		if redisP != nil {
			if err := redisP.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
