package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dkoroteev/genbot-backend/api/controllers"
	webhookcontrollers "github.com/dkoroteev/genbot-backend/api/controllers/webhooks"
	"github.com/dkoroteev/genbot-backend/api/middleware"
	"github.com/dkoroteev/genbot-backend/internal/requests"
	"github.com/dkoroteev/genbot-backend/pkg/config"
	"github.com/dkoroteev/genbot-backend/pkg/db"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
	"github.com/dkoroteev/genbot-backend/pkg/redis"
)

// NewRouter assembles the webhook API surface: health probes, the payment
// provider callbacks, and the generation completion callback.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	chargeService webhookcontrollers.ChargeService,
	requestsService requests.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/yookassa", webhookcontrollers.YooKassaWebhook(chargeService, logg))
		r.Post("/stars", webhookcontrollers.StarsWebhook(chargeService, logg))
		r.Post("/cryptomus", webhookcontrollers.CryptomusWebhook(chargeService, logg))
		r.Post("/generations", webhookcontrollers.GenerationComplete(requestsService, logg))
	})

	return r
}
