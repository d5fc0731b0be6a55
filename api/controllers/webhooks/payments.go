package webhooks

import (
	"context"
	"net/http"

	"github.com/dkoroteev/genbot-backend/api/responses"
	"github.com/dkoroteev/genbot-backend/api/validators"
	"github.com/dkoroteev/genbot-backend/internal/webhooks/payments"
	pkgerrors "github.com/dkoroteev/genbot-backend/pkg/errors"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
)

// ChargeService consumes normalized charge events.
type ChargeService interface {
	HandleCharge(ctx context.Context, event payments.ChargeEvent) error
}

// YooKassaWebhook handles card gateway payment notifications.
func YooKassaWebhook(svc ChargeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		var notification payments.YooKassaNotification
		if err := validators.DecodeJSONBody(r, &notification); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		event, err := payments.NormalizeYooKassa(notification)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.HandleCharge(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// StarsWebhook handles Telegram Stars successful-payment callbacks relayed by
// the bot frontend.
func StarsWebhook(svc ChargeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		var payment payments.StarsPayment
		if err := validators.DecodeJSONBody(r, &payment); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		event, err := payments.NormalizeStars(payment)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.HandleCharge(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// CryptomusWebhook handles crypto gateway payment notifications.
func CryptomusWebhook(svc ChargeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		var notification payments.CryptomusNotification
		if err := validators.DecodeJSONBody(r, &notification); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		event, err := payments.NormalizeCryptomus(notification)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.HandleCharge(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}
