package payments

import (
	"github.com/shopspring/decimal"

	"github.com/dkoroteev/genbot-backend/pkg/enums"
	pkgerrors "github.com/dkoroteev/genbot-backend/pkg/errors"
)

// StarsPayment mirrors Telegram's SuccessfulPayment update for Stars (XTR)
// invoices. Telegram only delivers successful payments; declines never reach
// the webhook.
type StarsPayment struct {
	TelegramPaymentChargeID string `json:"telegram_payment_charge_id" validate:"required"`
	ProviderPaymentChargeID string `json:"provider_payment_charge_id"`
	Currency                string `json:"currency"`
	// TotalAmount is in whole Stars.
	TotalAmount              int64 `json:"total_amount" validate:"gt=0"`
	IsRecurring              bool  `json:"is_recurring"`
	SubscriptionExpirationAt int64 `json:"subscription_expiration_date"`
}

// NormalizeStars maps a Telegram Stars payment onto the neutral event.
func NormalizeStars(p StarsPayment) (ChargeEvent, error) {
	if p.TelegramPaymentChargeID == "" {
		return ChargeEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "telegram charge id is required")
	}

	event := ChargeEvent{
		Provider: enums.PaymentMethodStars,
		ChargeID: p.TelegramPaymentChargeID,
		Outcome:  enums.ChargeOutcomeSucceeded,
		Amount:   decimal.NewFromInt(p.TotalAmount),
		Currency: enums.CurrencyXTR,
	}
	if p.IsRecurring {
		event.MandateID = p.TelegramPaymentChargeID
	}
	return event, nil
}
