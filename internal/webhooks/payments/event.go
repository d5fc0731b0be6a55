package payments

import (
	"github.com/shopspring/decimal"

	"github.com/dkoroteev/genbot-backend/pkg/config"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
)

// ChargeEvent is the provider-neutral shape every webhook payload is
// normalized into before the decision table runs.
type ChargeEvent struct {
	Provider  enums.PaymentMethod
	ChargeID  string
	MandateID string
	Outcome   enums.ChargeOutcome
	Amount    decimal.Decimal
	Currency  enums.Currency
	// NetAmount is what the provider reported after fees; nil when the
	// payload omits it.
	NetAmount *decimal.Decimal
}

// EstimateNet resolves the income amount for a charge: the provider-reported
// net when present, otherwise gross*(1-percent)-fixed with the per-provider
// fee schedule from configuration.
func EstimateNet(event ChargeEvent, cfg config.PaymentsConfig) decimal.Decimal {
	if event.NetAmount != nil {
		return *event.NetAmount
	}

	var percent, fixed float64
	switch event.Provider {
	case enums.PaymentMethodYooKassa:
		percent, fixed = cfg.YooKassa.FeePercent, cfg.YooKassa.FeeFixed
	case enums.PaymentMethodStars:
		percent = cfg.Stars.FeePercent
	case enums.PaymentMethodCryptomus:
		percent = cfg.Cryptomus.FeePercent
	}

	keep := decimal.NewFromInt(100).Sub(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100))
	net := event.Amount.Mul(keep).Sub(decimal.NewFromFloat(fixed))
	if net.IsNegative() {
		return decimal.Zero
	}
	return net.Round(2)
}
