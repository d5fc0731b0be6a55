package payments

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dkoroteev/genbot-backend/pkg/enums"
	pkgerrors "github.com/dkoroteev/genbot-backend/pkg/errors"
)

// CryptomusNotification is the payment webhook body Cryptomus posts.
type CryptomusNotification struct {
	UUID           string `json:"uuid" validate:"required"`
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	PayerAmount    string `json:"payer_amount"`
	MerchantAmount string `json:"merchant_amount"`
}

// NormalizeCryptomus maps a Cryptomus notification onto the neutral event.
func NormalizeCryptomus(n CryptomusNotification) (ChargeEvent, error) {
	if n.UUID == "" {
		return ChargeEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "payment uuid is required")
	}

	event := ChargeEvent{
		Provider: enums.PaymentMethodCryptomus,
		ChargeID: n.UUID,
		Currency: enums.Currency(strings.ToUpper(n.Currency)),
	}

	switch strings.ToLower(n.Status) {
	case "paid", "paid_over":
		event.Outcome = enums.ChargeOutcomeSucceeded
	case "fail", "cancel", "system_fail", "refund_paid":
		event.Outcome = enums.ChargeOutcomeDeclined
	case "check", "process", "confirm_check":
		// documented intermediate states; the final event follows
		event.Outcome = enums.ChargeOutcomePending
	default:
		event.Outcome = enums.ChargeOutcomeUnknown
	}

	if n.Amount != "" {
		amount, err := decimal.NewFromString(n.Amount)
		if err != nil {
			return ChargeEvent{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse amount")
		}
		event.Amount = amount
	}
	if n.MerchantAmount != "" {
		net, err := decimal.NewFromString(n.MerchantAmount)
		if err != nil {
			return ChargeEvent{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse merchant amount")
		}
		event.NetAmount = &net
	}
	return event, nil
}
