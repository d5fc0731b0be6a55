package payments

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dkoroteev/genbot-backend/pkg/enums"
	pkgerrors "github.com/dkoroteev/genbot-backend/pkg/errors"
)

// YooKassaNotification is the payment.* webhook body YooKassa posts.
type YooKassaNotification struct {
	Type   string `json:"type"`
	Event  string `json:"event" validate:"required"`
	Object struct {
		ID     string `json:"id" validate:"required"`
		Status string `json:"status"`
		Amount struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		IncomeAmount *struct {
			Value string `json:"value"`
		} `json:"income_amount"`
		PaymentMethod struct {
			ID    string `json:"id"`
			Saved bool   `json:"saved"`
		} `json:"payment_method"`
	} `json:"object" validate:"required"`
}

// NormalizeYooKassa maps a YooKassa notification onto the neutral event.
func NormalizeYooKassa(n YooKassaNotification) (ChargeEvent, error) {
	if n.Object.ID == "" {
		return ChargeEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	event := ChargeEvent{
		Provider: enums.PaymentMethodYooKassa,
		ChargeID: n.Object.ID,
		Currency: enums.Currency(strings.ToUpper(n.Object.Amount.Currency)),
	}

	switch {
	case n.Event == "payment.succeeded" || n.Object.Status == "succeeded":
		event.Outcome = enums.ChargeOutcomeSucceeded
	case n.Event == "payment.canceled" || n.Object.Status == "canceled":
		event.Outcome = enums.ChargeOutcomeDeclined
	case n.Event == "payment.waiting_for_capture",
		n.Object.Status == "pending",
		n.Object.Status == "waiting_for_capture":
		// documented intermediate states; the final event follows
		event.Outcome = enums.ChargeOutcomePending
	default:
		event.Outcome = enums.ChargeOutcomeUnknown
	}

	if n.Object.Amount.Value != "" {
		amount, err := decimal.NewFromString(n.Object.Amount.Value)
		if err != nil {
			return ChargeEvent{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse amount")
		}
		event.Amount = amount
	}
	if n.Object.IncomeAmount != nil && n.Object.IncomeAmount.Value != "" {
		net, err := decimal.NewFromString(n.Object.IncomeAmount.Value)
		if err != nil {
			return ChargeEvent{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse income amount")
		}
		event.NetAmount = &net
	}
	// a saved payment method is the mandate for future auto-charges
	if n.Object.PaymentMethod.Saved {
		event.MandateID = n.Object.PaymentMethod.ID
	}
	return event, nil
}
