package models

import (
	"time"

	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Subscription is one paid recurring entitlement period. At most one row per
// user may be active or trial at a time; activation finishes any other
// current row first.
type Subscription struct {
	ID                      uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                  uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	Tier                    enums.SubscriptionTier   `gorm:"column:tier;not null"`
	Period                  enums.SubscriptionPeriod `gorm:"column:period;not null"`
	Status                  enums.SubscriptionStatus `gorm:"column:status;not null;default:'waiting';index"`
	Currency                enums.Currency           `gorm:"column:currency;not null"`
	Amount                  decimal.Decimal          `gorm:"column:amount;type:numeric(12,2);not null"`
	IncomeAmount            decimal.Decimal          `gorm:"column:income_amount;type:numeric(12,2);not null;default:0"`
	PaymentMethod           enums.PaymentMethod      `gorm:"column:payment_method;not null"`
	ProviderChargeID        *string                  `gorm:"column:provider_payment_charge_id;index"`
	ProviderAutoChargeID    *string                  `gorm:"column:provider_auto_payment_charge_id;index"`
	AutoRenewEnabled        bool                     `gorm:"column:auto_renew_enabled;not null;default:true"`
	StartDate               time.Time                `gorm:"column:start_date;not null"`
	EndDate                 time.Time                `gorm:"column:end_date;not null;index"`
	CreatedAt               time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
