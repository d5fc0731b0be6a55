package models

import (
	"time"

	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pack is a one-off or recurring add-on purchase. UntilAt is set only for
// recurring-flag products; quantity products are consumed through the ledger
// and carry no expiry.
type Pack struct {
	ID               uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	ProductID        string              `gorm:"column:product_id;not null"`
	Status           enums.PackStatus    `gorm:"column:status;not null;default:'waiting'"`
	Quantity         int64               `gorm:"column:quantity;not null;default:1"`
	UntilAt          *time.Time          `gorm:"column:until_at"`
	Currency         enums.Currency      `gorm:"column:currency;not null"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	IncomeAmount     decimal.Decimal     `gorm:"column:income_amount;type:numeric(12,2);not null;default:0"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;not null"`
	ProviderChargeID *string             `gorm:"column:provider_payment_charge_id;index"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
