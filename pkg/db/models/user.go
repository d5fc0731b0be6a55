package models

import (
	"time"

	dbtypes "github.com/dkoroteev/genbot-backend/pkg/db/types"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is the canonical end-user record. The two quota maps are the most
// contended fields in the system; every mutation goes through the ledger's
// read-modify-write or transactional path.
type User struct {
	ID              uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TelegramID      int64               `gorm:"column:telegram_id;not null;uniqueIndex"`
	TelegramChatID  int64               `gorm:"column:telegram_chat_id;not null"`
	CurrentModel    enums.Quota         `gorm:"column:current_model;not null;default:'gpt4_omni_mini'"`
	CurrentRole     string              `gorm:"column:current_role_name;not null;default:'assistant'"`
	SubscriptionID  *uuid.UUID          `gorm:"column:subscription_id;type:uuid;index"`
	DailyLimits     dbtypes.QuotaCounts `gorm:"column:daily_limits;type:jsonb;not null"`
	AdditionalQuota dbtypes.QuotaGrants `gorm:"column:additional_usage_quota;type:jsonb;not null"`
	Discount        int                 `gorm:"column:discount;not null;default:0"`
	Balance         decimal.Decimal     `gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	VoiceReplies    bool                `gorm:"column:voice_replies;not null;default:false"`
	IsBlocked       bool                `gorm:"column:is_blocked;not null;default:false"`
	LastLimitUpdate *time.Time          `gorm:"column:last_subscription_limit_update"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
