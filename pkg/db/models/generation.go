package models

import (
	"encoding/json"
	"time"

	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/google/uuid"
)

// Generation is one unit of provider-side work under a Request. Status flips
// to finished at most once; webhook handlers check it before mutating.
type Generation struct {
	ID         uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RequestID  uuid.UUID              `gorm:"column:request_id;type:uuid;not null;index"`
	ProviderID string                 `gorm:"column:provider_generation_id;uniqueIndex"`
	ProductID  enums.Quota            `gorm:"column:product_id;not null"`
	Status     enums.GenerationStatus `gorm:"column:status;not null;default:'started'"`
	HasError   bool                   `gorm:"column:has_error;not null;default:false"`
	Result     string                 `gorm:"column:result;not null;default:''"`
	Details    json.RawMessage        `gorm:"column:details;type:jsonb"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
