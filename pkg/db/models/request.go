package models

import (
	"time"

	dbtypes "github.com/dkoroteev/genbot-backend/pkg/db/types"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/google/uuid"
)

// Request is one user-initiated external-generation call. It may fan out into
// several Generations; Requested records how many the provider owes us.
type Request struct {
	ID                   uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index:idx_requests_user_product"`
	ProductID            enums.Quota         `gorm:"column:product_id;not null;index:idx_requests_user_product"`
	ProcessingMessageIDs dbtypes.Int64Array  `gorm:"column:processing_message_ids;type:jsonb;not null"`
	Requested            int                 `gorm:"column:requested;not null;default:1"`
	Status               enums.RequestStatus `gorm:"column:status;not null;default:'started'"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
