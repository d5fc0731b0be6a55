package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one pending line of a mixed checkout. The reconciler clears the
// user's cart after a successful multi-item charge.
type CartItem struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	ProductID string    `gorm:"column:product_id;not null"`
	Quantity  int64     `gorm:"column:quantity;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
