package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
)

// OrderStatusEntry is one row of an order's append-only status trail.
// Consecutive entries always differ in status; the repository drops an
// append whose status matches the last entry. Besides the lifecycle
// statuses, the trail may carry the refunded marker.
type OrderStatusEntry struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`

	Status    enums.OrderStatus `gorm:"column:status;type:text;not null"`
	Note      string            `gorm:"column:note"`
	ActorRole enums.ActorRole   `gorm:"column:actor_role;type:text;not null"`
	ActorID   *uuid.UUID        `gorm:"column:actor_id;type:uuid"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
