package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
)

// Wallet holds a seller's earnings. AvailableCents is derived from the
// transaction ledger inside the same transaction that moves money, never
// recomputed from scratch at read time.
type Wallet struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID uuid.UUID `gorm:"column:seller_id;type:uuid;not null;uniqueIndex"`

	Currency            enums.Currency `gorm:"column:currency;type:text;not null;default:'ZAR'"`
	AvailableCents      int            `gorm:"column:available_cents;not null;default:0"`
	PendingCents        int            `gorm:"column:pending_cents;not null;default:0"`
	LifetimePayoutCents int            `gorm:"column:lifetime_payout_cents;not null;default:0"`

	Version int `gorm:"column:version;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
