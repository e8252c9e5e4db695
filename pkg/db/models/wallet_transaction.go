package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
)

// WalletTransaction is one immutable ledger entry. Sales credit, payouts and
// refund reversals debit. OrderID is the idempotency key for sale credits;
// the partial unique index in the migration stops a replayed payment
// notification from crediting twice.
type WalletTransaction struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID uuid.UUID `gorm:"column:wallet_id;type:uuid;not null;index"`

	Type   enums.WalletTransactionType   `gorm:"column:type;type:text;not null"`
	Status enums.WalletTransactionStatus `gorm:"column:status;type:text;not null;default:'completed'"`

	// AmountCents is the signed balance movement; for sales it is the net
	// after the platform fee, recorded alongside for audit.
	AmountCents  int `gorm:"column:amount_cents;not null"`
	GrossCents   int `gorm:"column:gross_cents;not null;default:0"`
	FeeCents     int `gorm:"column:fee_cents;not null;default:0"`
	BalanceCents int `gorm:"column:balance_cents;not null"`

	OrderID     *uuid.UUID `gorm:"column:order_id;type:uuid;index"`
	OrderNumber *string    `gorm:"column:order_number"`
	Description string     `gorm:"column:description;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
