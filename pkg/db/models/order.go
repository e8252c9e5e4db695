package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	"github.com/tjvanzyl/veldmart-backend/pkg/types"
)

// Order is one seller's slice of a checkout. Totals are fixed at creation and
// never recomputed; Version guards concurrent read-modify-write sections.
type Order struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber string    `gorm:"column:order_number;not null;uniqueIndex"`

	BuyerID    uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;index"`
	BuyerEmail string    `gorm:"column:buyer_email;not null"`
	SellerID   uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`
	SellerName string    `gorm:"column:seller_name;not null"`

	Currency      enums.Currency `gorm:"column:currency;type:text;not null;default:'ZAR'"`
	SubtotalCents int            `gorm:"column:subtotal_cents;not null"`
	TaxCents      int            `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents int            `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents    int            `gorm:"column:total_cents;not null"`

	ShippingAddress types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	Status          enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`

	CourierProvider *enums.CourierProvider `gorm:"column:courier_provider;type:text"`
	TrackingNumber  *string                `gorm:"column:tracking_number"`
	TrackingURL     *string                `gorm:"column:tracking_url"`
	CourierRef      *string                `gorm:"column:courier_ref"`

	ConfirmedAt *time.Time `gorm:"column:confirmed_at"`
	ShippedAt   *time.Time `gorm:"column:shipped_at"`
	DeliveredAt *time.Time `gorm:"column:delivered_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`

	// InventoryRestoredAt records the single inventory release performed on
	// cancellation; a second cancellation must not release again.
	InventoryRestoredAt *time.Time `gorm:"column:inventory_restored_at"`

	// RequiresManualRefund is set when a cancellation hits a sale that was
	// already paid out, so finance has to reverse it outside the wallet.
	RequiresManualRefund bool `gorm:"column:requires_manual_refund;not null;default:false"`

	Version int `gorm:"column:version;not null;default:0"`

	Items         []OrderLineItem    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory []OrderStatusEntry `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
