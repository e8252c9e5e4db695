package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the sellable catalog row. Pricing lives here in integer cents;
// orders snapshot it into line items at checkout.
type Product struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`

	// SellerName rides along so checkout can snapshot it onto the order
	// without a join against an account service.
	SellerName string `gorm:"column:seller_name;not null"`
	Name       string `gorm:"column:name;not null"`
	SKU        string `gorm:"column:sku;not null;uniqueIndex"`
	PriceCents int    `gorm:"column:price_cents;not null"`
	Active     bool   `gorm:"column:active;not null;default:true"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// InventoryItem tracks stock per product. AvailableQty never goes below zero;
// reservations move quantity from available to reserved and releases move it
// back.
type InventoryItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex"`
	SellerID  uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`

	AvailableQty int `gorm:"column:available_qty;not null;default:0"`
	ReservedQty  int `gorm:"column:reserved_qty;not null;default:0"`

	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
