package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  buyer_id TEXT NOT NULL,
  buyer_email TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  seller_name TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'ZAR',
  subtotal_cents INTEGER NOT NULL,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  shipping_address TEXT,
  payment_method TEXT NOT NULL,
  payment_status TEXT NOT NULL DEFAULT 'pending',
  status TEXT NOT NULL DEFAULT 'pending',
  courier_provider TEXT,
  tracking_number TEXT,
  tracking_url TEXT,
  courier_ref TEXT,
  confirmed_at DATETIME,
  shipped_at DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  inventory_restored_at DATETIME,
  requires_manual_refund INTEGER NOT NULL DEFAULT 0,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  sku TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  line_total_cents INTEGER NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_status_entries (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  status TEXT NOT NULL,
  note TEXT,
  actor_role TEXT NOT NULL,
  actor_id TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS inventory_items (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  available_qty INTEGER NOT NULL DEFAULT 0,
  reserved_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	} {
		if err := db.Exec(ddl).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

type orderSeed struct {
	Status        enums.OrderStatus
	PaymentStatus enums.PaymentStatus
	BuyerID       uuid.UUID
	SellerID      uuid.UUID
	ProductID     uuid.UUID
	Qty           int
	TotalCents    int
}

func seedOrder(t *testing.T, db *gorm.DB, seed orderSeed) *models.Order {
	t.Helper()

	if seed.BuyerID == uuid.Nil {
		seed.BuyerID = uuid.New()
	}
	if seed.SellerID == uuid.Nil {
		seed.SellerID = uuid.New()
	}
	if seed.ProductID == uuid.Nil {
		seed.ProductID = uuid.New()
	}
	if seed.Qty == 0 {
		seed.Qty = 2
	}
	if seed.Status == "" {
		seed.Status = enums.OrderStatusPending
	}
	if seed.PaymentStatus == "" {
		seed.PaymentStatus = enums.PaymentStatusPending
	}
	if seed.TotalCents == 0 {
		seed.TotalCents = 15050
	}

	number, err := GenerateOrderNumber()
	if err != nil {
		t.Fatalf("generate order number: %v", err)
	}

	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   number,
		BuyerID:       seed.BuyerID,
		BuyerEmail:    "buyer@example.com",
		SellerID:      seed.SellerID,
		SellerName:    "Karoo Traders",
		Currency:      enums.CurrencyZAR,
		SubtotalCents: seed.TotalCents,
		TotalCents:    seed.TotalCents,
		PaymentMethod: enums.PaymentMethodPayFast,
		PaymentStatus: seed.PaymentStatus,
		Status:        seed.Status,
		Items: []models.OrderLineItem{
			{
				ID:             uuid.New(),
				ProductID:      seed.ProductID,
				ProductName:    "Rooibos 500g",
				SKU:            "ROOI-500",
				Quantity:       seed.Qty,
				UnitPriceCents: seed.TotalCents / seed.Qty,
				LineTotalCents: seed.TotalCents,
			},
		},
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func seedInventory(t *testing.T, db *gorm.DB, productID uuid.UUID, available, reserved int) {
	t.Helper()
	item := models.InventoryItem{
		ID:           uuid.New(),
		ProductID:    productID,
		SellerID:     uuid.New(),
		AvailableQty: available,
		ReservedQty:  reserved,
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
}
