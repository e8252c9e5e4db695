package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tjvanzyl/veldmart-backend/internal/inventory"
	ordersdomain "github.com/tjvanzyl/veldmart-backend/internal/orders"
	"github.com/tjvanzyl/veldmart-backend/internal/wallet"
	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/outbox"
	"github.com/tjvanzyl/veldmart-backend/pkg/payfast"
)

const testPassphrase = "jt7NOE43FZPn"

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:reconcile_" + uuid.NewString() + "?mode=memory&cache=shared"
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
		`CREATE TABLE IF NOT EXISTS wallets (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL UNIQUE,
  currency TEXT NOT NULL DEFAULT 'ZAR',
  available_cents INTEGER NOT NULL DEFAULT 0,
  pending_cents INTEGER NOT NULL DEFAULT 0,
  lifetime_payout_cents INTEGER NOT NULL DEFAULT 0,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS wallet_transactions (
  id TEXT PRIMARY KEY,
  wallet_id TEXT NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'completed',
  amount_cents INTEGER NOT NULL,
  gross_cents INTEGER NOT NULL DEFAULT 0,
  fee_cents INTEGER NOT NULL DEFAULT 0,
  balance_cents INTEGER NOT NULL,
  order_id TEXT,
  order_number TEXT,
  description TEXT NOT NULL,
  created_at DATETIME
);`,
		`CREATE UNIQUE INDEX ux_wallet_transactions_sale_order
  ON wallet_transactions (order_id) WHERE type = 'sale';`,
		`CREATE UNIQUE INDEX ux_wallet_transactions_refund_order
  ON wallet_transactions (order_id) WHERE type = 'refund';`,
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

func newTestService(t *testing.T, db *gorm.DB, cfg Config) Service {
	t.Helper()
	tx := &testTxRunner{db: db}
	ob := outbox.NewService(outbox.NewRepository(db), nil)
	invSvc, err := inventory.NewService(inventory.NewRepository(db))
	require.NoError(t, err)
	walletSvc, err := wallet.NewService(
		wallet.NewRepository(db), tx, ob,
		wallet.Config{FeeRate: 0.10, MinPayoutCents: 5000}, nil,
	)
	require.NoError(t, err)

	svc, err := NewService(
		ordersdomain.NewRepository(db), invSvc, walletSvc, tx, ob, cfg, nil, nil)
	require.NoError(t, err)
	return svc
}

// seedOrder creates a pending, unpaid order with its stock reserved, the
// state checkout leaves behind while the buyer is at the gateway.
func seedOrder(t *testing.T, db *gorm.DB, totalCents int) *models.Order {
	t.Helper()
	productID := uuid.New()
	sellerID := uuid.New()

	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "VM-" + uuid.NewString()[:8],
		BuyerID:       uuid.New(),
		BuyerEmail:    "buyer@example.com",
		SellerID:      sellerID,
		SellerName:    "Karoo Traders",
		Currency:      "ZAR",
		SubtotalCents: totalCents,
		TotalCents:    totalCents,
		PaymentMethod: enums.PaymentMethodPayFast,
		PaymentStatus: enums.PaymentStatusPending,
		Status:        enums.OrderStatusPending,
		Items: []models.OrderLineItem{
			{
				ID:             uuid.New(),
				ProductID:      productID,
				ProductName:    "Rooibos 500g",
				SKU:            "SKU-ROOI-500",
				Quantity:       2,
				UnitPriceCents: totalCents / 2,
				LineTotalCents: totalCents,
			},
		},
	}
	require.NoError(t, db.Create(order).Error)
	require.NoError(t, db.Create(&models.InventoryItem{
		ID:           uuid.New(),
		ProductID:    productID,
		SellerID:     sellerID,
		AvailableQty: 8,
		ReservedQty:  2,
	}).Error)
	return order
}

func notificationFields(orderNumber, paymentStatus, amountGross string) []payfast.Field {
	return []payfast.Field{
		{Key: "m_payment_id", Value: orderNumber},
		{Key: "pf_payment_id", Value: "1089250"},
		{Key: "payment_status", Value: paymentStatus},
		{Key: "amount_gross", Value: amountGross},
		{Key: "merchant_id", Value: "10000100"},
	}
}

func signedBody(fields []payfast.Field) string {
	signature := payfast.Sign(fields, testPassphrase)
	fields = append(fields, payfast.Field{Key: "signature", Value: signature})
	return payfast.EncodeForm(fields)
}

func itn(body string) Notification {
	return Notification{Body: body, RemoteAddr: "196.33.227.10:41350"}
}

func testConfig() Config {
	return Config{Passphrase: testPassphrase, SkipIPCheck: true}
}

func reloadOrder(t *testing.T, db *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", id).Error)
	return order
}

func TestHandleITNPaidCreditsSeller(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, testConfig())
	order := seedOrder(t, db, 55000)

	body := signedBody(notificationFields(order.OrderNumber, payfast.StatusComplete, "550.00"))
	require.NoError(t, svc.HandleITN(context.Background(), itn(body)))

	got := reloadOrder(t, db, order.ID)
	assert.Equal(t, enums.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, enums.OrderStatusProcessing, got.Status)
	assert.NotNil(t, got.ConfirmedAt)
	assert.Equal(t, 1, got.Version)

	var txn models.WalletTransaction
	require.NoError(t, db.First(&txn, "order_id = ?", order.ID).Error)
	assert.Equal(t, enums.WalletTransactionTypeSale, txn.Type)
	assert.Equal(t, 55000, txn.GrossCents)
	assert.Equal(t, 5500, txn.FeeCents)
	assert.Equal(t, 49500, txn.AmountCents)

	var walletRow models.Wallet
	require.NoError(t, db.First(&walletRow, "seller_id = ?", order.SellerID).Error)
	assert.Equal(t, 49500, walletRow.AvailableCents)

	var entries int64
	require.NoError(t, db.Model(&models.OrderStatusEntry{}).
		Where("order_id = ? AND status = ? AND actor_role = ?",
			order.ID, enums.OrderStatusProcessing, enums.ActorRoleSystem).
		Count(&entries).Error)
	assert.EqualValues(t, 1, entries)

	var paidEvents int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderPaid).
		Count(&paidEvents).Error)
	assert.EqualValues(t, 1, paidEvents)
}

func TestHandleITNPaidReplayIsNoop(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, testConfig())
	order := seedOrder(t, db, 55000)

	body := signedBody(notificationFields(order.OrderNumber, payfast.StatusComplete, "550.00"))
	require.NoError(t, svc.HandleITN(context.Background(), itn(body)))
	require.NoError(t, svc.HandleITN(context.Background(), itn(body)))

	var txns int64
	require.NoError(t, db.Model(&models.WalletTransaction{}).
		Where("order_id = ?", order.ID).
		Count(&txns).Error)
	assert.EqualValues(t, 1, txns)

	var walletRow models.Wallet
	require.NoError(t, db.First(&walletRow, "seller_id = ?", order.SellerID).Error)
	assert.Equal(t, 49500, walletRow.AvailableCents)

	var entries int64
	require.NoError(t, db.Model(&models.OrderStatusEntry{}).
		Where("order_id = ?", order.ID).
		Count(&entries).Error)
	assert.EqualValues(t, 1, entries)

	got := reloadOrder(t, db, order.ID)
	assert.Equal(t, 1, got.Version)
}

func TestHandleITNRejectsTamperedSignature(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, testConfig())
	order := seedOrder(t, db, 55000)

	fields := notificationFields(order.OrderNumber, payfast.StatusComplete, "550.00")
	signature := payfast.Sign(fields, testPassphrase)
	// Inflate the gross after signing, the way a replayed-and-edited
	// notification would arrive.
	fields[3].Value = "950.00"
	fields = append(fields, payfast.Field{Key: "signature", Value: signature})

	err := svc.HandleITN(context.Background(), itn(payfast.EncodeForm(fields)))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeSignature, pkgerrors.As(err).Code())

	got := reloadOrder(t, db, order.ID)
	assert.Equal(t, enums.PaymentStatusPending, got.PaymentStatus)
	assert.Equal(t, enums.OrderStatusPending, got.Status)
}

func TestHandleITNRejectsAmountMismatch(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, testConfig())
	order := seedOrder(t, db, 55000)

	// Two cents off is outside the one-cent rounding tolerance.
	body := signedBody(notificationFields(order.OrderNumber, payfast.StatusComplete, "550.02"))
	err := svc.HandleITN(context.Background(), itn(body))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeAmountMismatch, pkgerrors.As(err).Code())

	got := reloadOrder(t, db, order.ID)
	assert.Equal(t, enums.PaymentStatusPending, got.PaymentStatus)
}

func TestHandleITNAcceptsWithinTolerance(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, testConfig())
	order := seedOrder(t, db, 55000)

	body := signedBody(notificationFields(order.OrderNumber, payfast.StatusComplete, "550.01"))
	require.NoError(t, svc.HandleITN(context.Background(), itn(body)))

	got := reloadOrder(t, db, order.ID)
	assert.Equal(t, enums.PaymentStatusPaid, got.PaymentStatus)
}

func TestHandleITNUnknownOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, testConfig())

	body := signedBody(notificationFields("VM-DOESNOTEXIST", payfast.StatusComplete, "550.00"))
	err := svc.HandleITN(context.Background(), itn(body))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestHandleITNDisallowedSource(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, Config{
		Passphrase: testPassphrase,
		AllowedIPs: []string{"196.33.227.0/24"},
	})
	order := seedOrder(t, db, 55000)

	body := signedBody(notificationFields(order.OrderNumber, payfast.StatusComplete, "550.00"))
	err := svc.HandleITN(context.Background(), Notification{Body: body, RemoteAddr: "41.79.192.14:55210"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())

	got := reloadOrder(t, db, order.ID)
	assert.Equal(t, enums.PaymentStatusPending, got.PaymentStatus)
}

func TestHandleITNFailedCancelsAndReleasesStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, testConfig())
	order := seedOrder(t, db, 55000)

	body := signedBody(notificationFields(order.OrderNumber, payfast.StatusFailed, "550.00"))
	require.NoError(t, svc.HandleITN(context.Background(), itn(body)))

	got := reloadOrder(t, db, order.ID)
	assert.Equal(t, enums.PaymentStatusFailed, got.PaymentStatus)
	assert.Equal(t, enums.OrderStatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)
	assert.NotNil(t, got.InventoryRestoredAt)

	var item models.InventoryItem
	require.NoError(t, db.First(&item).Error)
	assert.Equal(t, 10, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)

	// A replayed failure must not release the reservation twice.
	require.NoError(t, svc.HandleITN(context.Background(), itn(body)))
	require.NoError(t, db.First(&item).Error)
	assert.Equal(t, 10, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)

	var failedEvents int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPaymentFailed).
		Count(&failedEvents).Error)
	assert.EqualValues(t, 1, failedEvents)
}

func TestHandleITNFailureAfterSuccessIsIgnored(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, testConfig())
	order := seedOrder(t, db, 55000)

	paid := signedBody(notificationFields(order.OrderNumber, payfast.StatusComplete, "550.00"))
	require.NoError(t, svc.HandleITN(context.Background(), itn(paid)))

	failed := signedBody(notificationFields(order.OrderNumber, payfast.StatusFailed, "550.00"))
	require.NoError(t, svc.HandleITN(context.Background(), itn(failed)))

	got := reloadOrder(t, db, order.ID)
	assert.Equal(t, enums.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, enums.OrderStatusProcessing, got.Status)
}

func TestHandleITNPendingLeavesOrderAlone(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, testConfig())
	order := seedOrder(t, db, 55000)

	body := signedBody(notificationFields(order.OrderNumber, payfast.StatusPending, "550.00"))
	require.NoError(t, svc.HandleITN(context.Background(), itn(body)))

	got := reloadOrder(t, db, order.ID)
	assert.Equal(t, enums.PaymentStatusPending, got.PaymentStatus)
	assert.Equal(t, enums.OrderStatusPending, got.Status)
	assert.Equal(t, 0, got.Version)
}
