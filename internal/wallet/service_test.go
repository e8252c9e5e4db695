package wallet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/outbox"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:wallet_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	for _, ddl := range []string{
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

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(
		NewRepository(db),
		&testTxRunner{db: db},
		outbox.NewService(outbox.NewRepository(db), nil),
		Config{FeeRate: 0.10, MinPayoutCents: 5000},
		nil,
	)
	require.NoError(t, err)
	return svc
}

func paidOrder(totalCents int) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "VM-TEST2345",
		BuyerID:       uuid.New(),
		SellerID:      uuid.New(),
		Currency:      enums.CurrencyZAR,
		SubtotalCents: totalCents,
		TotalCents:    totalCents,
		PaymentStatus: enums.PaymentStatusPaid,
		Status:        enums.OrderStatusProcessing,
	}
}

func creditSale(t *testing.T, db *gorm.DB, svc Service, order *models.Order) CreditResult {
	t.Helper()
	var result CreditResult
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = svc.CreditSale(context.Background(), tx, order)
		return err
	})
	require.NoError(t, err)
	return result
}

func refundSale(t *testing.T, db *gorm.DB, svc Service, order *models.Order) RefundOutcome {
	t.Helper()
	var outcome RefundOutcome
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		outcome, err = svc.RefundSale(context.Background(), tx, order)
		return err
	})
	require.NoError(t, err)
	return outcome
}

func TestCreditSale(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	order := paidOrder(10000)

	result := creditSale(t, db, svc, order)
	assert.True(t, result.Credited)
	assert.Equal(t, 1000, result.FeeCents)
	assert.Equal(t, 9000, result.NetCents)
	assert.Equal(t, 9000, result.BalanceCents)

	wallet, err := NewRepository(db).FindBySeller(context.Background(), order.SellerID)
	require.NoError(t, err)
	assert.Equal(t, 9000, wallet.AvailableCents)
	assert.Equal(t, enums.CurrencyZAR, wallet.Currency)

	txn, err := NewRepository(db).FindTransactionByOrder(
		context.Background(), order.ID, enums.WalletTransactionTypeSale)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, 9000, txn.AmountCents)
	assert.Equal(t, 10000, txn.GrossCents)
	assert.Equal(t, 1000, txn.FeeCents)
	assert.Equal(t, 9000, txn.BalanceCents)
	require.NotNil(t, txn.OrderNumber)
	assert.Equal(t, order.OrderNumber, *txn.OrderNumber)

	var events int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventWalletCredited, order.ID).
		Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestCreditSaleReplayIsNoop(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	order := paidOrder(10000)

	first := creditSale(t, db, svc, order)
	require.True(t, first.Credited)

	second := creditSale(t, db, svc, order)
	assert.False(t, second.Credited)
	assert.Equal(t, first.BalanceCents, second.BalanceCents)

	wallet, err := NewRepository(db).FindBySeller(context.Background(), order.SellerID)
	require.NoError(t, err)
	assert.Equal(t, 9000, wallet.AvailableCents)

	var txns int64
	require.NoError(t, db.Model(&models.WalletTransaction{}).Count(&txns).Error)
	assert.EqualValues(t, 1, txns)

	var events int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventWalletCredited).
		Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestCreditSaleSeparateOrdersAccumulate(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	sellerID := uuid.New()

	first := paidOrder(10000)
	first.SellerID = sellerID
	second := paidOrder(20000)
	second.SellerID = sellerID
	second.OrderNumber = "VM-TEST6789"

	creditSale(t, db, svc, first)
	result := creditSale(t, db, svc, second)
	assert.Equal(t, 27000, result.BalanceCents)

	wallet, err := NewRepository(db).FindBySeller(context.Background(), sellerID)
	require.NoError(t, err)
	assert.Equal(t, 27000, wallet.AvailableCents)
	assert.Equal(t, 2, wallet.Version)
}

func TestRefundSaleReversesCredit(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	order := paidOrder(10000)
	creditSale(t, db, svc, order)

	outcome := refundSale(t, db, svc, order)
	assert.True(t, outcome.Reversed)
	assert.False(t, outcome.ManualReview)
	assert.Equal(t, 9000, outcome.AmountCents)

	wallet, err := NewRepository(db).FindBySeller(context.Background(), order.SellerID)
	require.NoError(t, err)
	assert.Equal(t, 0, wallet.AvailableCents)

	refund, err := NewRepository(db).FindTransactionByOrder(
		context.Background(), order.ID, enums.WalletTransactionTypeRefund)
	require.NoError(t, err)
	require.NotNil(t, refund)
	assert.Equal(t, -9000, refund.AmountCents)
	assert.Equal(t, 0, refund.BalanceCents)

	replay := refundSale(t, db, svc, order)
	assert.True(t, replay.Reversed)
	assert.Equal(t, 9000, replay.AmountCents)

	var txns int64
	require.NoError(t, db.Model(&models.WalletTransaction{}).Count(&txns).Error)
	assert.EqualValues(t, 2, txns)
}

func TestRefundSaleWithoutCreditNeedsManualReview(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	order := paidOrder(10000)

	outcome := refundSale(t, db, svc, order)
	assert.False(t, outcome.Reversed)
	assert.True(t, outcome.ManualReview)
}

func TestRefundSaleAfterPayoutNeedsManualReview(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	order := paidOrder(10000)
	creditSale(t, db, svc, order)

	_, err := svc.RequestPayout(context.Background(), order.SellerID, 9000, uuid.New())
	require.NoError(t, err)

	outcome := refundSale(t, db, svc, order)
	assert.False(t, outcome.Reversed)
	assert.True(t, outcome.ManualReview)

	wallet, werr := NewRepository(db).FindBySeller(context.Background(), order.SellerID)
	require.NoError(t, werr)
	assert.Equal(t, 0, wallet.AvailableCents)
}

func TestRequestPayout(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	order := paidOrder(100000)
	creditSale(t, db, svc, order)

	txn, err := svc.RequestPayout(context.Background(), order.SellerID, 60000, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, enums.WalletTransactionTypePayout, txn.Type)
	assert.Equal(t, enums.WalletTransactionStatusProcessing, txn.Status)
	assert.Equal(t, -60000, txn.AmountCents)
	assert.Equal(t, 30000, txn.BalanceCents)

	wallet, err := NewRepository(db).FindBySeller(context.Background(), order.SellerID)
	require.NoError(t, err)
	assert.Equal(t, 30000, wallet.AvailableCents)
	assert.Equal(t, 60000, wallet.LifetimePayoutCents)

	var events int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventPayoutRequested, txn.ID).
		Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestRequestPayoutBelowMinimum(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.RequestPayout(context.Background(), uuid.New(), 4999, uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestRequestPayoutInsufficientBalance(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	order := paidOrder(10000)
	creditSale(t, db, svc, order)

	_, err := svc.RequestPayout(context.Background(), order.SellerID, 9500, uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientBalance, typed.Code())

	wallet, werr := NewRepository(db).FindBySeller(context.Background(), order.SellerID)
	require.NoError(t, werr)
	assert.Equal(t, 9000, wallet.AvailableCents)
}

func TestCompletePayout(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	order := paidOrder(100000)
	creditSale(t, db, svc, order)

	requested, err := svc.RequestPayout(context.Background(), order.SellerID, 60000, uuid.New())
	require.NoError(t, err)

	completed, err := svc.CompletePayout(context.Background(), requested.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, enums.WalletTransactionStatusCompleted, completed.Status)

	replay, err := svc.CompletePayout(context.Background(), requested.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, enums.WalletTransactionStatusCompleted, replay.Status)

	var events int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPayoutCompleted).
		Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestCompletePayoutRejectsNonPayout(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	order := paidOrder(10000)
	creditSale(t, db, svc, order)

	sale, err := NewRepository(db).FindTransactionByOrder(
		context.Background(), order.ID, enums.WalletTransactionTypeSale)
	require.NoError(t, err)
	require.NotNil(t, sale)

	_, err = svc.CompletePayout(context.Background(), sale.ID, uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestGetBySellerWithoutWallet(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	sellerID := uuid.New()

	view, err := svc.GetBySeller(context.Background(), sellerID)
	require.NoError(t, err)
	assert.Equal(t, sellerID, view.SellerID)
	assert.Equal(t, 0, view.AvailableCents)
	assert.False(t, view.Payable)
	assert.Equal(t, 5000, view.MinPayoutCents)
}
