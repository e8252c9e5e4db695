package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tjvanzyl/veldmart-backend/internal/inventory"
	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/outbox"
)

type fakeReverser struct {
	result ReversalResult
	err    error
	calls  int
	lastID uuid.UUID
}

func (f *fakeReverser) ReverseSale(_ context.Context, _ *gorm.DB, order *models.Order) (ReversalResult, error) {
	f.calls++
	f.lastID = order.ID
	return f.result, f.err
}

func newTestService(t *testing.T, db *gorm.DB, reverser SaleReverser) Service {
	t.Helper()
	invSvc, err := inventory.NewService(inventory.NewRepository(db))
	require.NoError(t, err)
	svc, err := NewService(
		NewRepository(db),
		&testTxRunner{db: db},
		outbox.NewService(outbox.NewRepository(db), nil),
		invSvc,
		reverser,
		nil,
	)
	require.NoError(t, err)
	return svc
}

func TestUpdateStatusConfirm(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	order := seedOrder(t, db, orderSeed{})
	svc := newTestService(t, db, &fakeReverser{})

	view, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusConfirmed,
		ActorID:   order.SellerID,
		ActorRole: enums.ActorRoleSeller,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, view.Status)
	assert.NotNil(t, view.ConfirmedAt)
	require.Len(t, view.StatusHistory, 1)
	assert.Equal(t, enums.OrderStatusConfirmed, view.StatusHistory[0].Status)

	stored, err := NewRepository(db).FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Version+1, stored.Version)
}

func TestUpdateStatusReplayIsNoop(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	order := seedOrder(t, db, orderSeed{})
	svc := newTestService(t, db, &fakeReverser{})
	ctx := context.Background()

	input := UpdateStatusInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusConfirmed,
		ActorID:   order.SellerID,
		ActorRole: enums.ActorRoleSeller,
	}
	first, err := svc.UpdateStatus(ctx, input)
	require.NoError(t, err)
	confirmedAt := first.ConfirmedAt

	second, err := svc.UpdateStatus(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, second.Status)
	assert.Equal(t, confirmedAt, second.ConfirmedAt)
	assert.Len(t, second.StatusHistory, 1)
}

func TestUpdateStatusIllegalTransition(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	order := seedOrder(t, db, orderSeed{})
	svc := newTestService(t, db, &fakeReverser{})

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusShipped,
		ActorID:   order.SellerID,
		ActorRole: enums.ActorRoleSeller,
		Tracking:  &TrackingInfo{Provider: enums.CourierProviderCourierGuy, TrackingNumber: "CG123"},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestUpdateStatusActorGuards(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	order := seedOrder(t, db, orderSeed{})
	svc := newTestService(t, db, &fakeReverser{})
	ctx := context.Background()

	// Buyers cannot confirm.
	_, err := svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusConfirmed,
		ActorID:   order.BuyerID,
		ActorRole: enums.ActorRoleBuyer,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())

	// A different seller cannot touch the order at all.
	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusConfirmed,
		ActorID:   uuid.New(),
		ActorRole: enums.ActorRoleSeller,
	})
	require.Error(t, err)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestUpdateStatusBuyerCancelReleasesInventoryOnce(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	productID := uuid.New()
	order := seedOrder(t, db, orderSeed{ProductID: productID, Qty: 2})
	seedInventory(t, db, productID, 3, 2)
	svc := newTestService(t, db, &fakeReverser{})
	ctx := context.Background()

	view, err := svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusCancelled,
		ActorID:   order.BuyerID,
		ActorRole: enums.ActorRoleBuyer,
		Reason:    "ordered by mistake",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, view.Status)
	assert.NotNil(t, view.CancelledAt)

	var item models.InventoryItem
	require.NoError(t, db.First(&item, "product_id = ?", productID).Error)
	assert.Equal(t, 5, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)

	stored, err := NewRepository(db).FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.InventoryRestoredAt)

	// Replaying the cancellation must not restore stock a second time.
	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusCancelled,
		ActorID:   order.BuyerID,
		ActorRole: enums.ActorRoleBuyer,
	})
	require.NoError(t, err)

	require.NoError(t, db.First(&item, "product_id = ?", productID).Error)
	assert.Equal(t, 5, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)
}

func TestUpdateStatusBuyerCannotCancelProcessing(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	order := seedOrder(t, db, orderSeed{Status: enums.OrderStatusProcessing})
	svc := newTestService(t, db, &fakeReverser{})

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusCancelled,
		ActorID:   order.BuyerID,
		ActorRole: enums.ActorRoleBuyer,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestUpdateStatusCannotCancelProcessingOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	productID := uuid.New()
	order := seedOrder(t, db, orderSeed{
		Status:        enums.OrderStatusProcessing,
		PaymentStatus: enums.PaymentStatusPaid,
		ProductID:     productID,
	})
	seedInventory(t, db, productID, 0, 2)
	reverser := &fakeReverser{}
	svc := newTestService(t, db, reverser)

	for _, role := range []enums.ActorRole{enums.ActorRoleSeller, enums.ActorRoleAdmin} {
		_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
			OrderID:   order.ID,
			Target:    enums.OrderStatusCancelled,
			ActorID:   order.SellerID,
			ActorRole: role,
		})
		require.Error(t, err)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	}

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusProcessing, reloaded.Status)
	assert.Equal(t, 0, reverser.calls)

	var item models.InventoryItem
	require.NoError(t, db.First(&item, "product_id = ?", productID).Error)
	assert.Equal(t, 0, item.AvailableQty)
	assert.Equal(t, 2, item.ReservedQty)
}

func TestUpdateStatusCancelPaidOrderReversesWallet(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	productID := uuid.New()
	order := seedOrder(t, db, orderSeed{ProductID: productID, PaymentStatus: enums.PaymentStatusPaid})
	seedInventory(t, db, productID, 0, 2)
	reverser := &fakeReverser{result: ReversalResult{Reversed: true, AmountCents: 13545}}
	svc := newTestService(t, db, reverser)

	view, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusCancelled,
		ActorID:   order.BuyerID,
		ActorRole: enums.ActorRoleBuyer,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, reverser.calls)
	assert.Equal(t, order.ID, reverser.lastID)
	assert.Equal(t, enums.PaymentStatusRefunded, view.PaymentStatus)
}

func TestUpdateStatusCancelPaidOutOrderFlagsManualRefund(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	productID := uuid.New()
	order := seedOrder(t, db, orderSeed{ProductID: productID, PaymentStatus: enums.PaymentStatusPaid})
	seedInventory(t, db, productID, 0, 2)
	reverser := &fakeReverser{result: ReversalResult{ManualReview: true}}
	svc := newTestService(t, db, reverser)
	ctx := context.Background()

	view, err := svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusCancelled,
		ActorID:   order.BuyerID,
		ActorRole: enums.ActorRoleBuyer,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, view.PaymentStatus)

	stored, err := NewRepository(db).FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.RequiresManualRefund)
}

func TestUpdateStatusShipped(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	productID := uuid.New()
	order := seedOrder(t, db, orderSeed{Status: enums.OrderStatusProcessing, ProductID: productID, Qty: 2})
	seedInventory(t, db, productID, 5, 2)
	svc := newTestService(t, db, &fakeReverser{})
	ctx := context.Background()

	// Tracking details are mandatory.
	_, err := svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusShipped,
		ActorID:   order.SellerID,
		ActorRole: enums.ActorRoleSeller,
	})
	require.Error(t, err)

	view, err := svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusShipped,
		ActorID:   order.SellerID,
		ActorRole: enums.ActorRoleSeller,
		Tracking: &TrackingInfo{
			Provider:       enums.CourierProviderCourierGuy,
			TrackingNumber: "CG123456",
			TrackingURL:    "https://track.example/CG123456",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, view.Status)
	require.NotNil(t, view.TrackingNumber)
	assert.Equal(t, "CG123456", *view.TrackingNumber)
	require.NotNil(t, view.CourierProvider)
	assert.Equal(t, enums.CourierProviderCourierGuy, *view.CourierProvider)
	assert.NotNil(t, view.ShippedAt)

	// The reservation is consumed by the shipment.
	var item models.InventoryItem
	require.NoError(t, db.First(&item, "product_id = ?", productID).Error)
	assert.Equal(t, 0, item.ReservedQty)
	assert.Equal(t, 5, item.AvailableQty)

	var events []models.OutboxEvent
	require.NoError(t, db.Where("aggregate_id = ?", order.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderShipped, events[0].EventType)
}

func TestUpdateStatusDeliveredByBuyer(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	order := seedOrder(t, db, orderSeed{Status: enums.OrderStatusShipped})
	svc := newTestService(t, db, &fakeReverser{})

	view, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:   order.ID,
		Target:    enums.OrderStatusDelivered,
		ActorID:   order.BuyerID,
		ActorRole: enums.ActorRoleBuyer,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, view.Status)
	assert.NotNil(t, view.DeliveredAt)
}

func TestUpdateStatusNotFound(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, &fakeReverser{})

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:   uuid.New(),
		Target:    enums.OrderStatusConfirmed,
		ActorID:   uuid.New(),
		ActorRole: enums.ActorRoleAdmin,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestRefundPaidOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	order := seedOrder(t, db, orderSeed{
		Status:        enums.OrderStatusProcessing,
		PaymentStatus: enums.PaymentStatusPaid,
	})
	reverser := &fakeReverser{result: ReversalResult{Reversed: true, AmountCents: 13545}}
	svc := newTestService(t, db, reverser)
	adminID := uuid.New()

	view, err := svc.Refund(context.Background(), order.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, view.PaymentStatus)
	assert.Equal(t, enums.OrderStatusProcessing, view.Status)
	assert.False(t, view.RequiresManualRefund)
	assert.Equal(t, 1, reverser.calls)
	assert.Equal(t, order.ID, reverser.lastID)

	var entries []models.OrderStatusEntry
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, enums.OrderStatusRefunded, entries[0].Status)
	assert.Equal(t, enums.ActorRoleAdmin, entries[0].ActorRole)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, adminID, *entries[0].ActorID)
}

func TestRefundKeepsStatusTrailAlternating(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	order := seedOrder(t, db, orderSeed{
		Status:        enums.OrderStatusProcessing,
		PaymentStatus: enums.PaymentStatusPaid,
	})
	repo := NewRepository(db)
	_, err := repo.AppendStatusEntry(context.Background(), &models.OrderStatusEntry{
		OrderID:   order.ID,
		Status:    enums.OrderStatusProcessing,
		Note:      "payment received, order moved to processing",
		ActorRole: enums.ActorRoleSystem,
	})
	require.NoError(t, err)

	reverser := &fakeReverser{result: ReversalResult{Reversed: true, AmountCents: 13545}}
	svc := newTestService(t, db, reverser)

	_, err = svc.Refund(context.Background(), order.ID, uuid.New())
	require.NoError(t, err)

	var entries []models.OrderStatusEntry
	require.NoError(t, db.Where("order_id = ?", order.ID).Order("created_at ASC, id ASC").Find(&entries).Error)
	require.Len(t, entries, 2)
	for i := 1; i < len(entries); i++ {
		assert.NotEqual(t, entries[i-1].Status, entries[i].Status)
	}
	assert.Equal(t, enums.OrderStatusRefunded, entries[len(entries)-1].Status)
}

func TestRefundReplayIsNoop(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	order := seedOrder(t, db, orderSeed{
		Status:        enums.OrderStatusProcessing,
		PaymentStatus: enums.PaymentStatusPaid,
	})
	reverser := &fakeReverser{result: ReversalResult{Reversed: true}}
	svc := newTestService(t, db, reverser)

	_, err := svc.Refund(context.Background(), order.ID, uuid.New())
	require.NoError(t, err)
	view, err := svc.Refund(context.Background(), order.ID, uuid.New())
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusRefunded, view.PaymentStatus)
	assert.Equal(t, 1, reverser.calls)

	var entryCount int64
	require.NoError(t, db.Model(&models.OrderStatusEntry{}).Where("order_id = ?", order.ID).Count(&entryCount).Error)
	assert.EqualValues(t, 1, entryCount)
}

func TestRefundUnpaidOrderRejected(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	order := seedOrder(t, db, orderSeed{})
	svc := newTestService(t, db, &fakeReverser{})

	_, err := svc.Refund(context.Background(), order.ID, uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestRefundDrainedWalletFlagsManualReview(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	order := seedOrder(t, db, orderSeed{
		Status:        enums.OrderStatusProcessing,
		PaymentStatus: enums.PaymentStatusPaid,
	})
	reverser := &fakeReverser{result: ReversalResult{ManualReview: true}}
	svc := newTestService(t, db, reverser)

	view, err := svc.Refund(context.Background(), order.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, view.PaymentStatus)
	assert.True(t, view.RequiresManualRefund)
}
