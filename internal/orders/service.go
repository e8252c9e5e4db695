package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tjvanzyl/veldmart-backend/internal/inventory"
	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/logger"
	"github.com/tjvanzyl/veldmart-backend/pkg/outbox"
	"github.com/tjvanzyl/veldmart-backend/pkg/outbox/payloads"
	"github.com/tjvanzyl/veldmart-backend/pkg/pagination"
)

// maxVersionRetries bounds the optimistic-concurrency retry loop.
const maxVersionRetries = 3

var errVersionConflict = errors.New("order version conflict")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReversalResult reports what happened to a paid order's wallet credit when
// the order was cancelled or refunded.
type ReversalResult struct {
	Reversed     bool
	ManualReview bool
	AmountCents  int
}

// SaleReverser undoes the wallet credit behind a paid order.
type SaleReverser interface {
	ReverseSale(ctx context.Context, tx *gorm.DB, order *models.Order) (ReversalResult, error)
}

// Service defines order lifecycle operations.
type Service interface {
	GetByID(ctx context.Context, orderID, actorID uuid.UUID, role enums.ActorRole) (*OrderView, error)
	List(ctx context.Context, actorID uuid.UUID, role enums.ActorRole, params pagination.Params, filters ListFilters) ([]OrderView, string, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderView, error)
	// Refund reverses a paid order's wallet credit and marks the payment
	// refunded. Admin-only; the order keeps its lifecycle status.
	Refund(ctx context.Context, orderID, actorID uuid.UUID) (*OrderView, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory inventory.Service
	wallet    SaleReverser
	logg      *logger.Logger
}

// NewService builds the order lifecycle service.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, inv inventory.Service, wallet SaleReverser, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if wallet == nil {
		return nil, fmt.Errorf("sale reverser required")
	}
	return &service{repo: repo, tx: tx, outbox: ob, inventory: inv, wallet: wallet, logg: logg}, nil
}

func (s *service) GetByID(ctx context.Context, orderID, actorID uuid.UUID, role enums.ActorRole) (*OrderView, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := checkOwnership(order, actorID, role); err != nil {
		return nil, err
	}
	view := ToView(order)
	return &view, nil
}

func (s *service) List(ctx context.Context, actorID uuid.UUID, role enums.ActorRole, params pagination.Params, filters ListFilters) ([]OrderView, string, error) {
	var (
		list *OrderList
		err  error
	)
	switch role {
	case enums.ActorRoleBuyer:
		list, err = s.repo.ListByBuyer(ctx, actorID, params, filters)
	case enums.ActorRoleSeller:
		list, err = s.repo.ListBySeller(ctx, actorID, params, filters)
	default:
		return nil, "", pkgerrors.New(pkgerrors.CodeForbidden, "listing requires a buyer or seller context")
	}
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	views := make([]OrderView, 0, len(list.Orders))
	for i := range list.Orders {
		views = append(views, ToView(&list.Orders[i]))
	}
	return views, list.NextCursor, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderView, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid target status %q", input.Target))
	}
	if !input.ActorRole.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}
	if input.Target == enums.OrderStatusShipped && (input.Tracking == nil || input.Tracking.TrackingNumber == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking details required to mark shipped")
	}

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.applyTransition(ctx, tx, input)
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		order, err := s.repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		view := ToView(order)
		return &view, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order was updated concurrently, retry")
}

func (s *service) applyTransition(ctx context.Context, tx *gorm.DB, input UpdateStatusInput) error {
	repo := s.repo.WithTx(tx)

	order, err := repo.FindByID(ctx, input.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := checkOwnership(order, input.ActorID, input.ActorRole); err != nil {
		return err
	}

	// Replaying the current status is a no-op, not an error.
	if order.Status == input.Target {
		return nil
	}
	if !CanTransition(order.Status, input.Target) {
		skipAllowed := input.AllowSkip &&
			(input.ActorRole == enums.ActorRoleAdmin || input.ActorRole == enums.ActorRoleSystem) &&
			CanSkipTo(order.Status, input.Target)
		if !skipAllowed {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move order from %s to %s", order.Status, input.Target))
		}
	}
	if !ActorAllowed(input.ActorRole, order.Status, input.Target) {
		return pkgerrors.New(pkgerrors.CodeForbidden,
			fmt.Sprintf("%s may not move order to %s", input.ActorRole, input.Target))
	}

	now := time.Now()
	updates := map[string]any{"status": input.Target}
	note := input.Note

	switch input.Target {
	case enums.OrderStatusConfirmed:
		if order.ConfirmedAt == nil {
			updates["confirmed_at"] = now
		}
		if note == "" {
			note = "order confirmed"
		}

	case enums.OrderStatusProcessing:
		if note == "" {
			note = "order moved to processing"
		}

	case enums.OrderStatusShipped:
		if order.ShippedAt == nil {
			updates["shipped_at"] = now
		}
		updates["courier_provider"] = input.Tracking.Provider
		updates["tracking_number"] = input.Tracking.TrackingNumber
		if input.Tracking.TrackingURL != "" {
			updates["tracking_url"] = input.Tracking.TrackingURL
		}
		if input.Tracking.CourierRef != "" {
			updates["courier_ref"] = input.Tracking.CourierRef
		}
		if note == "" {
			note = fmt.Sprintf("shipped via %s, tracking %s", input.Tracking.Provider, input.Tracking.TrackingNumber)
		}
		// Shipping consumes the reservation.
		if err := s.inventory.Commit(ctx, tx, s.inventoryRequests(order)); err != nil {
			return err
		}

	case enums.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			updates["delivered_at"] = now
		}
		if note == "" {
			note = "order delivered"
		}

	case enums.OrderStatusCancelled:
		if order.CancelledAt == nil {
			updates["cancelled_at"] = now
		}
		if note == "" {
			note = "order cancelled"
			if input.Reason != "" {
				note = "order cancelled: " + input.Reason
			}
		}
		if err := s.cancelSideEffects(ctx, tx, order, updates); err != nil {
			return err
		}
	}

	ok, err := repo.UpdateVersioned(ctx, order.ID, order.Version, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}
	if !ok {
		return errVersionConflict
	}

	if _, err := repo.AppendStatusEntry(ctx, &models.OrderStatusEntry{
		OrderID:   order.ID,
		Status:    input.Target,
		Note:      note,
		ActorRole: input.ActorRole,
		ActorID:   actorIDPtr(input.ActorID),
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
	}

	return s.emitTransitionEvents(ctx, tx, order, input, now)
}

func (s *service) Refund(ctx context.Context, orderID, actorID uuid.UUID) (*OrderView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.applyRefund(ctx, tx, orderID, actorID)
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		order, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		view := ToView(order)
		return &view, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order was updated concurrently, retry")
}

func (s *service) applyRefund(ctx context.Context, tx *gorm.DB, orderID, actorID uuid.UUID) error {
	repo := s.repo.WithTx(tx)

	order, err := repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	// Replaying a refund is a no-op.
	if order.PaymentStatus == enums.PaymentStatusRefunded {
		return nil
	}
	if order.PaymentStatus != enums.PaymentStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot refund order with payment status %s", order.PaymentStatus))
	}

	result, err := s.wallet.ReverseSale(ctx, tx, order)
	if err != nil {
		return err
	}

	updates := map[string]any{"payment_status": enums.PaymentStatusRefunded}
	note := "refund issued"
	if result.ManualReview {
		updates["requires_manual_refund"] = true
		note = "refund requires manual review, wallet balance insufficient"
	}

	ok, err := repo.UpdateVersioned(ctx, order.ID, order.Version, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
	}
	if !ok {
		return errVersionConflict
	}

	// The refund marker keeps the trail free of consecutive same-status
	// entries; the order's lifecycle status itself does not change.
	if _, err := repo.AppendStatusEntry(ctx, &models.OrderStatusEntry{
		OrderID:   order.ID,
		Status:    enums.OrderStatusRefunded,
		Note:      note,
		ActorRole: enums.ActorRoleAdmin,
		ActorID:   actorIDPtr(actorID),
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
	}

	return nil
}

// cancelSideEffects releases held stock exactly once and unwinds a paid
// order's wallet credit, falling back to a manual-refund flag when the money
// already left the wallet.
func (s *service) cancelSideEffects(ctx context.Context, tx *gorm.DB, order *models.Order, updates map[string]any) error {
	if order.InventoryRestoredAt == nil {
		if err := s.inventory.Release(ctx, tx, s.inventoryRequests(order)); err != nil {
			return err
		}
		updates["inventory_restored_at"] = time.Now()
	}

	if order.PaymentStatus == enums.PaymentStatusPaid {
		result, err := s.wallet.ReverseSale(ctx, tx, order)
		if err != nil {
			return err
		}
		switch {
		case result.Reversed:
			updates["payment_status"] = enums.PaymentStatusRefunded
		case result.ManualReview:
			updates["requires_manual_refund"] = true
		}
	}
	return nil
}

func (s *service) emitTransitionEvents(ctx context.Context, tx *gorm.DB, order *models.Order, input UpdateStatusInput, now time.Time) error {
	actor := &outbox.ActorRef{UserID: input.ActorID, Role: string(input.ActorRole)}

	switch input.Target {
	case enums.OrderStatusShipped:
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderShipped,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderShippedEvent{
				OrderID:        order.ID,
				OrderNumber:    order.OrderNumber,
				Courier:        input.Tracking.Provider,
				TrackingNumber: input.Tracking.TrackingNumber,
				ShippedAt:      now,
			},
		})

	case enums.OrderStatusDelivered:
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderDeliveredEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				DeliveredAt: now,
			},
		})

	case enums.OrderStatusCancelled:
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				ActorRole:   input.ActorRole,
				Reason:      input.Reason,
				CancelledAt: now,
			},
		})
	}
	return nil
}

func (s *service) inventoryRequests(order *models.Order) []inventory.ReservationRequest {
	requests := make([]inventory.ReservationRequest, 0, len(order.Items))
	for _, item := range order.Items {
		requests = append(requests, inventory.ReservationRequest{
			ProductID: item.ProductID,
			Qty:       item.Quantity,
		})
	}
	return requests
}

func checkOwnership(order *models.Order, actorID uuid.UUID, role enums.ActorRole) error {
	switch role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return nil
	case enums.ActorRoleBuyer:
		if order.BuyerID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
		}
	case enums.ActorRoleSeller:
		if order.SellerID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to seller")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}
	return nil
}

func actorIDPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
