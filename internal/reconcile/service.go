package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tjvanzyl/veldmart-backend/internal/inventory"
	"github.com/tjvanzyl/veldmart-backend/internal/orders"
	"github.com/tjvanzyl/veldmart-backend/internal/wallet"
	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/logger"
	"github.com/tjvanzyl/veldmart-backend/pkg/metrics"
	"github.com/tjvanzyl/veldmart-backend/pkg/outbox"
	"github.com/tjvanzyl/veldmart-backend/pkg/outbox/payloads"
	"github.com/tjvanzyl/veldmart-backend/pkg/payfast"
)

const (
	gatewayLabel      = "payfast"
	maxVersionRetries = 3
)

var errVersionConflict = errors.New("order version conflict")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type saleCrediter interface {
	CreditSale(ctx context.Context, tx *gorm.DB, order *models.Order) (wallet.CreditResult, error)
}

// Config carries the gateway verification knobs.
type Config struct {
	Passphrase  string
	AllowedIPs  []string
	SkipIPCheck bool
}

// Notification is one inbound gateway callback.
type Notification struct {
	Body       string
	RemoteAddr string
}

// Service sequences payment notification handling: verify the source and
// signature, find the order, check the amount, then apply the payment in a
// defined order (order status first, wallet credit second, one transaction).
type Service interface {
	HandleITN(ctx context.Context, notification Notification) error
}

type service struct {
	orders    orders.Repository
	inventory inventory.Service
	wallet    saleCrediter
	tx        txRunner
	outbox    outboxPublisher
	cfg       Config
	metrics   *metrics.WebhookMetrics
	logg      *logger.Logger
}

// NewService builds the reconciliation orchestrator.
func NewService(
	ordersRepo orders.Repository,
	inv inventory.Service,
	walletSvc saleCrediter,
	tx txRunner,
	ob outboxPublisher,
	cfg Config,
	webhookMetrics *metrics.WebhookMetrics,
	logg *logger.Logger,
) (Service, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if walletSvc == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		orders:    ordersRepo,
		inventory: inv,
		wallet:    walletSvc,
		tx:        tx,
		outbox:    ob,
		cfg:       cfg,
		metrics:   webhookMetrics,
		logg:      logg,
	}, nil
}

func (s *service) HandleITN(ctx context.Context, notification Notification) error {
	start := time.Now()
	err := s.handle(ctx, notification)
	s.metrics.ObserveDuration(gatewayLabel, time.Since(start))
	s.metrics.IncOutcome(gatewayLabel, outcomeFor(err))
	return err
}

func outcomeFor(err error) string {
	if err == nil {
		return "ok"
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return "error"
	}
	switch typed.Code() {
	case pkgerrors.CodeForbidden:
		return "forbidden_ip"
	case pkgerrors.CodeSignature:
		return "invalid_signature"
	case pkgerrors.CodeAmountMismatch:
		return "amount_mismatch"
	case pkgerrors.CodeNotFound:
		return "order_not_found"
	default:
		return "error"
	}
}

func (s *service) handle(ctx context.Context, notification Notification) error {
	if !s.cfg.SkipIPCheck && !payfast.IPAllowed(notification.RemoteAddr, s.cfg.AllowedIPs) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "notification source not allowed").
			WithDetails(map[string]any{"remote_addr": notification.RemoteAddr})
	}

	itn, err := payfast.ParseITN(notification.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeSignature, err, "malformed notification")
	}
	if !itn.Verify(s.cfg.Passphrase) {
		return pkgerrors.New(pkgerrors.CodeSignature, "notification signature mismatch")
	}

	order, err := s.orders.FindByOrderNumber(ctx, itn.PaymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound,
			fmt.Sprintf("no order for payment id %q", itn.PaymentID))
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if !itn.AmountMatches(order.TotalCents) {
		return pkgerrors.New(pkgerrors.CodeAmountMismatch, "gross amount does not match order total").
			WithDetails(map[string]any{
				"amount_gross": itn.AmountGross.String(),
				"total_cents":  order.TotalCents,
			})
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithFields(ctx, map[string]any{
			"order_number":   order.OrderNumber,
			"gateway_txn_id": itn.GatewayTxnID,
			"gateway_status": itn.PaymentStatus,
		})
	}

	switch payfast.MapPaymentStatus(itn.PaymentStatus) {
	case enums.PaymentStatusPaid:
		return s.applyWithRetry(logCtx, order.ID, func(ctx context.Context, tx *gorm.DB, order *models.Order) error {
			return s.applyPaid(ctx, tx, order, itn)
		})
	case enums.PaymentStatusFailed:
		return s.applyWithRetry(logCtx, order.ID, func(ctx context.Context, tx *gorm.DB, order *models.Order) error {
			return s.applyFailed(ctx, tx, order, itn)
		})
	default:
		// Pending and unknown statuses acknowledge without side effects;
		// the gateway sends a terminal status later.
		if s.logg != nil {
			s.logg.Info(logCtx, "notification acknowledged without state change")
		}
		return nil
	}
}

type applyFunc func(ctx context.Context, tx *gorm.DB, order *models.Order) error

func (s *service) applyWithRetry(ctx context.Context, orderID uuid.UUID, apply applyFunc) error {
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.orders.WithTx(tx)
			order, err := repo.FindByID(ctx, orderID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			return apply(ctx, tx, order)
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		return err
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order was updated concurrently, retry")
}

// applyPaid marks the order paid and moves it into processing, then credits
// the seller wallet inside the same transaction. Replays stop at the
// payment-status check.
func (s *service) applyPaid(ctx context.Context, tx *gorm.DB, order *models.Order, itn *payfast.Notification) error {
	if order.PaymentStatus == enums.PaymentStatusPaid ||
		order.PaymentStatus == enums.PaymentStatusRefunded {
		return nil
	}

	repo := s.orders.WithTx(tx)
	now := time.Now()

	updates := map[string]any{"payment_status": enums.PaymentStatusPaid}
	target := order.Status
	if order.Status == enums.OrderStatusPending || order.Status == enums.OrderStatusConfirmed {
		target = enums.OrderStatusProcessing
		updates["status"] = target
		if order.ConfirmedAt == nil {
			updates["confirmed_at"] = now
		}
	}

	ok, err := repo.UpdateVersioned(ctx, order.ID, order.Version, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	if !ok {
		return errVersionConflict
	}

	if target != order.Status {
		if _, err := repo.AppendStatusEntry(ctx, &models.OrderStatusEntry{
			OrderID:   order.ID,
			Status:    target,
			Note:      "payment received, order moved to processing",
			ActorRole: enums.ActorRoleSystem,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
		}
	}

	if _, err := s.wallet.CreditSale(ctx, tx, order); err != nil {
		return err
	}

	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{Role: string(enums.ActorRoleSystem)},
		Data: payloads.OrderPaidEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			SellerID:    order.SellerID,
			AmountCents: order.TotalCents,
			GatewayRef:  itn.GatewayTxnID,
			PaidAt:      now,
		},
	})
}

// applyFailed marks the payment failed and cancels a not-yet-shipped order,
// releasing its reservation exactly once.
func (s *service) applyFailed(ctx context.Context, tx *gorm.DB, order *models.Order, itn *payfast.Notification) error {
	if order.PaymentStatus == enums.PaymentStatusFailed {
		return nil
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		// A failure after a success is gateway noise, not a reversal.
		return nil
	}

	repo := s.orders.WithTx(tx)
	now := time.Now()

	updates := map[string]any{"payment_status": enums.PaymentStatusFailed}
	cancelled := false
	if order.Status == enums.OrderStatusPending || order.Status == enums.OrderStatusConfirmed {
		cancelled = true
		updates["status"] = enums.OrderStatusCancelled
		if order.CancelledAt == nil {
			updates["cancelled_at"] = now
		}
		if order.InventoryRestoredAt == nil {
			if err := s.releaseInventory(ctx, tx, order); err != nil {
				return err
			}
			updates["inventory_restored_at"] = now
		}
	}

	ok, err := repo.UpdateVersioned(ctx, order.ID, order.Version, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
	}
	if !ok {
		return errVersionConflict
	}

	if cancelled {
		if _, err := repo.AppendStatusEntry(ctx, &models.OrderStatusEntry{
			OrderID:   order.ID,
			Status:    enums.OrderStatusCancelled,
			Note:      "payment failed, order cancelled",
			ActorRole: enums.ActorRoleSystem,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
		}
	}

	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{Role: string(enums.ActorRoleSystem)},
		Data: payloads.PaymentFailedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			GatewayRef:  itn.GatewayTxnID,
		},
	})
}

func (s *service) releaseInventory(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	requests := make([]inventory.ReservationRequest, 0, len(order.Items))
	for _, item := range order.Items {
		requests = append(requests, inventory.ReservationRequest{
			ProductID: item.ProductID,
			Qty:       item.Quantity,
		})
	}
	return s.inventory.Release(ctx, tx, requests)
}
