package checkout

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tjvanzyl/veldmart-backend/internal/inventory"
	"github.com/tjvanzyl/veldmart-backend/internal/orders"
	dbpkg "github.com/tjvanzyl/veldmart-backend/pkg/db"
	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/logger"
	"github.com/tjvanzyl/veldmart-backend/pkg/outbox"
	"github.com/tjvanzyl/veldmart-backend/pkg/outbox/payloads"
	"github.com/tjvanzyl/veldmart-backend/pkg/payfast"
)

const maxOrderNumberAttempts = 5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Config carries the money rules checkout applies per order.
type Config struct {
	TaxRate                    float64
	FreeShippingThresholdCents int
	FlatShippingFeeCents       int
}

// Service turns a cart into per-seller orders with reserved stock.
type Service interface {
	Checkout(ctx context.Context, input Input) (*Result, error)
}

type service struct {
	catalog   CatalogRepository
	orders    orders.Repository
	inventory inventory.Service
	tx        txRunner
	outbox    outboxPublisher
	merchant  payfast.Merchant
	cfg       Config
	logg      *logger.Logger
}

// NewService builds the checkout service.
func NewService(
	catalog CatalogRepository,
	ordersRepo orders.Repository,
	inv inventory.Service,
	tx txRunner,
	ob outboxPublisher,
	merchant payfast.Merchant,
	cfg Config,
	logg *logger.Logger,
) (Service, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if cfg.TaxRate < 0 || cfg.TaxRate >= 1 {
		return nil, fmt.Errorf("tax rate must be in [0,1)")
	}
	return &service{
		catalog:   catalog,
		orders:    ordersRepo,
		inventory: inv,
		tx:        tx,
		outbox:    ob,
		merchant:  merchant,
		cfg:       cfg,
		logg:      logg,
	}, nil
}

func (s *service) Checkout(ctx context.Context, input Input) (*Result, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}

	qtyByProduct := make(map[uuid.UUID]int, len(input.Items))
	ids := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		if _, seen := qtyByProduct[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		qtyByProduct[item.ProductID] += item.Qty
	}

	var created []models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		products, err := s.catalog.WithTx(tx).FindActiveByIDs(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}
		if len(products) != len(ids) {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart contains unknown or inactive products").
				WithDetails(map[string]any{"requested": len(ids), "found": len(products)})
		}

		reservations := make([]inventory.ReservationRequest, 0, len(ids))
		for _, p := range products {
			reservations = append(reservations, inventory.ReservationRequest{
				ProductID: p.ID,
				Qty:       qtyByProduct[p.ID],
			})
		}
		if err := s.inventory.ReserveAll(ctx, tx, reservations); err != nil {
			return err
		}

		ordersRepo := s.orders.WithTx(tx)
		for _, group := range groupBySeller(products) {
			order := s.buildOrder(input, group, qtyByProduct)
			stored, err := s.createWithNumberRetry(ctx, ordersRepo, order)
			if err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   stored.ID,
				Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: string(enums.ActorRoleBuyer)},
				Data: payloads.OrderCreatedEvent{
					OrderID:     stored.ID,
					OrderNumber: stored.OrderNumber,
					BuyerID:     stored.BuyerID,
					SellerID:    stored.SellerID,
					TotalCents:  stored.TotalCents,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
			}
			created = append(created, *stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Orders: make([]orders.OrderView, 0, len(created))}
	for i := range created {
		result.Orders = append(result.Orders, orders.ToView(&created[i]))
	}

	if input.PaymentMethod == enums.PaymentMethodPayFast || input.PaymentMethod == enums.PaymentMethodCard {
		for i := range created {
			redirect, err := s.buildRedirect(input, &created[i])
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build payment request")
			}
			result.Payments = append(result.Payments, *redirect)
		}
	}
	return result, nil
}

func (s *service) validate(input Input) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer is required")
	}
	if strings.TrimSpace(input.BuyerEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer email is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil || item.Qty < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart items need a product and a positive quantity")
		}
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unknown payment method %q", input.PaymentMethod))
	}
	if err := input.ShippingTo.Validate(); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	return nil
}

type sellerGroup struct {
	sellerID   uuid.UUID
	sellerName string
	products   []models.Product
}

// groupBySeller splits the cart's products into one group per seller, in a
// stable order so retried checkouts create orders deterministically.
func groupBySeller(products []models.Product) []sellerGroup {
	bySeller := make(map[uuid.UUID]*sellerGroup)
	for _, p := range products {
		group, ok := bySeller[p.SellerID]
		if !ok {
			group = &sellerGroup{sellerID: p.SellerID, sellerName: p.SellerName}
			bySeller[p.SellerID] = group
		}
		group.products = append(group.products, p)
	}

	groups := make([]sellerGroup, 0, len(bySeller))
	for _, group := range bySeller {
		sort.Slice(group.products, func(i, j int) bool {
			return group.products[i].ID.String() < group.products[j].ID.String()
		})
		groups = append(groups, *group)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].sellerID.String() < groups[j].sellerID.String()
	})
	return groups
}

func (s *service) buildOrder(input Input, group sellerGroup, qtyByProduct map[uuid.UUID]int) *models.Order {
	items := make([]models.OrderLineItem, 0, len(group.products))
	subtotal := 0
	for _, p := range group.products {
		qty := qtyByProduct[p.ID]
		lineTotal := p.PriceCents * qty
		subtotal += lineTotal
		items = append(items, models.OrderLineItem{
			ProductID:      p.ID,
			ProductName:    p.Name,
			SKU:            p.SKU,
			Quantity:       qty,
			UnitPriceCents: p.PriceCents,
			LineTotalCents: lineTotal,
		})
	}

	tax := taxForSubtotal(subtotal, s.cfg.TaxRate)
	shipping := s.cfg.FlatShippingFeeCents
	if subtotal >= s.cfg.FreeShippingThresholdCents {
		shipping = 0
	}

	return &models.Order{
		BuyerID:         input.BuyerID,
		BuyerEmail:      input.BuyerEmail,
		SellerID:        group.sellerID,
		SellerName:      group.sellerName,
		Currency:        enums.CurrencyZAR,
		SubtotalCents:   subtotal,
		TaxCents:        tax,
		ShippingCents:   shipping,
		TotalCents:      subtotal + tax + shipping,
		ShippingAddress: input.ShippingTo,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   enums.PaymentStatusPending,
		Status:          enums.OrderStatusPending,
		Items:           items,
	}
}

func taxForSubtotal(subtotalCents int, rate float64) int {
	subtotal := decimal.New(int64(subtotalCents), 0)
	return int(subtotal.Mul(decimal.NewFromFloat(rate)).Round(0).IntPart())
}

// createWithNumberRetry persists the order, regenerating the human-readable
// order number if it collides with an existing one.
func (s *service) createWithNumberRetry(ctx context.Context, repo orders.Repository, order *models.Order) (*models.Order, error) {
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		number, err := orders.GenerateOrderNumber()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		order.OrderNumber = number

		stored, err := repo.CreateOrder(ctx, order)
		if err == nil {
			return stored, nil
		}
		if !dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if s.logg != nil {
			logCtx := s.logg.WithField(ctx, "order_number", number)
			s.logg.Warn(logCtx, "order number collision, retrying")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "could not allocate an order number")
}

func (s *service) buildRedirect(input Input, order *models.Order) (*PaymentRedirect, error) {
	itemName := fmt.Sprintf("Veldmart order %s", order.OrderNumber)
	fields, err := payfast.BuildPaymentRequest(s.merchant, payfast.PaymentRequest{
		PaymentID:      order.OrderNumber,
		AmountCents:    order.TotalCents,
		ItemName:       itemName,
		BuyerFirstName: input.BuyerFirstName,
		BuyerLastName:  input.BuyerLastName,
		BuyerEmail:     input.BuyerEmail,
	})
	if err != nil {
		return nil, err
	}

	redirect := &PaymentRedirect{
		OrderNumber: order.OrderNumber,
		ProcessURL:  s.merchant.ProcessURL,
		Fields:      make([]PaymentField, 0, len(fields)),
	}
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		redirect.Fields = append(redirect.Fields, PaymentField{Key: f.Key, Value: f.Value})
	}
	return redirect, nil
}
