package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
)

// UpdateStatusInput carries a requested lifecycle transition.
type UpdateStatusInput struct {
	OrderID   uuid.UUID
	Target    enums.OrderStatus
	ActorID   uuid.UUID
	ActorRole enums.ActorRole
	Note      string
	Reason    string
	Tracking  *TrackingInfo
	// AllowSkip lets admin and system callers jump forward past
	// intermediate pipeline states.
	AllowSkip bool
}

// TrackingInfo accompanies a shipped transition.
type TrackingInfo struct {
	Provider       enums.CourierProvider
	TrackingNumber string
	TrackingURL    string
	CourierRef     string
}

// StatusEntryView is one history row in API responses.
type StatusEntryView struct {
	Status    enums.OrderStatus `json:"status"`
	Note      string            `json:"note,omitempty"`
	ActorRole enums.ActorRole   `json:"actorRole"`
	CreatedAt time.Time         `json:"createdAt"`
}

// LineItemView is one snapshot line in API responses.
type LineItemView struct {
	ProductID      uuid.UUID `json:"productId"`
	ProductName    string    `json:"productName"`
	SKU            string    `json:"sku"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unitPriceCents"`
	LineTotalCents int       `json:"lineTotalCents"`
}

// OrderView is the API shape of an order.
type OrderView struct {
	ID              uuid.UUID              `json:"id"`
	OrderNumber     string                 `json:"orderNumber"`
	BuyerID         uuid.UUID              `json:"buyerId"`
	SellerID        uuid.UUID              `json:"sellerId"`
	SellerName      string                 `json:"sellerName"`
	Status          enums.OrderStatus      `json:"status"`
	PaymentStatus   enums.PaymentStatus    `json:"paymentStatus"`
	PaymentMethod   enums.PaymentMethod    `json:"paymentMethod"`
	Currency        enums.Currency         `json:"currency"`
	SubtotalCents   int                    `json:"subtotalCents"`
	TaxCents        int                    `json:"taxCents"`
	ShippingCents   int                    `json:"shippingCents"`
	TotalCents      int                    `json:"totalCents"`
	CourierProvider *enums.CourierProvider `json:"courierProvider,omitempty"`
	TrackingNumber  *string                `json:"trackingNumber,omitempty"`
	TrackingURL     *string                `json:"trackingUrl,omitempty"`
	ConfirmedAt     *time.Time             `json:"confirmedAt,omitempty"`
	ShippedAt       *time.Time             `json:"shippedAt,omitempty"`
	DeliveredAt     *time.Time             `json:"deliveredAt,omitempty"`
	CancelledAt     *time.Time             `json:"cancelledAt,omitempty"`
	Items           []LineItemView         `json:"items"`
	StatusHistory   []StatusEntryView      `json:"statusHistory"`
	CreatedAt       time.Time              `json:"createdAt"`

	RequiresManualRefund bool `json:"requiresManualRefund,omitempty"`
}

// ToView maps the stored order onto its API shape.
func ToView(order *models.Order) OrderView {
	view := OrderView{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		BuyerID:         order.BuyerID,
		SellerID:        order.SellerID,
		SellerName:      order.SellerName,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		PaymentMethod:   order.PaymentMethod,
		Currency:        order.Currency,
		SubtotalCents:   order.SubtotalCents,
		TaxCents:        order.TaxCents,
		ShippingCents:   order.ShippingCents,
		TotalCents:      order.TotalCents,
		CourierProvider: order.CourierProvider,
		TrackingNumber:  order.TrackingNumber,
		TrackingURL:     order.TrackingURL,
		ConfirmedAt:     order.ConfirmedAt,
		ShippedAt:       order.ShippedAt,
		DeliveredAt:     order.DeliveredAt,
		CancelledAt:     order.CancelledAt,
		CreatedAt:       order.CreatedAt,

		RequiresManualRefund: order.RequiresManualRefund,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, LineItemView{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			SKU:            item.SKU,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		})
	}
	for _, entry := range order.StatusHistory {
		view.StatusHistory = append(view.StatusHistory, StatusEntryView{
			Status:    entry.Status,
			Note:      entry.Note,
			ActorRole: entry.ActorRole,
			CreatedAt: entry.CreatedAt,
		})
	}
	return view
}
