package checkout

import (
	"github.com/google/uuid"

	"github.com/tjvanzyl/veldmart-backend/internal/orders"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	"github.com/tjvanzyl/veldmart-backend/pkg/types"
)

// CartItem is one product line in the submitted cart.
type CartItem struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Qty       int       `json:"qty" validate:"min=1"`
}

// Input is a submitted checkout for one buyer.
type Input struct {
	BuyerID        uuid.UUID
	BuyerEmail     string
	BuyerFirstName string
	BuyerLastName  string
	ShippingTo     types.Address
	PaymentMethod  enums.PaymentMethod
	Items          []CartItem
}

// PaymentField is one form field of the gateway redirect.
type PaymentField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// PaymentRedirect tells the client how to send the buyer to the gateway for
// one order. Fields are ordered; the client posts them as-is.
type PaymentRedirect struct {
	OrderNumber string         `json:"orderNumber"`
	ProcessURL  string         `json:"processUrl"`
	Fields      []PaymentField `json:"fields"`
}

// Result is everything a completed checkout produced.
type Result struct {
	Orders   []orders.OrderView `json:"orders"`
	Payments []PaymentRedirect  `json:"payments,omitempty"`
}
