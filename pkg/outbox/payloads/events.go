package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
)

// OrderCreatedEvent signals a checkout that was fanned out per seller.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	TotalCents  int       `json:"total_cents"`
}

// OrderPaidEvent fires once the gateway confirms payment for an order.
type OrderPaidEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	SellerID    uuid.UUID `json:"seller_id"`
	AmountCents int       `json:"amount_cents"`
	GatewayRef  string    `json:"gateway_ref,omitempty"`
	PaidAt      time.Time `json:"paid_at"`
}

// PaymentFailedEvent reports a failed gateway payment attempt.
type PaymentFailedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	GatewayRef  string    `json:"gateway_ref,omitempty"`
}

// OrderShippedEvent carries tracking details once a courier accepts the parcel.
type OrderShippedEvent struct {
	OrderID        uuid.UUID             `json:"order_id"`
	OrderNumber    string                `json:"order_number"`
	Courier        enums.CourierProvider `json:"courier"`
	TrackingNumber string                `json:"tracking_number"`
	ShippedAt      time.Time             `json:"shipped_at"`
}

// OrderDeliveredEvent closes out the shipping leg of the lifecycle.
type OrderDeliveredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// OrderCancelledEvent is emitted whenever a pre-shipment order is cancelled.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	ActorRole   enums.ActorRole `json:"actor_role"`
	Reason      string          `json:"reason,omitempty"`
	CancelledAt time.Time       `json:"cancelled_at"`
}

// OrderRefundedEvent reports a wallet reversal after a paid order cancelled.
type OrderRefundedEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	OrderNumber  string    `json:"order_number"`
	AmountCents  int       `json:"amount_cents"`
	ManualReview bool      `json:"manual_review"`
}

// WalletCreditedEvent fires when a sale credit lands in a seller wallet.
type WalletCreditedEvent struct {
	WalletID     uuid.UUID `json:"wallet_id"`
	SellerID     uuid.UUID `json:"seller_id"`
	OrderID      uuid.UUID `json:"order_id"`
	NetCents     int       `json:"net_cents"`
	FeeCents     int       `json:"fee_cents"`
	BalanceCents int       `json:"balance_cents"`
}

// PayoutRequestedEvent starts the payout flow for finance tooling.
type PayoutRequestedEvent struct {
	WalletID      uuid.UUID `json:"wallet_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	AmountCents   int       `json:"amount_cents"`
}

// PayoutCompletedEvent confirms a payout settled outside the platform.
type PayoutCompletedEvent struct {
	WalletID      uuid.UUID `json:"wallet_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	AmountCents   int       `json:"amount_cents"`
	CompletedAt   time.Time `json:"completed_at"`
}

// BookingUnreconciledEvent flags a shipment booking whose courier reference
// could not be matched back to an order.
type BookingUnreconciledEvent struct {
	OrderID    uuid.UUID             `json:"order_id"`
	Courier    enums.CourierProvider `json:"courier"`
	CourierRef string                `json:"courier_ref"`
	Reason     string                `json:"reason"`
}
