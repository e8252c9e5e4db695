package courier

import (
	"time"

	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	"github.com/tjvanzyl/veldmart-backend/pkg/types"
)

// Parcel is one package in a shipment.
type Parcel struct {
	WeightKg float64 `json:"weightKg" validate:"gt=0"`
	LengthCm float64 `json:"lengthCm,omitempty"`
	WidthCm  float64 `json:"widthCm,omitempty"`
	HeightCm float64 `json:"heightCm,omitempty"`
}

// Shipment describes what needs to move and between which addresses.
type Shipment struct {
	From               types.Address `json:"from"`
	To                 types.Address `json:"to"`
	Parcels            []Parcel      `json:"parcels" validate:"min=1"`
	DeclaredValueCents int           `json:"declaredValueCents,omitempty"`
}

// Quote is one provider's offer for a shipment.
type Quote struct {
	Provider   enums.CourierProvider `json:"provider"`
	Service    string                `json:"service"`
	PriceCents int                   `json:"priceCents"`
	ETADays    int                   `json:"etaDays"`
}

// Booking is the provider's acknowledgement of a shipment.
type Booking struct {
	Provider       enums.CourierProvider `json:"provider"`
	TrackingNumber string                `json:"trackingNumber"`
	TrackingURL    string                `json:"trackingUrl,omitempty"`
	Reference      string                `json:"reference"`
}

// TrackingEvent is one scan in a parcel's journey.
type TrackingEvent struct {
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Locker is a pickup point in the locker network.
type Locker struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	PostalCode string  `json:"postalCode"`
	City       string  `json:"city"`
	Latitude   float64 `json:"latitude,omitempty"`
	Longitude  float64 `json:"longitude,omitempty"`
}
