package courier

import (
	"context"

	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
)

// Provider is the uniform contract every shipping integration satisfies.
// Implementations map the shared shipment shape onto their own wire payloads.
type Provider interface {
	ID() enums.CourierProvider
	Quote(ctx context.Context, shipment Shipment) ([]Quote, error)
	Book(ctx context.Context, shipment Shipment, service string) (*Booking, error)
	Track(ctx context.Context, trackingNumber string) ([]TrackingEvent, error)
}

// LockerFinder is the extra capability of locker-network providers.
type LockerFinder interface {
	FindNearbyLockers(ctx context.Context, postalCode, city string) ([]Locker, error)
}
