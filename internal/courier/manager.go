package courier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/tjvanzyl/veldmart-backend/internal/orders"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/logger"
	"github.com/tjvanzyl/veldmart-backend/pkg/metrics"
)

type orderShipper interface {
	UpdateStatus(ctx context.Context, input orders.UpdateStatusInput) (*orders.OrderView, error)
}

// ShipInput carries everything needed to book and record a shipment.
type ShipInput struct {
	OrderID   uuid.UUID
	Provider  enums.CourierProvider
	Service   string
	Shipment  Shipment
	ActorID   uuid.UUID
	ActorRole enums.ActorRole
}

// Manager fronts the configured courier providers. Dispatch is by provider
// id through a lookup table; quote requests fan out to every provider.
type Manager struct {
	providers map[enums.CourierProvider]Provider
	orders    orderShipper
	metrics   *metrics.CourierMetrics
	logg      *logger.Logger
}

// NewManager wires the provider table. Providers may be empty, but shipping
// operations will then fail with a validation error naming the provider.
func NewManager(providers []Provider, ordersSvc orderShipper, courierMetrics *metrics.CourierMetrics, logg *logger.Logger) (*Manager, error) {
	if ordersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	table := make(map[enums.CourierProvider]Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, dup := table[p.ID()]; dup {
			return nil, fmt.Errorf("duplicate courier provider %s", p.ID())
		}
		table[p.ID()] = p
	}
	return &Manager{
		providers: table,
		orders:    ordersSvc,
		metrics:   courierMetrics,
		logg:      logg,
	}, nil
}

func (m *Manager) provider(id enums.CourierProvider) (Provider, error) {
	p, ok := m.providers[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unknown courier provider %q", id))
	}
	return p, nil
}

// GetAllQuotes asks every configured provider for rates. A provider failure
// is logged and skipped; the call only errors when no provider answered.
func (m *Manager) GetAllQuotes(ctx context.Context, shipment Shipment) ([]Quote, error) {
	if len(shipment.Parcels) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment needs at least one parcel")
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		quotes []Quote
		errs   error
	)
	for _, p := range m.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			start := time.Now()
			providerQuotes, err := p.Quote(ctx, shipment)
			m.metrics.ObserveCall(p.ID().String(), "quote", time.Since(start), err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if m.logg != nil {
					logCtx := m.logg.WithField(ctx, "courier_provider", p.ID().String())
					m.logg.Error(logCtx, "courier quote failed", err)
				}
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.ID(), err))
				return
			}
			quotes = append(quotes, providerQuotes...)
		}(p)
	}
	wg.Wait()

	if len(quotes) == 0 && errs != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "all courier providers failed")
	}
	return quotes, nil
}

// CreateShipment books with the chosen provider, then records the shipped
// transition on the order. The external booking happens first; when the
// local update fails afterwards the tracking number is logged for manual
// reconciliation instead of being dropped.
func (m *Manager) CreateShipment(ctx context.Context, input ShipInput) (*Booking, *orders.OrderView, error) {
	p, err := m.provider(input.Provider)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	booking, err := p.Book(ctx, input.Shipment, input.Service)
	m.metrics.ObserveCall(p.ID().String(), "book", time.Since(start), err)
	if err != nil {
		return nil, nil, err
	}

	view, err := m.orders.UpdateStatus(ctx, orders.UpdateStatusInput{
		OrderID:   input.OrderID,
		Target:    enums.OrderStatusShipped,
		ActorID:   input.ActorID,
		ActorRole: input.ActorRole,
		Tracking: &orders.TrackingInfo{
			Provider:       booking.Provider,
			TrackingNumber: booking.TrackingNumber,
			TrackingURL:    booking.TrackingURL,
			CourierRef:     booking.Reference,
		},
	})
	if err != nil {
		if m.logg != nil {
			logCtx := m.logg.WithFields(ctx, map[string]any{
				"order_id":         input.OrderID.String(),
				"courier_provider": booking.Provider.String(),
				"tracking_number":  booking.TrackingNumber,
				"courier_ref":      booking.Reference,
			})
			m.logg.Error(logCtx, "shipment booked but order update failed, needs reconciliation", err)
		}
		return booking, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err,
			"shipment booked but order not updated")
	}
	return booking, view, nil
}

// TrackShipment fetches tracking events from the owning provider.
func (m *Manager) TrackShipment(ctx context.Context, providerID enums.CourierProvider, trackingNumber string) ([]TrackingEvent, error) {
	if trackingNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required")
	}
	p, err := m.provider(providerID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	events, err := p.Track(ctx, trackingNumber)
	m.metrics.ObserveCall(p.ID().String(), "track", time.Since(start), err)
	return events, err
}

// FindNearbyLockers asks the locker-network providers for pickup points.
func (m *Manager) FindNearbyLockers(ctx context.Context, postalCode, city string) ([]Locker, error) {
	if postalCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "postal code is required")
	}

	var (
		lockers []Locker
		errs    error
		found   bool
	)
	for _, p := range m.providers {
		finder, ok := p.(LockerFinder)
		if !ok {
			continue
		}
		found = true
		start := time.Now()
		providerLockers, err := finder.FindNearbyLockers(ctx, postalCode, city)
		m.metrics.ObserveCall(p.ID().String(), "lockers", time.Since(start), err)
		if err != nil {
			if m.logg != nil {
				logCtx := m.logg.WithField(ctx, "courier_provider", p.ID().String())
				m.logg.Error(logCtx, "locker lookup failed", err)
			}
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.ID(), err))
			continue
		}
		lockers = append(lockers, providerLockers...)
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no locker network configured")
	}
	if len(lockers) == 0 && errs != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "locker lookup failed")
	}
	return lockers, nil
}
