package shipments

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tjvanzyl/veldmart-backend/api/middleware"
	"github.com/tjvanzyl/veldmart-backend/api/responses"
	"github.com/tjvanzyl/veldmart-backend/api/validators"
	"github.com/tjvanzyl/veldmart-backend/internal/courier"
	ordersvc "github.com/tjvanzyl/veldmart-backend/internal/orders"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/logger"
)

type quotesRequest struct {
	Shipment courier.Shipment `json:"shipment" validate:"required"`
}

type quotesResponse struct {
	Quotes []courier.Quote `json:"quotes"`
}

// Quotes fans the shipment out to every configured courier and returns the
// rates that came back.
func Quotes(manager *courier.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload quotesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quotes, err := manager.GetAllQuotes(r.Context(), payload.Shipment)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, quotesResponse{Quotes: quotes})
	}
}

type shipRequest struct {
	Provider string           `json:"provider" validate:"required"`
	Service  string           `json:"service" validate:"required"`
	Shipment courier.Shipment `json:"shipment" validate:"required"`
}

type shipResponse struct {
	Booking *courier.Booking    `json:"booking"`
	Order   *ordersvc.OrderView `json:"order,omitempty"`
}

// Ship books the parcel with the chosen courier and moves the order to
// shipped with its tracking details.
func Ship(manager *courier.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload shipRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		provider, err := enums.ParseCourierProvider(payload.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid courier provider"))
			return
		}

		booking, order, err := manager.CreateShipment(r.Context(), courier.ShipInput{
			OrderID:   orderID,
			Provider:  provider,
			Service:   payload.Service,
			Shipment:  payload.Shipment,
			ActorID:   principal.UserID,
			ActorRole: principal.Role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, shipResponse{Booking: booking, Order: order})
	}
}

type trackResponse struct {
	Provider       enums.CourierProvider   `json:"provider"`
	TrackingNumber string                  `json:"trackingNumber"`
	Events         []courier.TrackingEvent `json:"events"`
}

// Track returns the courier's scan history for a tracking number.
func Track(manager *courier.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, err := enums.ParseCourierProvider(chi.URLParam(r, "provider"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid courier provider"))
			return
		}

		trackingNumber := strings.TrimSpace(chi.URLParam(r, "trackingNumber"))
		events, err := manager.TrackShipment(r.Context(), provider, trackingNumber)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, trackResponse{
			Provider:       provider,
			TrackingNumber: trackingNumber,
			Events:         events,
		})
	}
}

type lockersResponse struct {
	Lockers []courier.Locker `json:"lockers"`
}

// Lockers lists pickup points near a postal code.
func Lockers(manager *courier.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postalCode := strings.TrimSpace(r.URL.Query().Get("postal_code"))
		city := strings.TrimSpace(r.URL.Query().Get("city"))

		lockers, err := manager.FindNearbyLockers(r.Context(), postalCode, city)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, lockersResponse{Lockers: lockers})
	}
}
