package orders

import (
	"net/http"
	"strings"

	"github.com/tjvanzyl/veldmart-backend/api/middleware"
	"github.com/tjvanzyl/veldmart-backend/api/responses"
	"github.com/tjvanzyl/veldmart-backend/api/validators"
	ordersvc "github.com/tjvanzyl/veldmart-backend/internal/orders"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/logger"
	"github.com/tjvanzyl/veldmart-backend/pkg/pagination"
)

type listResponse struct {
	Orders     []ordersvc.OrderView `json:"orders"`
	NextCursor string               `json:"nextCursor,omitempty"`
}

// List returns the caller's orders: buyers see what they bought, sellers
// what they sold.
func List(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters, err := parseListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		views, nextCursor, err := svc.List(r.Context(), principal.UserID, principal.Role, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, listResponse{Orders: views, NextCursor: nextCursor})
	}
}

// Detail returns one order with its line items and status history.
func Detail(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		view, err := svc.GetByID(r.Context(), orderID, principal.UserID, principal.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note,omitempty" validate:"max=500"`
	// AllowSkip only has effect for admin callers.
	AllowSkip bool `json:"allow_skip,omitempty"`

	CourierProvider string `json:"courier_provider,omitempty"`
	TrackingNumber  string `json:"tracking_number,omitempty"`
	TrackingURL     string `json:"tracking_url,omitempty"`
	CourierRef      string `json:"courier_ref,omitempty"`
}

// UpdateStatus moves an order along its lifecycle.
func UpdateStatus(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		input := ordersvc.UpdateStatusInput{
			OrderID:   orderID,
			Target:    target,
			ActorID:   principal.UserID,
			ActorRole: principal.Role,
			Note:      payload.Note,
			AllowSkip: payload.AllowSkip,
		}

		if payload.TrackingNumber != "" || payload.CourierProvider != "" {
			provider, err := enums.ParseCourierProvider(payload.CourierProvider)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid courier provider"))
				return
			}
			input.Tracking = &ordersvc.TrackingInfo{
				Provider:       provider,
				TrackingNumber: payload.TrackingNumber,
				TrackingURL:    payload.TrackingURL,
				CourierRef:     payload.CourierRef,
			}
		}

		view, err := svc.UpdateStatus(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// Cancel requests cancellation of an order by its buyer, seller, or an admin.
func Cancel(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload cancelRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		view, err := svc.UpdateStatus(r.Context(), ordersvc.UpdateStatusInput{
			OrderID:   orderID,
			Target:    enums.OrderStatusCancelled,
			ActorID:   principal.UserID,
			ActorRole: principal.Role,
			Reason:    payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

func parseListFilters(r *http.Request) (ordersvc.ListFilters, error) {
	filters := ordersvc.ListFilters{}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status filter")
		}
		filters.PaymentStatus = &status
	}

	return filters, nil
}
