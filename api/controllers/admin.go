package controllers

import (
	"net/http"

	"github.com/tjvanzyl/veldmart-backend/api/middleware"
	"github.com/tjvanzyl/veldmart-backend/api/responses"
	"github.com/tjvanzyl/veldmart-backend/api/validators"
	ordersvc "github.com/tjvanzyl/veldmart-backend/internal/orders"
	walletsvc "github.com/tjvanzyl/veldmart-backend/internal/wallet"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/logger"
)

type payoutRequest struct {
	AmountCents int `json:"amount_cents" validate:"required,gt=0"`
}

// AdminRequestPayout debits a seller wallet and opens a processing payout
// transaction. Bank settlement is confirmed separately.
func AdminRequestPayout(svc walletsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		sellerID, err := validators.ParseUUIDParam(r, "sellerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload payoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.RequestPayout(r.Context(), sellerID, payload.AmountCents, principal.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}

// AdminCompletePayout marks a processing payout as settled.
func AdminCompletePayout(svc walletsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		transactionID, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.CompletePayout(r.Context(), transactionID, principal.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, txn)
	}
}

// AdminRefundOrder reverses a paid order's wallet credit and marks the
// payment refunded.
func AdminRefundOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		view, err := svc.Refund(r.Context(), orderID, principal.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}
