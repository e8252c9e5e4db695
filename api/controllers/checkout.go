package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tjvanzyl/veldmart-backend/api/middleware"
	"github.com/tjvanzyl/veldmart-backend/api/responses"
	"github.com/tjvanzyl/veldmart-backend/api/validators"
	checkoutsvc "github.com/tjvanzyl/veldmart-backend/internal/checkout"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/logger"
	"github.com/tjvanzyl/veldmart-backend/pkg/types"
)

type checkoutRequest struct {
	Items []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`

	FirstName string        `json:"first_name" validate:"required"`
	LastName  string        `json:"last_name" validate:"required"`
	Shipping  types.Address `json:"shipping_address" validate:"required"`

	PaymentMethod string `json:"payment_method" validate:"required"`
}

type checkoutItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,gt=0"`
}

// Checkout submits the buyer's cart and returns the created orders plus the
// signed gateway redirect for each one.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		if principal.Role != enums.ActorRoleBuyer {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "buyer role required for checkout"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		items := make([]checkoutsvc.CartItem, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, checkoutsvc.CartItem{ProductID: item.ProductID, Qty: item.Qty})
		}

		result, err := svc.Checkout(r.Context(), checkoutsvc.Input{
			BuyerID:        principal.UserID,
			BuyerEmail:     principal.Email,
			BuyerFirstName: payload.FirstName,
			BuyerLastName:  payload.LastName,
			ShippingTo:     payload.Shipping,
			PaymentMethod:  method,
			Items:          items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
