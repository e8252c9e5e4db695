package wallet

import (
	"net/http"
	"strings"

	"github.com/tjvanzyl/veldmart-backend/api/middleware"
	"github.com/tjvanzyl/veldmart-backend/api/responses"
	"github.com/tjvanzyl/veldmart-backend/api/validators"
	walletsvc "github.com/tjvanzyl/veldmart-backend/internal/wallet"
	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/logger"
	"github.com/tjvanzyl/veldmart-backend/pkg/pagination"
)

type walletResponse struct {
	Wallet       *walletsvc.WalletView      `json:"wallet"`
	Transactions []models.WalletTransaction `json:"transactions"`
	NextCursor   string                     `json:"nextCursor,omitempty"`
}

// Fetch returns the calling seller's balance and recent ledger entries.
func Fetch(svc walletsvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		view, err := svc.GetBySeller(r.Context(), principal.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListTransactions(r.Context(), principal.UserID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, walletResponse{
			Wallet:       view,
			Transactions: list.Transactions,
			NextCursor:   list.NextCursor,
		})
	}
}
