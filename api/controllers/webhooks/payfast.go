package webhooks

import (
	"io"
	"net/http"

	"github.com/tjvanzyl/veldmart-backend/api/responses"
	"github.com/tjvanzyl/veldmart-backend/internal/reconcile"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/logger"
)

// Gateways cap notification bodies well below this; anything larger is
// not a real notification.
const maxITNBodyBytes = 64 << 10

// PayFast receives instant transaction notifications. The gateway expects
// bare text bodies and retries anything that is not a 200.
func PayFast(svc reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxITNBodyBytes))
		if err != nil {
			responses.WritePlainText(w, http.StatusInternalServerError, "failed to read notification")
			return
		}

		err = svc.HandleITN(r.Context(), reconcile.Notification{
			Body:       string(body),
			RemoteAddr: r.RemoteAddr,
		})
		if err == nil {
			responses.WritePlainText(w, http.StatusOK, "OK")
			return
		}

		if logg != nil {
			logg.Error(r.Context(), "payment notification rejected", err)
		}

		typed := pkgerrors.As(err)
		if typed == nil {
			responses.WritePlainText(w, http.StatusInternalServerError, "notification processing failed")
			return
		}

		switch typed.Code() {
		case pkgerrors.CodeForbidden:
			responses.WritePlainText(w, http.StatusForbidden, "source not allowed")
		case pkgerrors.CodeSignature:
			responses.WritePlainText(w, http.StatusBadRequest, "invalid signature")
		case pkgerrors.CodeAmountMismatch:
			responses.WritePlainText(w, http.StatusBadRequest, "amount mismatch")
		case pkgerrors.CodeValidation:
			responses.WritePlainText(w, http.StatusBadRequest, "malformed notification")
		case pkgerrors.CodeNotFound:
			responses.WritePlainText(w, http.StatusNotFound, "order not found")
		default:
			responses.WritePlainText(w, http.StatusInternalServerError, "notification processing failed")
		}
	}
}
