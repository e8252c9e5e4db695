package payfast

import "github.com/tjvanzyl/veldmart-backend/pkg/enums"

var statusMap = map[string]enums.PaymentStatus{
	StatusComplete: enums.PaymentStatusPaid,
	StatusFailed:   enums.PaymentStatusFailed,
	StatusPending:  enums.PaymentStatusPending,
}

// MapPaymentStatus translates the gateway vocabulary to ours. Values the
// table does not know stay pending rather than guessing an outcome.
func MapPaymentStatus(gatewayStatus string) enums.PaymentStatus {
	if status, ok := statusMap[gatewayStatus]; ok {
		return status
	}
	return enums.PaymentStatusPending
}
