package wallet

import (
	"context"

	"gorm.io/gorm"

	"github.com/tjvanzyl/veldmart-backend/internal/orders"
	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
)

// Reverser adapts the wallet service to the shape the order lifecycle wants
// when it needs a paid order's credit undone.
type Reverser struct {
	svc Service
}

func NewReverser(svc Service) *Reverser {
	return &Reverser{svc: svc}
}

func (r *Reverser) ReverseSale(ctx context.Context, tx *gorm.DB, order *models.Order) (orders.ReversalResult, error) {
	outcome, err := r.svc.RefundSale(ctx, tx, order)
	if err != nil {
		return orders.ReversalResult{}, err
	}
	return orders.ReversalResult{
		Reversed:     outcome.Reversed,
		ManualReview: outcome.ManualReview,
		AmountCents:  outcome.AmountCents,
	}, nil
}
