package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
)

// ReservationRequest asks to hold qty units of one product.
type ReservationRequest struct {
	ProductID uuid.UUID
	Qty       int
}

// ReservationResult reports the outcome per product.
type ReservationResult struct {
	ProductID uuid.UUID
	Reserved  bool
	Reason    string
}

// Service holds and releases stock. All mutating calls run inside the
// caller's transaction so a failed checkout rolls every hold back together.
type Service interface {
	Reserve(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) ([]ReservationResult, error)
	ReserveAll(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) error
	Release(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) error
	Commit(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) error
}

type service struct {
	repo Repository
}

// NewService builds the inventory adjuster.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Reserve(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) ([]ReservationResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	results := make([]ReservationResult, 0, len(requests))
	for _, req := range requests {
		if req.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
		}

		reserved, err := repo.ReserveStock(ctx, req.ProductID, req.Qty)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
		}
		result := ReservationResult{ProductID: req.ProductID, Reserved: reserved}
		if !reserved {
			if _, err := repo.FindByProduct(ctx, req.ProductID); errors.Is(err, gorm.ErrRecordNotFound) {
				result.Reason = "product not stocked"
			} else if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
			} else {
				result.Reason = "insufficient stock"
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// ReserveAll is the all-or-nothing variant used by checkout. Any shortfall
// returns OUT_OF_STOCK naming the products, and the caller's rollback undoes
// the holds that did succeed.
func (s *service) ReserveAll(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) error {
	results, err := s.Reserve(ctx, tx, requests)
	if err != nil {
		return err
	}
	var failed []map[string]any
	for _, res := range results {
		if res.Reserved {
			continue
		}
		failed = append(failed, map[string]any{
			"product_id": res.ProductID.String(),
			"reason":     res.Reason,
		})
	}
	if len(failed) > 0 {
		return pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock").
			WithDetails(map[string]any{"products": failed})
	}
	return nil
}

// Commit burns reserved units when an order ships. A missing reservation is
// tolerated, the parcel already left regardless.
func (s *service) Commit(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	for _, req := range requests {
		if req.ProductID == uuid.Nil || req.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid commit request")
		}
		if _, err := repo.CommitStock(ctx, req.ProductID, req.Qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit stock")
		}
	}
	return nil
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	for _, req := range requests {
		if req.ProductID == uuid.Nil || req.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid release request")
		}
		released, err := repo.ReleaseStock(ctx, req.ProductID, req.Qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stock")
		}
		if !released {
			// Reserved counter is lower than the release asks for. Clamp to
			// what is actually held rather than failing the cancellation.
			item, err := repo.FindByProduct(ctx, req.ProductID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
			}
			if item.ReservedQty > 0 {
				if _, err := repo.ReleaseStock(ctx, req.ProductID, item.ReservedQty); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release remaining stock")
				}
			}
		}
	}
	return nil
}
