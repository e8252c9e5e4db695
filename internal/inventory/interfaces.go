package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
)

// Repository defines persistence operations for stock counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByProduct(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error)
	// ReserveStock atomically moves qty from available to reserved, refusing
	// to take available below zero. Returns false when stock is insufficient.
	ReserveStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	// ReleaseStock atomically moves qty back from reserved to available.
	ReleaseStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	// CommitStock burns reserved units once an order ships.
	CommitStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
}
