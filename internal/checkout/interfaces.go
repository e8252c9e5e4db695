package checkout

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
)

// CatalogRepository reads the product rows checkout snapshots from.
type CatalogRepository interface {
	WithTx(tx *gorm.DB) CatalogRepository
	// FindActiveByIDs returns the active products among ids; callers detect
	// missing or inactive products by comparing lengths.
	FindActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}
