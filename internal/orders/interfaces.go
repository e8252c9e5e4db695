package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	"github.com/tjvanzyl/veldmart-backend/pkg/pagination"
)

// ListFilters narrows order listings.
type ListFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
}

// OrderList is one page of orders plus the cursor for the next.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
}

// Repository defines persistence operations for the order aggregate.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	// UpdateVersioned applies updates only when the stored version still
	// matches; reports false on a concurrent-write conflict.
	UpdateVersioned(ctx context.Context, orderID uuid.UUID, version int, updates map[string]any) (bool, error)
	// AppendStatusEntry appends to the status trail unless the last entry
	// already carries the same status, so no two consecutive entries ever
	// share one and retried requests stay silent.
	AppendStatusEntry(ctx context.Context, entry *models.OrderStatusEntry) (bool, error)
	LastStatusEntry(ctx context.Context, orderID uuid.UUID) (*models.OrderStatusEntry, error)
}
