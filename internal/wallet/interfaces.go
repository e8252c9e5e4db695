package wallet

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	"github.com/tjvanzyl/veldmart-backend/pkg/pagination"
)

// TransactionList is one page of ledger entries.
type TransactionList struct {
	Transactions []models.WalletTransaction
	NextCursor   string
}

// Repository defines persistence operations for wallets and their ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBySeller(ctx context.Context, sellerID uuid.UUID) (*models.Wallet, error)
	CreateWallet(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error)
	// UpdateVersioned applies updates only when the stored version still
	// matches; reports false on a concurrent-write conflict.
	UpdateVersioned(ctx context.Context, walletID uuid.UUID, version int, updates map[string]any) (bool, error)
	CreateTransaction(ctx context.Context, txn *models.WalletTransaction) (*models.WalletTransaction, error)
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error)
	// FindTransactionByOrder returns the ledger entry of the given type for
	// an order, or nil when none exists.
	FindTransactionByOrder(ctx context.Context, orderID uuid.UUID, txnType enums.WalletTransactionType) (*models.WalletTransaction, error)
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status enums.WalletTransactionStatus) error
	ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) (*TransactionList, error)
}
