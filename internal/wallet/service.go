package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/tjvanzyl/veldmart-backend/pkg/db"
	"github.com/tjvanzyl/veldmart-backend/pkg/db/models"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/logger"
	"github.com/tjvanzyl/veldmart-backend/pkg/outbox"
	"github.com/tjvanzyl/veldmart-backend/pkg/outbox/payloads"
	"github.com/tjvanzyl/veldmart-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Config carries the platform economics applied to every sale.
type Config struct {
	FeeRate        float64
	MinPayoutCents int
}

// CreditResult reports what a sale credit did to the wallet.
type CreditResult struct {
	Credited     bool
	NetCents     int
	FeeCents     int
	BalanceCents int
	WalletID     uuid.UUID
}

// RefundOutcome reports how a sale reversal went. ManualReview means the net
// already left the wallet through a payout and finance has to claw it back.
type RefundOutcome struct {
	Reversed     bool
	ManualReview bool
	AmountCents  int
}

// WalletView is the API shape of a seller wallet.
type WalletView struct {
	ID                  uuid.UUID      `json:"id"`
	SellerID            uuid.UUID      `json:"sellerId"`
	Currency            enums.Currency `json:"currency"`
	AvailableCents      int            `json:"availableCents"`
	PendingCents        int            `json:"pendingCents"`
	LifetimePayoutCents int            `json:"lifetimePayoutCents"`
	Payable             bool           `json:"payable"`
	MinPayoutCents      int            `json:"minPayoutCents"`
}

// Service is the seller earnings ledger.
type Service interface {
	// CreditSale books a paid order's gross into the seller wallet, net of
	// the platform fee, exactly once per order. Runs in the caller's
	// transaction alongside the order update.
	CreditSale(ctx context.Context, tx *gorm.DB, order *models.Order) (CreditResult, error)
	// RefundSale reverses a prior sale credit, exactly once per order.
	RefundSale(ctx context.Context, tx *gorm.DB, order *models.Order) (RefundOutcome, error)
	GetBySeller(ctx context.Context, sellerID uuid.UUID) (*WalletView, error)
	ListTransactions(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*TransactionList, error)
	RequestPayout(ctx context.Context, sellerID uuid.UUID, amountCents int, actorID uuid.UUID) (*models.WalletTransaction, error)
	CompletePayout(ctx context.Context, transactionID uuid.UUID, actorID uuid.UUID) (*models.WalletTransaction, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	cfg    Config
	logg   *logger.Logger
}

// NewService builds the wallet ledger service.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, cfg Config, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if cfg.FeeRate < 0 || cfg.FeeRate >= 1 {
		return nil, fmt.Errorf("fee rate must be in [0,1)")
	}
	if cfg.MinPayoutCents < 0 {
		return nil, fmt.Errorf("minimum payout must be non-negative")
	}
	return &service{repo: repo, tx: tx, outbox: ob, cfg: cfg, logg: logg}, nil
}

// FeeForGross computes the platform fee in cents, rounded half up.
func (s *service) feeForGross(grossCents int) int {
	gross := decimal.New(int64(grossCents), 0)
	return int(gross.Mul(decimal.NewFromFloat(s.cfg.FeeRate)).Round(0).IntPart())
}

func (s *service) CreditSale(ctx context.Context, tx *gorm.DB, order *models.Order) (CreditResult, error) {
	if tx == nil {
		return CreditResult{}, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	// Replayed notifications stop here.
	existing, err := repo.FindTransactionByOrder(ctx, order.ID, enums.WalletTransactionTypeSale)
	if err != nil {
		return CreditResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up sale credit")
	}
	if existing != nil {
		return CreditResult{
			Credited:     false,
			NetCents:     existing.AmountCents,
			FeeCents:     existing.FeeCents,
			BalanceCents: existing.BalanceCents,
			WalletID:     existing.WalletID,
		}, nil
	}

	wallet, err := s.findOrCreateWallet(ctx, repo, order.SellerID)
	if err != nil {
		return CreditResult{}, err
	}

	fee := s.feeForGross(order.TotalCents)
	net := order.TotalCents - fee
	newBalance := wallet.AvailableCents + net

	ok, err := repo.UpdateVersioned(ctx, wallet.ID, wallet.Version, map[string]any{
		"available_cents": newBalance,
	})
	if err != nil {
		return CreditResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit wallet")
	}
	if !ok {
		return CreditResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "wallet updated concurrently, retry")
	}

	txn := &models.WalletTransaction{
		WalletID:     wallet.ID,
		Type:         enums.WalletTransactionTypeSale,
		Status:       enums.WalletTransactionStatusCompleted,
		AmountCents:  net,
		GrossCents:   order.TotalCents,
		FeeCents:     fee,
		BalanceCents: newBalance,
		OrderID:      &order.ID,
		OrderNumber:  &order.OrderNumber,
		Description:  fmt.Sprintf("sale %s", order.OrderNumber),
	}
	if _, err := repo.CreateTransaction(ctx, txn); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			// Concurrent credit won the race; roll the balance change back.
			return CreditResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "sale already credited, retry")
		}
		return CreditResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record sale credit")
	}

	err = s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventWalletCredited,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.WalletCreditedEvent{
			WalletID:     wallet.ID,
			SellerID:     order.SellerID,
			OrderID:      order.ID,
			NetCents:     net,
			FeeCents:     fee,
			BalanceCents: newBalance,
		},
	})
	if err != nil {
		return CreditResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit wallet credited")
	}

	return CreditResult{
		Credited:     true,
		NetCents:     net,
		FeeCents:     fee,
		BalanceCents: newBalance,
		WalletID:     wallet.ID,
	}, nil
}

func (s *service) RefundSale(ctx context.Context, tx *gorm.DB, order *models.Order) (RefundOutcome, error) {
	if tx == nil {
		return RefundOutcome{}, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	sale, err := repo.FindTransactionByOrder(ctx, order.ID, enums.WalletTransactionTypeSale)
	if err != nil {
		return RefundOutcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up sale credit")
	}
	if sale == nil {
		// Paid but never credited; the gateway refund has to be chased by
		// hand either way.
		return RefundOutcome{ManualReview: true}, nil
	}

	refund, err := repo.FindTransactionByOrder(ctx, order.ID, enums.WalletTransactionTypeRefund)
	if err != nil {
		return RefundOutcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up refund")
	}
	if refund != nil {
		return RefundOutcome{Reversed: true, AmountCents: -refund.AmountCents}, nil
	}

	wallet, err := repo.FindBySeller(ctx, order.SellerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RefundOutcome{ManualReview: true}, nil
	}
	if err != nil {
		return RefundOutcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	net := sale.AmountCents
	if wallet.AvailableCents < net {
		// The money already left through a payout.
		return RefundOutcome{ManualReview: true}, nil
	}

	newBalance := wallet.AvailableCents - net
	ok, err := repo.UpdateVersioned(ctx, wallet.ID, wallet.Version, map[string]any{
		"available_cents": newBalance,
	})
	if err != nil {
		return RefundOutcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit wallet")
	}
	if !ok {
		return RefundOutcome{}, pkgerrors.New(pkgerrors.CodeStateConflict, "wallet updated concurrently, retry")
	}

	txn := &models.WalletTransaction{
		WalletID:     wallet.ID,
		Type:         enums.WalletTransactionTypeRefund,
		Status:       enums.WalletTransactionStatusCompleted,
		AmountCents:  -net,
		GrossCents:   sale.GrossCents,
		FeeCents:     sale.FeeCents,
		BalanceCents: newBalance,
		OrderID:      &order.ID,
		OrderNumber:  &order.OrderNumber,
		Description:  fmt.Sprintf("refund %s", order.OrderNumber),
	}
	if _, err := repo.CreateTransaction(ctx, txn); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			// Concurrent refund won the race; roll the balance change back.
			return RefundOutcome{}, pkgerrors.New(pkgerrors.CodeStateConflict, "sale already refunded, retry")
		}
		return RefundOutcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}

	err = s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderRefundedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			AmountCents: net,
		},
	})
	if err != nil {
		return RefundOutcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order refunded")
	}

	return RefundOutcome{Reversed: true, AmountCents: net}, nil
}

func (s *service) GetBySeller(ctx context.Context, sellerID uuid.UUID) (*WalletView, error) {
	wallet, err := s.repo.FindBySeller(ctx, sellerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// A seller without sales has an empty wallet, not a missing one.
		return &WalletView{
			SellerID:       sellerID,
			Currency:       enums.CurrencyZAR,
			MinPayoutCents: s.cfg.MinPayoutCents,
		}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return &WalletView{
		ID:                  wallet.ID,
		SellerID:            wallet.SellerID,
		Currency:            wallet.Currency,
		AvailableCents:      wallet.AvailableCents,
		PendingCents:        wallet.PendingCents,
		LifetimePayoutCents: wallet.LifetimePayoutCents,
		Payable:             wallet.AvailableCents >= s.cfg.MinPayoutCents,
		MinPayoutCents:      s.cfg.MinPayoutCents,
	}, nil
}

func (s *service) ListTransactions(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*TransactionList, error) {
	wallet, err := s.repo.FindBySeller(ctx, sellerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &TransactionList{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	list, err := s.repo.ListTransactions(ctx, wallet.ID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return list, nil
}

func (s *service) RequestPayout(ctx context.Context, sellerID uuid.UUID, amountCents int, actorID uuid.UUID) (*models.WalletTransaction, error) {
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}
	if amountCents < s.cfg.MinPayoutCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount below minimum").
			WithDetails(map[string]any{"min_payout_cents": s.cfg.MinPayoutCents})
	}

	var txn *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wallet, err := repo.FindBySeller(ctx, sellerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}
		if wallet.AvailableCents < amountCents {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient balance").
				WithDetails(map[string]any{
					"available_cents": wallet.AvailableCents,
					"requested_cents": amountCents,
				})
		}

		newBalance := wallet.AvailableCents - amountCents
		ok, err := repo.UpdateVersioned(ctx, wallet.ID, wallet.Version, map[string]any{
			"available_cents":       newBalance,
			"lifetime_payout_cents": wallet.LifetimePayoutCents + amountCents,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit wallet")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "wallet updated concurrently, retry")
		}

		txn = &models.WalletTransaction{
			WalletID: wallet.ID,
			Type:     enums.WalletTransactionTypePayout,
			// Processing until the bank transfer is confirmed by hand.
			Status:       enums.WalletTransactionStatusProcessing,
			AmountCents:  -amountCents,
			BalanceCents: newBalance,
			Description:  "payout requested",
		}
		if _, err := repo.CreateTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutRequested,
			AggregateType: enums.AggregateWallet,
			AggregateID:   txn.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: string(enums.ActorRoleAdmin)},
			Data: payloads.PayoutRequestedEvent{
				WalletID:      wallet.ID,
				SellerID:      sellerID,
				TransactionID: txn.ID,
				AmountCents:   amountCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) CompletePayout(ctx context.Context, transactionID uuid.UUID, actorID uuid.UUID) (*models.WalletTransaction, error) {
	var completed *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := repo.FindTransactionByID(ctx, transactionID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
		}
		if txn.Type != enums.WalletTransactionTypePayout {
			return pkgerrors.New(pkgerrors.CodeValidation, "transaction is not a payout")
		}
		if txn.Status == enums.WalletTransactionStatusCompleted {
			completed = txn
			return nil
		}
		if txn.Status != enums.WalletTransactionStatusProcessing {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("payout is %s, not processing", txn.Status))
		}

		if err := repo.UpdateTransactionStatus(ctx, txn.ID, enums.WalletTransactionStatusCompleted); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payout")
		}
		txn.Status = enums.WalletTransactionStatusCompleted
		completed = txn

		var wallet models.Wallet
		if err := tx.WithContext(ctx).Where("id = ?", txn.WalletID).First(&wallet).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutCompleted,
			AggregateType: enums.AggregateWallet,
			AggregateID:   txn.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: string(enums.ActorRoleAdmin)},
			Data: payloads.PayoutCompletedEvent{
				WalletID:      txn.WalletID,
				SellerID:      wallet.SellerID,
				TransactionID: txn.ID,
				AmountCents:   -txn.AmountCents,
				CompletedAt:   time.Now(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

func (s *service) findOrCreateWallet(ctx context.Context, repo Repository, sellerID uuid.UUID) (*models.Wallet, error) {
	wallet, err := repo.FindBySeller(ctx, sellerID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	wallet, err = repo.CreateWallet(ctx, &models.Wallet{
		SellerID: sellerID,
		Currency: enums.CurrencyZAR,
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return repo.FindBySeller(ctx, sellerID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	return wallet, nil
}
