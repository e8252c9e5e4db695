package enums

import "fmt"

// WalletTransactionType classifies entries in a seller's wallet ledger.
type WalletTransactionType string

const (
	WalletTransactionTypeSale   WalletTransactionType = "sale"
	WalletTransactionTypePayout WalletTransactionType = "payout"
	WalletTransactionTypeFee    WalletTransactionType = "fee"
	WalletTransactionTypeRefund WalletTransactionType = "refund"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTransactionTypeSale,
	WalletTransactionTypePayout,
	WalletTransactionTypeFee,
	WalletTransactionTypeRefund,
}

// String implements fmt.Stringer.
func (t WalletTransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known WalletTransactionType.
func (t WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseWalletTransactionType converts raw input into a WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}

// WalletTransactionStatus tracks settlement progress of a wallet entry.
type WalletTransactionStatus string

const (
	WalletTransactionStatusPending    WalletTransactionStatus = "pending"
	WalletTransactionStatusProcessing WalletTransactionStatus = "processing"
	WalletTransactionStatusCompleted  WalletTransactionStatus = "completed"
	WalletTransactionStatusFailed     WalletTransactionStatus = "failed"
)

var validWalletTransactionStatuses = []WalletTransactionStatus{
	WalletTransactionStatusPending,
	WalletTransactionStatusProcessing,
	WalletTransactionStatusCompleted,
	WalletTransactionStatusFailed,
}

// String implements fmt.Stringer.
func (s WalletTransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known WalletTransactionStatus.
func (s WalletTransactionStatus) IsValid() bool {
	for _, candidate := range validWalletTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseWalletTransactionStatus converts raw input into a WalletTransactionStatus.
func ParseWalletTransactionStatus(value string) (WalletTransactionStatus, error) {
	for _, candidate := range validWalletTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction status %q", value)
}
