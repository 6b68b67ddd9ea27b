// Package ledger holds the account and journal types shared by the ledger
// stores, plus the fixed-point helpers used for XLM amounts.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits of one stroop.
const Precision = 7

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrDuplicateReference  = errors.New("reference already used")
	ErrAccountNotFound     = errors.New("account not found")
	ErrEntryNotFound       = errors.New("ledger entry not found")
)

// EntryKind classifies a journal row
type EntryKind string

const (
	KindDeposit    EntryKind = "deposit"
	KindWithdrawal EntryKind = "withdrawal" // held, then settled with the tx hash as memo
	KindRelease    EntryKind = "release"    // returns a withdrawal hold the network never took
	KindTipOut     EntryKind = "tip_out"
	KindTipIn      EntryKind = "tip_in"
)

// Account is one user's balance record, keyed by (Adapter, UniqueID)
type Account struct {
	Adapter       string
	UniqueID      string
	Balance       decimal.Decimal
	WalletAddress string // empty when not registered
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasWallet reports whether the account registered a wallet
func (a *Account) HasWallet() bool {
	return a.WalletAddress != ""
}

// BalanceText is the balance as it is stored, with all 7 digits.
func (a *Account) BalanceText() string {
	return FormatAmount(a.Balance)
}

// Entry is one leg of a ledger mutation
type Entry struct {
	ID        int64
	Adapter   string
	UniqueID  string
	Kind      EntryKind
	Delta     decimal.Decimal
	Reference string
	Memo      string
	CreatedAt time.Time
}

// ParseAmount parses user input into a positive amount with at most
// Precision fractional digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() || !d.Equal(d.Truncate(Precision)) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with exactly Precision digits
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(Precision)
}

// ParseStored parses a balance column value
func ParseStored(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
