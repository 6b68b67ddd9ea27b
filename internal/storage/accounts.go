package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/suspectuso/xlm-tipbot/internal/ledger"
)

const accountColumns = `adapter, unique_id, balance, wallet_address, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*ledger.Account, error) {
	var (
		a                    ledger.Account
		balance              string
		wallet               sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&a.Adapter, &a.UniqueID, &balance, &wallet, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	bal, err := ledger.ParseStored(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	a.Balance = bal
	a.WalletAddress = wallet.String
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)
	return &a, nil
}

// --- Accounts ---

// GetOrCreate returns the account for (adapter, uniqueID), creating it with a
// zero balance on first use.
func (s *Storage) GetOrCreate(ctx context.Context, adapter, uniqueID string) (*ledger.Account, error) {
	now := s.now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts (adapter, unique_id, balance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		adapter, uniqueID, ledger.FormatAmount(decimal.Zero), now, now,
	)
	if err != nil {
		return nil, err
	}
	return s.Account(ctx, adapter, uniqueID)
}

// Account returns an existing account
func (s *Storage) Account(ctx context.Context, adapter, uniqueID string) (*ledger.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE adapter = ? AND unique_id = ?`,
		adapter, uniqueID,
	))
	if err == sql.ErrNoRows {
		return nil, ledger.ErrAccountNotFound
	}
	return a, err
}

// SetWallet binds a wallet address to the account
func (s *Storage) SetWallet(ctx context.Context, acct *ledger.Account, address string) (*ledger.Account, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET wallet_address = ?, updated_at = ? WHERE adapter = ? AND unique_id = ?`,
		nullString(address), s.now().Unix(), acct.Adapter, acct.UniqueID,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ledger.ErrAccountNotFound
	}
	return s.Account(ctx, acct.Adapter, acct.UniqueID)
}

// FindByWallet returns the account holding address, or ErrAccountNotFound
func (s *Storage) FindByWallet(ctx context.Context, address string) (*ledger.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE wallet_address = ?
		 ORDER BY created_at LIMIT 1`,
		address,
	))
	if err == sql.ErrNoRows {
		return nil, ledger.ErrAccountNotFound
	}
	return a, err
}

// --- Balance mutations ---

// Credit adds amount to the account and journals it as a deposit
func (s *Storage) Credit(ctx context.Context, acct *ledger.Account, amount decimal.Decimal, ref, memo string) (*ledger.Account, error) {
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertEntry(ctx, tx, acct, ledger.KindDeposit, amount, ref, memo); err != nil {
			return err
		}
		_, err := s.apply(ctx, tx, acct, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Account(ctx, acct.Adapter, acct.UniqueID)
}

// Debit removes amount from the account and journals it as a withdrawal.
// The balance never goes negative.
func (s *Storage) Debit(ctx context.Context, acct *ledger.Account, amount decimal.Decimal, ref, memo string) (*ledger.Account, error) {
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertEntry(ctx, tx, acct, ledger.KindWithdrawal, amount.Neg(), ref, memo); err != nil {
			return err
		}
		_, err := s.apply(ctx, tx, acct, amount.Neg())
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Account(ctx, acct.Adapter, acct.UniqueID)
}

// Release gives back a withdrawal hold. ref is the hold's reference, so a
// hold is released at most once.
func (s *Storage) Release(ctx context.Context, acct *ledger.Account, amount decimal.Decimal, ref, memo string) (*ledger.Account, error) {
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertEntry(ctx, tx, acct, ledger.KindRelease, amount, ref, memo); err != nil {
			return err
		}
		_, err := s.apply(ctx, tx, acct, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Account(ctx, acct.Adapter, acct.UniqueID)
}

// Settle records the transaction hash on the withdrawal held under ref
func (s *Storage) Settle(ctx context.Context, ref, txHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_entries SET memo = ? WHERE kind = ? AND reference = ?`,
		txHash, string(ledger.KindWithdrawal), ref,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

// Transfer moves amount from source to target in one transaction
func (s *Storage) Transfer(ctx context.Context, source, target *ledger.Account, amount decimal.Decimal, ref string) error {
	if !amount.IsPositive() {
		return ledger.ErrInvalidAmount
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertEntry(ctx, tx, source, ledger.KindTipOut, amount.Neg(), ref, ""); err != nil {
			return err
		}
		if err := s.insertEntry(ctx, tx, target, ledger.KindTipIn, amount, ref, ""); err != nil {
			return err
		}
		if _, err := s.apply(ctx, tx, source, amount.Neg()); err != nil {
			return err
		}
		_, err := s.apply(ctx, tx, target, amount)
		return err
	})
}

// --- Journal ---

// Entry looks up the journal row written for ref
func (s *Storage) Entry(ctx context.Context, kind ledger.EntryKind, ref string) (*ledger.Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT id, adapter, unique_id, kind, delta, reference, memo, created_at
		 FROM ledger_entries WHERE kind = ? AND reference = ?`,
		string(kind), ref,
	))
	if err == sql.ErrNoRows {
		return nil, ledger.ErrEntryNotFound
	}
	return e, err
}

// Entries returns the newest journal rows of one account
func (s *Storage) Entries(ctx context.Context, adapter, uniqueID string, limit int) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, adapter, unique_id, kind, delta, reference, memo, created_at
		 FROM ledger_entries WHERE adapter = ? AND unique_id = ?
		 ORDER BY id DESC LIMIT ?`,
		adapter, uniqueID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanEntry(row scanner) (*ledger.Entry, error) {
	var (
		e         ledger.Entry
		kind      string
		delta     string
		ref, memo sql.NullString
		createdAt int64
	)
	if err := row.Scan(&e.ID, &e.Adapter, &e.UniqueID, &kind, &delta, &ref, &memo, &createdAt); err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(delta)
	if err != nil {
		return nil, fmt.Errorf("parse delta %q: %w", delta, err)
	}
	e.Kind = ledger.EntryKind(kind)
	e.Delta = d
	e.Reference = ref.String
	e.Memo = memo.String
	e.CreatedAt = time.Unix(createdAt, 0)
	return &e, nil
}

func (s *Storage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) insertEntry(ctx context.Context, tx *sql.Tx, acct *ledger.Account, kind ledger.EntryKind, delta decimal.Decimal, ref, memo string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (adapter, unique_id, kind, delta, reference, memo, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		acct.Adapter, acct.UniqueID, string(kind), ledger.FormatAmount(delta),
		nullString(ref), nullString(memo), s.now().Unix(),
	)
	if isUniqueViolation(err) {
		return ledger.ErrDuplicateReference
	}
	return err
}

// apply reads the balance inside tx, adds delta and writes it back
func (s *Storage) apply(ctx context.Context, tx *sql.Tx, acct *ledger.Account, delta decimal.Decimal) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE adapter = ? AND unique_id = ?`,
		acct.Adapter, acct.UniqueID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, ledger.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}

	current, err := ledger.ParseStored(raw)
	if err != nil {
		return decimal.Zero, err
	}
	next := current.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, ledger.ErrInsufficientBalance
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = ?, updated_at = ? WHERE adapter = ? AND unique_id = ?`,
		ledger.FormatAmount(next), s.now().Unix(), acct.Adapter, acct.UniqueID,
	)
	return next, err
}
