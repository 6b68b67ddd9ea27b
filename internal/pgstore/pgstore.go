// Package pgstore is the PostgreSQL account ledger.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/suspectuso/xlm-tipbot/internal/ledger"
)

const uniqueViolation = "23505"

// Store keeps accounts and journal rows in PostgreSQL
type Store struct {
	db *pgxpool.Pool
}

// New connects to connString and creates the schema
func New(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &Store{db: pool}
	if err := s.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the pool
func (s *Store) Close() {
	s.db.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) init(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			adapter TEXT NOT NULL,
			unique_id TEXT NOT NULL,
			balance NUMERIC(30, 7) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			wallet_address TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (adapter, unique_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_wallet ON accounts(wallet_address)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			adapter TEXT NOT NULL,
			unique_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			delta NUMERIC(30, 7) NOT NULL,
			reference TEXT,
			memo TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_account ON ledger_entries(adapter, unique_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_reference ON ledger_entries(reference, kind) WHERE reference IS NOT NULL`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// --- Accounts ---

const accountColumns = `adapter, unique_id, balance::text, COALESCE(wallet_address, ''), created_at, updated_at`

func scanAccount(row pgx.Row) (*ledger.Account, error) {
	var (
		a       ledger.Account
		balance string
	)
	err := row.Scan(&a.Adapter, &a.UniqueID, &balance, &a.WalletAddress, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Balance, err = ledger.ParseStored(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	return &a, nil
}

// GetOrCreate returns the account for (adapter, uniqueID), creating it on first use
func (s *Store) GetOrCreate(ctx context.Context, adapter, uniqueID string) (*ledger.Account, error) {
	_, err := s.db.Exec(ctx,
		`INSERT INTO accounts (adapter, unique_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		adapter, uniqueID,
	)
	if err != nil {
		return nil, err
	}
	return s.Account(ctx, adapter, uniqueID)
}

// Account returns an existing account
func (s *Store) Account(ctx context.Context, adapter, uniqueID string) (*ledger.Account, error) {
	return scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE adapter = $1 AND unique_id = $2`,
		adapter, uniqueID,
	))
}

// SetWallet records the wallet address of an account
func (s *Store) SetWallet(ctx context.Context, acct *ledger.Account, address string) (*ledger.Account, error) {
	return scanAccount(s.db.QueryRow(ctx,
		`UPDATE accounts SET wallet_address = $3, updated_at = now()
		 WHERE adapter = $1 AND unique_id = $2
		 RETURNING `+accountColumns,
		acct.Adapter, acct.UniqueID, address,
	))
}

// FindByWallet returns the oldest account that registered address
func (s *Store) FindByWallet(ctx context.Context, address string) (*ledger.Account, error) {
	return scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE wallet_address = $1
		 ORDER BY created_at LIMIT 1`,
		address,
	))
}

// --- Mutations ---

// Credit adds amount to acct
func (s *Store) Credit(ctx context.Context, acct *ledger.Account, amount decimal.Decimal, ref, memo string) (*ledger.Account, error) {
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	var out *ledger.Account
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := insertEntry(ctx, tx, acct, ledger.KindDeposit, amount, ref, memo); err != nil {
			return err
		}
		if _, err := lockBalance(ctx, tx, acct); err != nil {
			return err
		}
		var err error
		out, err = applyDelta(ctx, tx, acct, amount)
		return err
	})
	return out, err
}

// Debit removes amount from acct, failing if the balance would go negative
func (s *Store) Debit(ctx context.Context, acct *ledger.Account, amount decimal.Decimal, ref, memo string) (*ledger.Account, error) {
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	var out *ledger.Account
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := insertEntry(ctx, tx, acct, ledger.KindWithdrawal, amount.Neg(), ref, memo); err != nil {
			return err
		}
		balance, err := lockBalance(ctx, tx, acct)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return ledger.ErrInsufficientBalance
		}
		out, err = applyDelta(ctx, tx, acct, amount.Neg())
		return err
	})
	return out, err
}

// Release gives back a withdrawal hold, at most once per reference
func (s *Store) Release(ctx context.Context, acct *ledger.Account, amount decimal.Decimal, ref, memo string) (*ledger.Account, error) {
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	var out *ledger.Account
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := insertEntry(ctx, tx, acct, ledger.KindRelease, amount, ref, memo); err != nil {
			return err
		}
		if _, err := lockBalance(ctx, tx, acct); err != nil {
			return err
		}
		var err error
		out, err = applyDelta(ctx, tx, acct, amount)
		return err
	})
	return out, err
}

// Settle records the transaction hash on the withdrawal held under ref
func (s *Store) Settle(ctx context.Context, ref, txHash string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE ledger_entries SET memo = $1 WHERE kind = $2 AND reference = $3`,
		txHash, string(ledger.KindWithdrawal), ref,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

// Transfer moves amount from source to target in one transaction. Both rows
// are locked in key order so opposing transfers cannot deadlock.
func (s *Store) Transfer(ctx context.Context, source, target *ledger.Account, amount decimal.Decimal, ref string) error {
	if !amount.IsPositive() {
		return ledger.ErrInvalidAmount
	}

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := insertEntry(ctx, tx, source, ledger.KindTipOut, amount.Neg(), ref, ""); err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, target, ledger.KindTipIn, amount, ref, ""); err != nil {
			return err
		}

		var sourceBalance decimal.Decimal
		for _, acct := range lockOrder(source, target) {
			balance, err := lockBalance(ctx, tx, acct)
			if err != nil {
				return err
			}
			if sameAccount(acct, source) {
				sourceBalance = balance
			}
		}
		if sourceBalance.LessThan(amount) {
			return ledger.ErrInsufficientBalance
		}

		if _, err := applyDelta(ctx, tx, source, amount.Neg()); err != nil {
			return err
		}
		_, err := applyDelta(ctx, tx, target, amount)
		return err
	})
}

// --- Journal ---

const entryColumns = `id, adapter, unique_id, kind, delta::text, COALESCE(reference, ''), COALESCE(memo, ''), created_at`

func scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var (
		e     ledger.Entry
		kind  string
		delta string
	)
	if err := row.Scan(&e.ID, &e.Adapter, &e.UniqueID, &kind, &delta, &e.Reference, &e.Memo, &e.CreatedAt); err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(delta)
	if err != nil {
		return nil, fmt.Errorf("parse delta %q: %w", delta, err)
	}
	e.Kind = ledger.EntryKind(kind)
	e.Delta = d
	return &e, nil
}

// Entry returns the journal row written for (kind, ref)
func (s *Store) Entry(ctx context.Context, kind ledger.EntryKind, ref string) (*ledger.Entry, error) {
	e, err := scanEntry(s.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE reference = $1 AND kind = $2`,
		ref, string(kind),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrEntryNotFound
	}
	return e, err
}

// Entries returns the newest journal rows of one account
func (s *Store) Entries(ctx context.Context, adapter, uniqueID string, limit int) ([]ledger.Entry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE adapter = $1 AND unique_id = $2
		 ORDER BY id DESC LIMIT $3`,
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

// --- Helpers ---

func insertEntry(ctx context.Context, tx pgx.Tx, acct *ledger.Account, kind ledger.EntryKind, delta decimal.Decimal, ref, memo string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (adapter, unique_id, kind, delta, reference, memo)
		 VALUES ($1, $2, $3, $4::numeric, NULLIF($5, ''), NULLIF($6, ''))`,
		acct.Adapter, acct.UniqueID, string(kind), ledger.FormatAmount(delta), ref, memo,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ledger.ErrDuplicateReference
	}
	return err
}

func lockBalance(ctx context.Context, tx pgx.Tx, acct *ledger.Account) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRow(ctx,
		`SELECT balance::text FROM accounts WHERE adapter = $1 AND unique_id = $2 FOR UPDATE`,
		acct.Adapter, acct.UniqueID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ledger.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock acquisition failed: %w", err)
	}
	return ledger.ParseStored(raw)
}

func applyDelta(ctx context.Context, tx pgx.Tx, acct *ledger.Account, delta decimal.Decimal) (*ledger.Account, error) {
	return scanAccount(tx.QueryRow(ctx,
		`UPDATE accounts SET balance = balance + $3::numeric, updated_at = $4
		 WHERE adapter = $1 AND unique_id = $2
		 RETURNING `+accountColumns,
		acct.Adapter, acct.UniqueID, ledger.FormatAmount(delta), time.Now(),
	))
}

// lockOrder sorts two accounts by their primary key
func lockOrder(a, b *ledger.Account) []*ledger.Account {
	if a.Adapter > b.Adapter || (a.Adapter == b.Adapter && a.UniqueID > b.UniqueID) {
		return []*ledger.Account{b, a}
	}
	return []*ledger.Account{a, b}
}

func sameAccount(a, b *ledger.Account) bool {
	return a.Adapter == b.Adapter && a.UniqueID == b.UniqueID
}
