package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Storage handles all SQLite operations: the account ledger, the deferred
// command table and polling cursors.
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the database and creates the schema. Write transactions start
// with BEGIN IMMEDIATE so balance checks and updates never interleave.
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	s, err := NewWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an already opened database
func NewWithDB(db *sql.DB) (*Storage, error) {
	s := &Storage{db: db, now: time.Now}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			adapter TEXT NOT NULL,
			unique_id TEXT NOT NULL,
			balance TEXT NOT NULL DEFAULT '0.0000000',
			wallet_address TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (adapter, unique_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_wallet ON accounts(wallet_address)`,

		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			adapter TEXT NOT NULL,
			unique_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			delta TEXT NOT NULL,
			reference TEXT,
			memo TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_account ON ledger_entries(adapter, unique_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_reference ON ledger_entries(reference, kind)`,

		`CREATE TABLE IF NOT EXISTS deferred_commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			payload TEXT NOT NULL,
			enqueued_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS cursors (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
