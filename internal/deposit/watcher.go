// Package deposit credits payments made to the operating address.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/suspectuso/xlm-tipbot/internal/horizon"
	"github.com/suspectuso/xlm-tipbot/internal/ledger"
)

const cursorName = "deposits"

// startCursor pages from the first operation of an account
const startCursor = "0"

var memoRegex = regexp.MustCompile(`^([a-z][a-z0-9_-]*):(\S+)$`)

// Source lists payments touching an account
type Source interface {
	Payments(ctx context.Context, account, cursor string, limit int) ([]horizon.Payment, error)
	LatestPayment(ctx context.Context, account string) (*horizon.Payment, error)
}

// Accounts resolves the account a payment belongs to
type Accounts interface {
	GetOrCreate(ctx context.Context, adapter, uniqueID string) (*ledger.Account, error)
	FindByWallet(ctx context.Context, address string) (*ledger.Account, error)
}

// Cursors persists the paging position
type Cursors interface {
	Cursor(ctx context.Context, name string) (string, error)
	SetCursor(ctx context.Context, name, value string) error
}

// Depositor credits an attributed payment
type Depositor interface {
	OnDeposit(ctx context.Context, acct *ledger.Account, amount decimal.Decimal, ref string) error
}

// Watcher polls the operating account for incoming payments
type Watcher struct {
	operating string
	source    Source
	accounts  Accounts
	cursors   Cursors
	depositor Depositor
	adapters  map[string]bool
	log       *slog.Logger

	pageSize int
}

// NewWatcher creates a deposit watcher for the operating address. Memos only
// attribute payments to accounts of the given adapters.
func NewWatcher(operating string, src Source, accounts Accounts, cursors Cursors, dep Depositor, adapters []string, log *slog.Logger) *Watcher {
	known := make(map[string]bool, len(adapters))
	for _, a := range adapters {
		known[a] = true
	}
	return &Watcher{
		operating: operating,
		source:    src,
		accounts:  accounts,
		cursors:   cursors,
		depositor: dep,
		adapters:  known,
		log:       log,
		pageSize:  50,
	}
}

// Start polls until ctx is done
func (w *Watcher) Start(ctx context.Context, interval time.Duration) {
	w.log.Info("deposit watcher started",
		"operating", horizon.ShortAddr(w.operating, 4),
		"interval", interval,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
				w.log.Error("poll deposits", "error", err)
			}
		}
	}
}

// Poll processes every page of new payments and returns how many were credited
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	cursor, err := w.cursors.Cursor(ctx, cursorName)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	if cursor == "" {
		if cursor, err = w.seed(ctx); err != nil {
			return 0, err
		}
	}

	credited := 0
	for {
		payments, err := w.source.Payments(ctx, w.operating, cursor, w.pageSize)
		if err != nil {
			return credited, err
		}

		for i := range payments {
			p := &payments[i]
			ok, err := w.process(ctx, p)
			if err != nil {
				return credited, fmt.Errorf("payment %s: %w", p.ID, err)
			}
			if ok {
				credited++
			}

			cursor = p.PagingToken
			if err := w.cursors.SetCursor(ctx, cursorName, cursor); err != nil {
				return credited, fmt.Errorf("save cursor: %w", err)
			}
		}

		if len(payments) < w.pageSize {
			return credited, nil
		}
	}
}

// seed saves the paging token of the newest payment, so payments made before
// the first start are never credited and every later one is
func (w *Watcher) seed(ctx context.Context) (string, error) {
	latest, err := w.source.LatestPayment(ctx, w.operating)
	if err != nil {
		return "", fmt.Errorf("load latest payment: %w", err)
	}

	cursor := startCursor
	if latest != nil {
		cursor = latest.PagingToken
	}
	if err := w.cursors.SetCursor(ctx, cursorName, cursor); err != nil {
		return "", fmt.Errorf("save cursor: %w", err)
	}

	w.log.Info("deposit cursor seeded", "cursor", cursor)
	return cursor, nil
}

func (w *Watcher) process(ctx context.Context, p *horizon.Payment) (bool, error) {
	if !p.TransactionSuccessful {
		return false, nil
	}

	from, to, raw, ok := p.Native()
	if !ok || to != w.operating {
		return false, nil
	}

	amount, err := ledger.ParseStored(raw)
	if err != nil || !amount.IsPositive() {
		w.log.Warn("skip payment with bad amount", "payment_id", p.ID, "amount", raw)
		return false, nil
	}

	acct, err := w.attribute(ctx, from, p.Memo())
	if err != nil {
		return false, err
	}
	if acct == nil {
		w.log.Info("unattributed deposit",
			"payment_id", p.ID,
			"from", horizon.ShortAddr(from, 4),
			"amount", raw,
			"memo", p.Memo(),
		)
		return false, nil
	}

	if err := w.depositor.OnDeposit(ctx, acct, amount, p.ID); err != nil {
		return false, err
	}
	return true, nil
}

// attribute finds the account a payment belongs to: the registered owner of
// the sending wallet, else the account named by a "<adapter>:<id>" memo of a
// known adapter.
func (w *Watcher) attribute(ctx context.Context, from, memo string) (*ledger.Account, error) {
	acct, err := w.accounts.FindByWallet(ctx, from)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, err
	}

	matches := memoRegex.FindStringSubmatch(memo)
	if matches == nil || !w.adapters[matches[1]] {
		return nil, nil
	}
	return w.accounts.GetOrCreate(ctx, matches[1], matches[2])
}
