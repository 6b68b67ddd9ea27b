package pgstore

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/xlm-tipbot/internal/ledger"
)

func TestLockOrder(t *testing.T) {
	a := &ledger.Account{Adapter: "telegram", UniqueID: "2"}
	b := &ledger.Account{Adapter: "telegram", UniqueID: "10"}
	c := &ledger.Account{Adapter: "slack", UniqueID: "9"}

	assert.Equal(t, []*ledger.Account{b, a}, lockOrder(a, b))
	assert.Equal(t, []*ledger.Account{b, a}, lockOrder(b, a))
	assert.Equal(t, []*ledger.Account{c, a}, lockOrder(a, c))
}

// newTestStore connects to TEST_POSTGRES_DSN. Accounts use a random adapter
// so runs against a shared database don't see each other.
func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	s, err := New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, "test-" + uuid.NewString()[:8]
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestGetOrCreateAndWallet(t *testing.T) {
	ctx := context.Background()
	s, adapter := newTestStore(t)

	acct, err := s.GetOrCreate(ctx, adapter, "1")
	require.NoError(t, err)
	assert.True(t, acct.Balance.IsZero())
	assert.False(t, acct.HasWallet())

	wallet := "G" + uuid.NewString()
	acct, err = s.SetWallet(ctx, acct, wallet)
	require.NoError(t, err)
	assert.Equal(t, wallet, acct.WalletAddress)

	found, err := s.FindByWallet(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, "1", found.UniqueID)

	_, err = s.FindByWallet(ctx, "G"+uuid.NewString())
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestCreditDebit(t *testing.T) {
	ctx := context.Background()
	s, adapter := newTestStore(t)

	acct, err := s.GetOrCreate(ctx, adapter, "1")
	require.NoError(t, err)

	ref := uuid.NewString()
	acct, err = s.Credit(ctx, acct, amount("5"), ref, "deposit")
	require.NoError(t, err)
	assert.Equal(t, "5.0000000", acct.BalanceText())

	_, err = s.Credit(ctx, acct, amount("5"), ref, "deposit")
	assert.ErrorIs(t, err, ledger.ErrDuplicateReference)

	_, err = s.Debit(ctx, acct, amount("6"), uuid.NewString(), "tx")
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	acct, err = s.Debit(ctx, acct, amount("1.5"), uuid.NewString(), "tx")
	require.NoError(t, err)
	assert.Equal(t, "3.5000000", acct.BalanceText())

	entries, err := s.Entries(ctx, adapter, "1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.KindWithdrawal, entries[0].Kind)
}

func TestConcurrentTransfersCannotOverdraw(t *testing.T) {
	ctx := context.Background()
	s, adapter := newTestStore(t)

	a, err := s.GetOrCreate(ctx, adapter, "a")
	require.NoError(t, err)
	b, err := s.GetOrCreate(ctx, adapter, "b")
	require.NoError(t, err)
	a, err = s.Credit(ctx, a, amount("1"), uuid.NewString(), "")
	require.NoError(t, err)
	b, err = s.Credit(ctx, b, amount("1"), uuid.NewString(), "")
	require.NoError(t, err)

	// opposing transfers exercise the lock order
	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src, dst := a, b
			if i%2 == 1 {
				src, dst = b, a
			}
			errs[i] = s.Transfer(ctx, src, dst, amount("0.3"), uuid.NewString())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
		}
	}

	a, err = s.Account(ctx, adapter, "a")
	require.NoError(t, err)
	b, err = s.Account(ctx, adapter, "b")
	require.NoError(t, err)
	assert.False(t, a.Balance.IsNegative())
	assert.False(t, b.Balance.IsNegative())
	assert.Equal(t, "2.0000000", ledger.FormatAmount(a.Balance.Add(b.Balance)))
}

func TestTransferReference(t *testing.T) {
	ctx := context.Background()
	s, adapter := newTestStore(t)

	a, _ := s.GetOrCreate(ctx, adapter, "a")
	b, _ := s.GetOrCreate(ctx, adapter, "b")
	a, err := s.Credit(ctx, a, amount("1"), uuid.NewString(), "")
	require.NoError(t, err)

	ref := uuid.NewString()
	require.NoError(t, s.Transfer(ctx, a, b, amount("0.25"), ref))
	assert.ErrorIs(t, s.Transfer(ctx, a, b, amount("0.25"), ref), ledger.ErrDuplicateReference)

	e, err := s.Entry(ctx, ledger.KindTipIn, ref)
	require.NoError(t, err)
	assert.Equal(t, "b", e.UniqueID)

	_, err = s.Entry(ctx, ledger.KindTipIn, uuid.NewString())
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}

func TestReleaseAndSettle(t *testing.T) {
	ctx := context.Background()
	s, adapter := newTestStore(t)

	acct, err := s.GetOrCreate(ctx, adapter, "1")
	require.NoError(t, err)
	acct, err = s.Credit(ctx, acct, amount("2"), uuid.NewString(), "")
	require.NoError(t, err)

	ref := uuid.NewString()
	_, err = s.Debit(ctx, acct, amount("2"), ref, "")
	require.NoError(t, err)
	acct, err = s.Release(ctx, acct, amount("2"), ref, "withdrawal.rejected")
	require.NoError(t, err)
	assert.Equal(t, "2.0000000", acct.BalanceText())

	ref = uuid.NewString()
	_, err = s.Debit(ctx, acct, amount("1"), ref, "")
	require.NoError(t, err)
	require.NoError(t, s.Settle(ctx, ref, "txhash"))

	held, err := s.Entry(ctx, ledger.KindWithdrawal, ref)
	require.NoError(t, err)
	assert.Equal(t, "txhash", held.Memo)
	assert.ErrorIs(t, s.Settle(ctx, uuid.NewString(), "txhash"), ledger.ErrEntryNotFound)
}
