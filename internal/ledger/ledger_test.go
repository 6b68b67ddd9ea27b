package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("0.9128341")
	require.NoError(t, err)
	assert.Equal(t, "0.9128341", d.String())

	for _, bad := range []string{"", "asdf", "0", "-1", "0.00000001", "1,5"} {
		_, err := ParseAmount(bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestFormatAmountKeepsSevenDigits(t *testing.T) {
	assert.Equal(t, "1.0000000", FormatAmount(decimal.NewFromInt(1)))
	assert.Equal(t, "1000.0000000", FormatAmount(decimal.NewFromInt(1000)))
}

func TestBalanceTextMatchesStoredForm(t *testing.T) {
	bal, err := ParseStored("1.0000000")
	require.NoError(t, err)

	acct := Account{Balance: bal}
	assert.Equal(t, "1.0000000", acct.BalanceText())
	assert.Equal(t, "1", acct.Balance.String())
	assert.False(t, acct.HasWallet())
}
