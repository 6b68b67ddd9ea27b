package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsSetIdentity(t *testing.T) {
	c := NewTip("telegram", "100", "200", " 1.5 ")

	assert.Equal(t, TypeTip, c.Type)
	assert.Equal(t, "telegram", c.Adapter)
	assert.Equal(t, "100", c.SourceID)
	assert.Equal(t, c.SourceID, c.UniqueID)
	assert.Equal(t, "200", c.TargetID)
	assert.Equal(t, "1.5", c.Amount)
	assert.NotEmpty(t, c.Hash)
}

func TestEachCommandGetsItsOwnHash(t *testing.T) {
	a := NewBalance("telegram", "100", "")
	b := NewBalance("telegram", "100", "")
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestQueueEnvelopeKeepsVariantFields(t *testing.T) {
	in := NewWithdraw("telegram", "100", "2.25", "GDO7HAX2PSR6UN3K7WJLUVJD64OK3QLDXX2RPNMMHI7ZTPYUJOHQ6WTN")

	data, err := Marshal(in)
	require.NoError(t, err)

	out, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"airdrop","adapter":"telegram","source_id":"1"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestUnmarshalRejectsMissingIdentity(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"balance","adapter":"telegram"}`))
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestUnmarshalFillsUniqueID(t *testing.T) {
	c, err := Unmarshal([]byte(`{"type":"info","adapter":"telegram","source_id":"7"}`))
	require.NoError(t, err)
	assert.Equal(t, "7", c.UniqueID)
}

func TestMarshalRejectsZeroCommand(t *testing.T) {
	_, err := Marshal(Command{})
	assert.ErrorIs(t, err, ErrUnknownType)
}
