package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	userID int64
	text   string
}

type fakeSender struct {
	sent []sent
	err  error
}

func (f *fakeSender) SendNotification(ctx context.Context, userID int64, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{userID, text})
	return nil
}

func newTestNotifier(s Sender) *Notifier {
	return New(s, 1000, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSendDirectMessage(t *testing.T) {
	s := &fakeSender{}
	n := newTestNotifier(s)
	before := testutil.ToFloat64(sentTotal.WithLabelValues("ok"))

	require.NoError(t, n.SendDirectMessage(context.Background(), "42", "hello"))

	assert.Equal(t, []sent{{42, "hello"}}, s.sent)
	assert.Equal(t, before+1, testutil.ToFloat64(sentTotal.WithLabelValues("ok")))
}

func TestSendDirectMessageRejectsNonNumericID(t *testing.T) {
	s := &fakeSender{}
	n := newTestNotifier(s)

	err := n.SendDirectMessage(context.Background(), "U024BE7LH", "hello")
	assert.ErrorIs(t, err, ErrUnknownRecipient)
	assert.Empty(t, s.sent)
}

func TestSendDirectMessageReturnsSenderError(t *testing.T) {
	s := &fakeSender{err: errors.New("forbidden: bot was blocked by the user")}
	n := newTestNotifier(s)

	err := n.SendDirectMessage(context.Background(), "42", "hello")
	assert.EqualError(t, err, "forbidden: bot was blocked by the user")
}

func TestSendDirectMessageHonorsContext(t *testing.T) {
	n := newTestNotifier(&fakeSender{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// burst is one, so the second wait needs a token the cancelled context can't get
	_ = n.SendDirectMessage(context.Background(), "1", "a")
	err := n.SendDirectMessage(ctx, "1", "b")
	assert.Error(t, err)
}
