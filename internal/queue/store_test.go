package queue_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/xlm-tipbot/internal/command"
	"github.com/suspectuso/xlm-tipbot/internal/events"
	"github.com/suspectuso/xlm-tipbot/internal/queue"
	"github.com/suspectuso/xlm-tipbot/internal/storage"
)

type nopMessenger struct{}

func (nopMessenger) SendDirectMessage(ctx context.Context, uniqueID, text string) error { return nil }

func TestQueueSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tipbot.db")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	store, err := storage.New(path)
	require.NoError(t, err)
	q := queue.New(store.Commands(), nopMessenger{}, events.Discard, log, 10)

	withdraw := command.NewWithdraw("telegram", "1", "2", "")
	_, err = q.Push(ctx, withdraw)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = storage.New(path)
	require.NoError(t, err)
	defer store.Close()
	q = queue.New(store.Commands(), nopMessenger{}, events.Discard, log, 10)

	var got []command.Command
	processed, _, err := q.Flush(ctx, func(ctx context.Context, cmd command.Command) string {
		got = append(got, cmd)
		return "done"
	})
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	require.Len(t, got, 1)
	assert.Equal(t, withdraw, got[0])

	n, err := store.Commands().Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
