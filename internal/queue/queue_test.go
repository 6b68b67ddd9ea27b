package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/xlm-tipbot/internal/command"
	"github.com/suspectuso/xlm-tipbot/internal/events"
)

type memStore struct {
	mu      sync.Mutex
	next    int
	records []Record
	ackErr  error
}

func (m *memStore) Append(ctx context.Context, payload []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.records = append(m.records, Record{ID: strconv.Itoa(m.next), Payload: payload, EnqueuedAt: at})
	return nil
}

func (m *memStore) Snapshot(ctx context.Context, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := min(limit, len(m.records))
	out := make([]Record, n)
	copy(out, m.records[:n])
	return out, nil
}

func (m *memStore) Ack(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ackErr != nil {
		return m.ackErr
	}
	for i, r := range m.records {
		if r.ID == rec.ID {
			m.records = append(m.records[:i], m.records[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memStore) Len(ctx context.Context) (int, error) {
	return m.len(), nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type dmRecorder struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (d *dmRecorder) SendDirectMessage(ctx context.Context, uniqueID, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, uniqueID+":"+text)
	return nil
}

func (d *dmRecorder) messages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

type eventLog struct {
	mu    sync.Mutex
	types []events.Type
}

func (e *eventLog) Publish(ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, ev.Type)
}

func (e *eventLog) has(t events.Type) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, got := range e.types {
		if got == t {
			return true
		}
	}
	return false
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue() (*Queue, *memStore, *dmRecorder, *eventLog) {
	store := &memStore{}
	dm := &dmRecorder{}
	ev := &eventLog{}
	return New(store, dm, ev, testLogger(), 0), store, dm, ev
}

func echo(ctx context.Context, cmd command.Command) string {
	return string(cmd.Type) + " " + cmd.Amount
}

func TestPushAcknowledges(t *testing.T) {
	q, store, _, ev := newTestQueue()

	reply, err := q.Push(context.Background(), command.NewWithdraw("telegram", "1", "5", ""))
	require.NoError(t, err)

	assert.Equal(t, "Your request is being processed.", reply)
	assert.Equal(t, 1, store.len())
	assert.True(t, ev.has(events.CommandQueued))
}

func TestPushRejectsUnknownType(t *testing.T) {
	q, store, _, _ := newTestQueue()

	_, err := q.Push(context.Background(), command.Command{Type: "refund", Adapter: "telegram", SourceID: "1"})
	assert.ErrorIs(t, err, command.ErrUnknownType)
	assert.Zero(t, store.len())
}

func TestFlushProcessesInEnqueueOrder(t *testing.T) {
	q, store, dm, ev := newTestQueue()
	ctx := context.Background()

	for _, amount := range []string{"1", "2", "3"} {
		_, err := q.Push(ctx, command.NewTip("telegram", "7", "8", amount))
		require.NoError(t, err)
	}

	var order []string
	processed, ran, err := q.Flush(ctx, func(ctx context.Context, cmd command.Command) string {
		order = append(order, cmd.Amount)
		return echo(ctx, cmd)
	})
	require.NoError(t, err)

	assert.True(t, ran)
	assert.Equal(t, 3, processed)
	assert.Equal(t, []string{"1", "2", "3"}, order)
	assert.Equal(t, []string{"7:tip 1", "7:tip 2", "7:tip 3"}, dm.messages())
	assert.Zero(t, store.len())
	assert.True(t, ev.has(events.QueueFlushed))
}

func TestEntriesPushedDuringFlushWaitForNextCycle(t *testing.T) {
	q, store, _, _ := newTestQueue()
	ctx := context.Background()
	_, err := q.Push(ctx, command.NewBalance("telegram", "1", ""))
	require.NoError(t, err)

	processed, _, err := q.Flush(ctx, func(ctx context.Context, cmd command.Command) string {
		_, err := q.Push(ctx, command.NewInfo("telegram", "1"))
		assert.NoError(t, err)
		return ""
	})
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, store.len())
}

func TestFlushDrainsMoreThanOneBatch(t *testing.T) {
	store := &memStore{}
	dm := &dmRecorder{}
	q := New(store, dm, events.Discard, testLogger(), 2)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := q.Push(ctx, command.NewTip("telegram", "7", "8", strconv.Itoa(i)))
		require.NoError(t, err)
	}

	pushed := false
	processed, _, err := q.Flush(ctx, func(ctx context.Context, cmd command.Command) string {
		if !pushed {
			pushed = true
			_, err := q.Push(ctx, command.NewInfo("telegram", "7"))
			assert.NoError(t, err)
		}
		return echo(ctx, cmd)
	})
	require.NoError(t, err)

	assert.Equal(t, 5, processed)
	assert.Equal(t, []string{"7:tip 1", "7:tip 2", "7:tip 3", "7:tip 4", "7:tip 5"}, dm.messages())
	assert.Equal(t, 1, store.len())
}

func TestFlushDropsUndecodableEntries(t *testing.T) {
	q, store, dm, _ := newTestQueue()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, []byte("not json"), time.Now()))
	_, err := q.Push(ctx, command.NewInfo("telegram", "3"))
	require.NoError(t, err)

	processed, _, err := q.Flush(ctx, echo)
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	assert.Equal(t, []string{"3:info "}, dm.messages())
	assert.Zero(t, store.len())
}

func TestFlushAcksEvenWhenReplyIsNotDelivered(t *testing.T) {
	q, store, dm, ev := newTestQueue()
	ctx := context.Background()
	dm.err = errors.New("blocked by user")

	_, err := q.Push(ctx, command.NewInfo("telegram", "3"))
	require.NoError(t, err)

	processed, _, err := q.Flush(ctx, echo)
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	assert.Zero(t, store.len())
	assert.True(t, ev.has(events.NotificationFailed))
}

func TestFlushKeepsEntryWhenAckFails(t *testing.T) {
	q, store, _, _ := newTestQueue()
	ctx := context.Background()
	_, err := q.Push(ctx, command.NewInfo("telegram", "3"))
	require.NoError(t, err)
	store.ackErr = errors.New("connection reset")

	processed, _, err := q.Flush(ctx, echo)
	assert.Error(t, err)
	assert.Zero(t, processed)
	assert.Equal(t, 1, store.len())
}

func TestFlushDoesNotOverlap(t *testing.T) {
	q, _, _, _ := newTestQueue()
	ctx := context.Background()
	_, err := q.Push(ctx, command.NewInfo("telegram", "3"))
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Flush(ctx, func(ctx context.Context, cmd command.Command) string {
			close(entered)
			<-release
			return ""
		})
	}()

	<-entered
	processed, ran, err := q.Flush(ctx, echo)
	assert.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, processed)

	close(release)
	<-done
}

func TestRunFlusherDrainsQueue(t *testing.T) {
	q, store, dm, _ := newTestQueue()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := q.Push(ctx, command.NewInfo("telegram", "9"))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- RunFlusher(ctx, q, echo, 10*time.Millisecond, testLogger()) }()

	require.Eventually(t, func() bool { return store.len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"9:info "}, dm.messages())

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("flusher did not stop")
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	key := "tipbot:test:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	store, err := NewRedisStore(url, key)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	defer store.rdb.Del(ctx, key)

	q := New(store, &dmRecorder{}, events.Discard, testLogger(), 10)
	for _, amount := range []string{"1", "2"} {
		_, err := q.Push(ctx, command.NewTip("telegram", "1", "2", amount))
		require.NoError(t, err)
	}

	var order []string
	processed, _, err := q.Flush(ctx, func(ctx context.Context, cmd command.Command) string {
		order = append(order, cmd.Amount)
		return ""
	})
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, []string{"1", "2"}, order)

	left, err := store.Snapshot(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, left)
}
