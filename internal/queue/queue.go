// Package queue buffers commands that are answered outside the request cycle.
// Entries are removed only after their handler has run and the reply was
// handed to the messenger, so a crash mid-flush redelivers them.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/suspectuso/xlm-tipbot/internal/command"
	"github.com/suspectuso/xlm-tipbot/internal/events"
)

// AckText is returned to the requester when a command is deferred
const AckText = "Your request is being processed."

// Record is one stored entry
type Record struct {
	ID         string
	Payload    []byte
	EnqueuedAt time.Time
}

// Store is the durable backing list. Snapshot returns entries in enqueue order.
type Store interface {
	Append(ctx context.Context, payload []byte, enqueuedAt time.Time) error
	Snapshot(ctx context.Context, limit int) ([]Record, error)
	Ack(ctx context.Context, rec Record) error
	Len(ctx context.Context) (int, error)
}

// Messenger delivers the eventual reply to the requester
type Messenger interface {
	SendDirectMessage(ctx context.Context, uniqueID, text string) error
}

// Handler processes one command and returns the user-facing reply
type Handler func(ctx context.Context, cmd command.Command) string

// Queue is the deferred command queue
type Queue struct {
	store     Store
	messenger Messenger
	events    events.Publisher
	log       *slog.Logger

	batch   int
	flushMu sync.Mutex
	now     func() time.Time
}

// New creates a queue. batch caps how many entries one snapshot loads.
func New(store Store, messenger Messenger, pub events.Publisher, log *slog.Logger, batch int) *Queue {
	if batch <= 0 {
		batch = 100
	}
	return &Queue{
		store:     store,
		messenger: messenger,
		events:    pub,
		log:       log,
		batch:     batch,
		now:       time.Now,
	}
}

// Push stores cmd and returns the acknowledgment for the requester
func (q *Queue) Push(ctx context.Context, cmd command.Command) (string, error) {
	payload, err := command.Marshal(cmd)
	if err != nil {
		return "", err
	}
	if err := q.store.Append(ctx, payload, q.now()); err != nil {
		return "", fmt.Errorf("append command: %w", err)
	}

	q.log.Debug("command queued", "type", cmd.Type, "unique_id", cmd.UniqueID, "hash", cmd.Hash)
	q.events.Publish(events.Event{Type: events.CommandQueued, Command: cmd})
	return AckText, nil
}

// Flush drains the entries present when it starts. A flush that finds
// another one in progress returns immediately with ran=false.
func (q *Queue) Flush(ctx context.Context, handle Handler) (processed int, ran bool, err error) {
	if !q.flushMu.TryLock() {
		return 0, false, nil
	}
	defer q.flushMu.Unlock()

	// appends go to the tail, so the first pending entries are the ones present now
	pending, err := q.store.Len(ctx)
	if err != nil {
		return 0, true, fmt.Errorf("count queue: %w", err)
	}

	for pending > 0 {
		records, err := q.store.Snapshot(ctx, min(q.batch, pending))
		if err != nil {
			return processed, true, fmt.Errorf("snapshot queue: %w", err)
		}
		if len(records) == 0 {
			break
		}

		for _, rec := range records {
			if ctx.Err() != nil {
				return processed, true, ctx.Err()
			}
			ran, err := q.deliver(ctx, rec, handle)
			if err != nil {
				return processed, true, err
			}
			pending--
			if ran {
				processed++
			}
		}
	}

	if processed > 0 {
		q.log.Info("queue flushed", "processed", processed)
		q.events.Publish(events.Event{Type: events.QueueFlushed, Count: processed})
	}
	return processed, true, nil
}

// deliver runs one entry and removes it from the store. Undecodable entries
// are dropped without running.
func (q *Queue) deliver(ctx context.Context, rec Record, handle Handler) (bool, error) {
	cmd, err := command.Unmarshal(rec.Payload)
	if err != nil {
		q.log.Error("drop undecodable command", "id", rec.ID, "error", err)
		if err := q.store.Ack(ctx, rec); err != nil {
			return false, fmt.Errorf("ack %s: %w", rec.ID, err)
		}
		return false, nil
	}

	reply := handle(ctx, cmd)
	if reply != "" {
		if err := q.messenger.SendDirectMessage(ctx, cmd.UniqueID, reply); err != nil {
			q.log.Error("deliver deferred reply", "unique_id", cmd.UniqueID, "hash", cmd.Hash, "error", err)
			q.events.Publish(events.Event{Type: events.NotificationFailed, Command: cmd})
		}
	}

	if err := q.store.Ack(ctx, rec); err != nil {
		return false, fmt.Errorf("ack %s: %w", rec.ID, err)
	}
	return true, nil
}
