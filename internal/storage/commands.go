package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/suspectuso/xlm-tipbot/internal/queue"
)

// CommandQueue is the deferred_commands table seen as a queue.Store
type CommandQueue struct {
	s *Storage
}

// Commands returns the queue store backed by this database
func (s *Storage) Commands() *CommandQueue {
	return &CommandQueue{s: s}
}

// Append stores one serialized command
func (q *CommandQueue) Append(ctx context.Context, payload []byte, enqueuedAt time.Time) error {
	_, err := q.s.db.ExecContext(ctx,
		`INSERT INTO deferred_commands (payload, enqueued_at) VALUES (?, ?)`,
		string(payload), enqueuedAt.UnixNano(),
	)
	return err
}

// Snapshot returns up to limit entries, oldest first
func (q *CommandQueue) Snapshot(ctx context.Context, limit int) ([]queue.Record, error) {
	rows, err := q.s.db.QueryContext(ctx,
		`SELECT id, payload, enqueued_at FROM deferred_commands ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []queue.Record
	for rows.Next() {
		var (
			id         int64
			payload    string
			enqueuedAt int64
		)
		if err := rows.Scan(&id, &payload, &enqueuedAt); err != nil {
			return nil, err
		}
		records = append(records, queue.Record{
			ID:         strconv.FormatInt(id, 10),
			Payload:    []byte(payload),
			EnqueuedAt: time.Unix(0, enqueuedAt),
		})
	}
	return records, rows.Err()
}

// Ack removes a processed entry
func (q *CommandQueue) Ack(ctx context.Context, rec queue.Record) error {
	_, err := q.s.db.ExecContext(ctx, `DELETE FROM deferred_commands WHERE id = ?`, rec.ID)
	return err
}

// Len returns how many entries are waiting
func (q *CommandQueue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deferred_commands`).Scan(&n)
	return n, err
}
