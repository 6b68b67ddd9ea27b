package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisStore keeps the queue in a Redis list. Record.ID is the raw list
// element, which Ack removes with LREM.
type RedisStore struct {
	rdb *redis.Client
	key string
}

type redisEntry struct {
	ID         string          `json:"id"`
	EnqueuedAt int64           `json:"enqueued_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewRedisStore connects to the Redis server at url (redis://...)
func NewRedisStore(url, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{rdb: redis.NewClient(opts), key: key}, nil
}

// Ping checks the connection
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the client
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

func (r *RedisStore) Append(ctx context.Context, payload []byte, enqueuedAt time.Time) error {
	data, err := json.Marshal(redisEntry{
		ID:         uuid.NewString(),
		EnqueuedAt: enqueuedAt.UnixNano(),
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	return r.rdb.RPush(ctx, r.key, data).Err()
}

func (r *RedisStore) Snapshot(ctx context.Context, limit int) ([]Record, error) {
	raw, err := r.rdb.LRange(ctx, r.key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		var e redisEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			// keep it so the flush drops and acks it
			records = append(records, Record{ID: item, Payload: []byte(item)})
			continue
		}
		records = append(records, Record{
			ID:         item,
			Payload:    e.Payload,
			EnqueuedAt: time.Unix(0, e.EnqueuedAt),
		})
	}
	return records, nil
}

func (r *RedisStore) Ack(ctx context.Context, rec Record) error {
	return r.rdb.LRem(ctx, r.key, 1, rec.ID).Err()
}

func (r *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := r.rdb.LLen(ctx, r.key).Result()
	return int(n), err
}
