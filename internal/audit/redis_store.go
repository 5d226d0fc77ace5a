package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list key used when none is configured.
const DefaultRedisKey = "tripwell:audit:log"

const purgeAttempts = 3

// RedisStore keeps the log as a capped Redis list of JSON documents, oldest
// at the head. Several processes may share one list.
type RedisStore struct {
	client   *redis.Client
	key      string
	capacity int
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, key string, capacity int) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RedisStore{client: client, key: key, capacity: capacity}
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, e Entry) (Entry, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: encode entry: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.key, payload)
		pipe.LTrim(ctx, s.key, int64(-s.capacity), -1)
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("audit: redis append: %w", err)
	}
	return e, nil
}

// Query implements Store.
func (s *RedisStore) Query(ctx context.Context, f Filters) ([]Entry, error) {
	entries, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return selectEntries(entries, f), nil
}

// Snapshot implements Store.
func (s *RedisStore) Snapshot(ctx context.Context) ([]Entry, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("audit: redis range: %w", err)
	}
	return decodeEntries(raw)
}

// Purge implements Store. The list is rewritten under WATCH so concurrent
// appends abort and retry the purge instead of being lost.
func (s *RedisStore) Purge(ctx context.Context, before time.Time) (int, error) {
	var removed int
	purge := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, s.key, 0, -1).Result()
		if err != nil {
			return err
		}
		entries, err := decodeEntries(raw)
		if err != nil {
			return err
		}
		kept := make([]any, 0, len(raw))
		for i, e := range entries {
			if !e.CreatedAt.Before(before) {
				kept = append(kept, raw[i])
			}
		}
		removed = len(raw) - len(kept)
		if removed == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.key)
			if len(kept) > 0 {
				pipe.RPush(ctx, s.key, kept...)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < purgeAttempts; attempt++ {
		err := s.client.Watch(ctx, purge, s.key)
		if err == nil {
			return removed, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return 0, fmt.Errorf("audit: redis purge: %w", err)
		}
	}
	return 0, fmt.Errorf("audit: redis purge: %w", redis.TxFailedErr)
}

func decodeEntries(raw []string) ([]Entry, error) {
	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("audit: decode entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
