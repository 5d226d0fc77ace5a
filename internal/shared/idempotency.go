package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore records processed request keys per scope.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key, scope string) error
}

func checkKey(key, scope string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if scope == "" {
		return errors.New("idempotency scope required")
	}
	return nil
}

const idempotencySchema = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
	key        TEXT        NOT NULL,
	scope      TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (scope, key)
)`

// PGIdempotencyStore persists processed keys in Postgres.
type PGIdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewPGIdempotencyStore constructs the store.
func NewPGIdempotencyStore(pool *pgxpool.Pool) *PGIdempotencyStore {
	return &PGIdempotencyStore{pool: pool}
}

// EnsureSchema creates the key table when missing.
func (s *PGIdempotencyStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, idempotencySchema)
	return err
}

// CheckAndInsert ensures key uniqueness per scope.
func (s *PGIdempotencyStore) CheckAndInsert(ctx context.Context, key, scope string) error {
	if s == nil || s.pool == nil {
		return errors.New("idempotency store not initialised")
	}
	if err := checkKey(key, scope); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, scope, created_at) VALUES ($1, $2, $3)`, key, scope, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Cleanup removes keys older than retention and reports how many.
func (s *PGIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *PGIdempotencyStore) Delete(ctx context.Context, key, scope string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	if err := checkKey(key, scope); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND scope = $2`, key, scope)
	return err
}

// RedisIdempotencyStore keeps processed keys in Redis with a TTL.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore constructs the store. A non-positive ttl keeps keys
// for 24 hours.
func NewRedisIdempotencyStore(client *redis.Client, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if prefix == "" {
		prefix = "tripwell:idem"
	}
	return &RedisIdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisIdempotencyStore) redisKey(key, scope string) string {
	return s.prefix + ":" + scope + ":" + key
}

// CheckAndInsert ensures key uniqueness per scope.
func (s *RedisIdempotencyStore) CheckAndInsert(ctx context.Context, key, scope string) error {
	if s == nil || s.client == nil {
		return errors.New("idempotency store not initialised")
	}
	if err := checkKey(key, scope); err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.redisKey(key, scope), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrIdempotencyConflict
	}
	return nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *RedisIdempotencyStore) Delete(ctx context.Context, key, scope string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := checkKey(key, scope); err != nil {
		return err
	}
	return s.client.Del(ctx, s.redisKey(key, scope)).Err()
}
