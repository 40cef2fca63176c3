// Package idempotency de-duplicates playback events delivered more than once
// by JetStream.
//
// Primary backend: Redis SETNX with TTL.
// Fallback: Postgres INSERT ... ON CONFLICT on processed_events.
// If neither is available, an in-memory store is used (development only).
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ErrMemoryInProduction is returned by NewStore when no shared backend is configured in production.
var ErrMemoryInProduction = errors.New("production requires redis or postgres for idempotency; in-memory store is not allowed")

// Store checks whether an event has already been processed and marks it.
type Store interface {
	// Check returns true if eventID was already processed.
	// If not seen, it atomically marks it as processed.
	Check(ctx context.Context, eventID string) (duplicate bool, err error)
	// Forget unmarks eventID so a redelivery after a failed apply is processed.
	Forget(ctx context.Context, eventID string) error
}

// NewStore picks the best available backend: Redis > Postgres > in-memory.
func NewStore(rdb *redis.Client, pool *pgxpool.Pool, ttl time.Duration, isProd bool) (Store, error) {
	if rdb != nil {
		return &redisStore{client: rdb, ttl: ttl}, nil
	}
	if pool != nil {
		return &postgresStore{pool: pool}, nil
	}
	if isProd {
		return nil, ErrMemoryInProduction
	}
	return newMemoryStore(), nil
}
