// Package cache wraps a Redis client with the thin set of operations
// the engine needs: a fast idempotency probe fronting the store's
// ExistsBatchID, and a SetNX-based per-game lock (AcquireBufferLock).
// Grounded on the slot-game-module db/redis Client wrapper, trimmed to
// the operations this domain actually calls.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"poolSize"`
}

// IdempotencyTTL bounds how long a processed batchId is remembered in
// the fast-path cache; the store's batch_id index remains the
// source of truth beyond that window.
const IdempotencyTTL = 24 * time.Hour

// Client wraps go-redis for the engine's narrow needs.
type Client struct {
	rdb *redis.Client
}

// New dials Redis and verifies connectivity with a Ping. A zero-value
// Config (empty Addr) means Redis is not configured; callers should
// check for that before calling New.
func New(cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// MarkBatchSeen records batchId as processed, for the idempotency
// fast path ahead of a store round trip.
func (c *Client) MarkBatchSeen(ctx context.Context, batchID string) error {
	key := batchKey(batchID)
	if err := c.rdb.Set(ctx, key, "1", IdempotencyTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark batch seen: %w", err)
	}
	return nil
}

// HasSeenBatch reports whether batchId was marked seen within the TTL
// window. A cache miss is not authoritative: callers must still
// consult the store before trusting a "false".
func (c *Client) HasSeenBatch(ctx context.Context, batchID string) (bool, error) {
	count, err := c.rdb.Exists(ctx, batchKey(batchID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to probe batch cache: %w", err)
	}
	return count > 0, nil
}

// AcquireBufferLock takes a distributed, TTL-bounded lock so only one
// aggregator instance flushes a given game's buffer in a given tick,
// when the aggregator is scaled across processes.
func (c *Client) AcquireBufferLock(ctx context.Context, gameID string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKey(gameID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire buffer lock: %w", err)
	}
	return ok, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func batchKey(batchID string) string {
	return "luckengine:batch:" + batchID
}

func lockKey(gameID string) string {
	return "luckengine:buflock:" + gameID
}
