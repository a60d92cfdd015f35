// Package cache wraps Redis with the query pipeline's fail-open-on-read,
// fail-closed-on-write contract.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/StephaneWamba/real-time-rag/engine/domain"
)

// Cache is a key/value store with TTL, backed by Redis.
type Cache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// New parses url and dials Redis, pinging to verify connectivity.
func New(ctx context.Context, url string, poolSize int, defaultTTL time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, domain.NewCacheError("parse redis url", err)
	}
	opts.PoolSize = poolSize

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, domain.NewCacheError("connect to redis", err)
	}

	return &Cache{client: client, defaultTTL: defaultTTL}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping is used by the health check to measure cache latency.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get reads a string value. Any backend error, including a miss, yields
// ("", false) — the cache fails open on reads.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// Set stores a string value with the given TTL (or the cache default when
// ttl <= 0). Write errors surface as CacheError.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return domain.NewCacheError("set key "+key, err)
	}
	return nil
}

// GetJSON reads and unmarshals a JSON value into out. A miss or a malformed
// cached value are both treated as absent, per the fail-open read contract.
func (c *Cache) GetJSON(ctx context.Context, key string, out any) bool {
	val, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

// SetJSON marshals v and stores it with the given TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return domain.NewCacheError("marshal value for key "+key, err)
	}
	return c.Set(ctx, key, string(data), ttl)
}

// Delete removes a key. Best-effort: backend errors are swallowed, matching
// the invalidation contract in the event processor.
func (c *Cache) Delete(ctx context.Context, key string) {
	_ = c.client.Del(ctx, key).Err()
}
