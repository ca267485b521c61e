package tangguh

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache on top of a Redis backend so cached responses
// survive process restarts and can be shared between instances. Entries are
// JSON-encoded; Redis key expiry enforces the TTL, with ExpiresAt kept in
// the payload as a second line of defense against clock skew between
// writers.
type RedisCache struct {
	rdb       *redis.Client
	prefix    string
	opTimeout time.Duration
}

// RedisCacheOption configures a RedisCache.
type RedisCacheOption func(*RedisCache)

// WithRedisKeyPrefix changes the key namespace (default "tangguh:cache").
func WithRedisKeyPrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) { c.prefix = prefix }
}

// WithRedisOpTimeout bounds each Redis round trip (default 250ms). Cache
// operations are advisory, so a slow backend degrades to misses instead of
// stalling the pipeline.
func WithRedisOpTimeout(d time.Duration) RedisCacheOption {
	return func(c *RedisCache) { c.opTimeout = d }
}

// NewRedisCache wraps an existing go-redis client.
func NewRedisCache(rdb *redis.Client, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		rdb:       rdb,
		prefix:    "tangguh:cache",
		opTimeout: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) key(key string) string {
	return c.prefix + ":" + key
}

func (c *RedisCache) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.opTimeout)
}

// Get implements Cache.
func (c *RedisCache) Get(key string) (*CacheEntry, bool) {
	ctx, cancel := c.opContext()
	defer cancel()

	data, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt payload; drop it so the next lookup is a clean miss.
		c.Delete(key)
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		c.Delete(key)
		return nil, false
	}
	return &entry, true
}

// Set implements Cache.
func (c *RedisCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	entry.StoredAt = time.Now()
	entry.ExpiresAt = entry.StoredAt.Add(ttl)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	ctx, cancel := c.opContext()
	defer cancel()
	c.rdb.Set(ctx, c.key(key), data, ttl)
}

// Delete implements Cache.
func (c *RedisCache) Delete(key string) {
	ctx, cancel := c.opContext()
	defer cancel()
	c.rdb.Del(ctx, c.key(key))
}

// Clear removes all entries under the cache's prefix using cursor-based
// SCAN so large keyspaces do not block the server.
func (c *RedisCache) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*c.opTimeout)
	defer cancel()

	iter := c.rdb.Scan(ctx, 0, c.prefix+":*", 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 256 {
			c.rdb.Del(ctx, keys...)
			keys = keys[:0]
		}
	}
	if len(keys) > 0 {
		c.rdb.Del(ctx, keys...)
	}
}

// Ping verifies connectivity to the backend, for startup health checks.
func (c *RedisCache) Ping(ctx context.Context) error {
	if c.rdb == nil {
		return errors.New("tangguh: redis cache has no client")
	}
	return c.rdb.Ping(ctx).Err()
}
