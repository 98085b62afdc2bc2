package cache

import (
	"context"
	"errors"
	"time"

	"triage_server/core/port/out"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisCache stores structured cache entries in Redis. Expiry is enforced both
// by the Redis TTL and by the entry's own ExpiresAt.
type RedisCache struct {
	client     *redis.Client
	versionKey string
}

// NewRedisCache creates a cache whose version counter lives at versionKey.
func NewRedisCache(client *redis.Client, versionKey string) *RedisCache {
	return &RedisCache{client: client, versionKey: versionKey}
}

// Get returns out.ErrCacheMiss for absent or expired keys.
func (c *RedisCache) Get(ctx context.Context, key string) (*out.CacheEntry, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, out.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var entry out.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	if entry.Expired(time.Now()) {
		return nil, out.ErrCacheMiss
	}
	return &entry, nil
}

// Set stores the entry with a Redis TTL matching ExpiresAt.
func (c *RedisCache) Set(ctx context.Context, entry *out.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if !entry.ExpiresAt.IsZero() {
		ttl = time.Until(entry.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}
	return c.client.Set(ctx, entry.Key, data, ttl).Err()
}

// Delete removes a key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Version returns the current version, initialising it to 1.
func (c *RedisCache) Version(ctx context.Context) (int64, error) {
	if err := c.client.SetNX(ctx, c.versionKey, 1, 0).Err(); err != nil {
		return 0, err
	}
	return c.client.Get(ctx, c.versionKey).Int64()
}

// BumpVersion increments the version; entries under older versions are left
// to expire on their own.
func (c *RedisCache) BumpVersion(ctx context.Context) (int64, error) {
	if err := c.client.SetNX(ctx, c.versionKey, 1, 0).Err(); err != nil {
		return 0, err
	}
	return c.client.Incr(ctx, c.versionKey).Result()
}

var _ out.ExampleCache = (*RedisCache)(nil)
