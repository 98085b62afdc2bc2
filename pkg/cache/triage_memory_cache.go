package cache

import (
	"context"
	"sync"
	"time"

	"triage_server/core/port/out"
)

// MemoryCache is a process-local ExampleCache, used when Redis is not configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*out.CacheEntry
	version int64
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*out.CacheEntry),
		version: 1,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*out.CacheEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || entry.Expired(c.now()) {
		return nil, out.ErrCacheMiss
	}
	copied := *entry
	copied.Value = append([]byte(nil), entry.Value...)
	return &copied, nil
}

func (c *MemoryCache) Set(ctx context.Context, entry *out.CacheEntry) error {
	stored := *entry
	stored.Value = append([]byte(nil), entry.Value...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Key] = &stored
	c.evictExpired()
	return nil
}

func (c *MemoryCache) Version(ctx context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version, nil
}

func (c *MemoryCache) BumpVersion(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	return c.version, nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictExpired must be called with mu held.
func (c *MemoryCache) evictExpired() {
	now := c.now()
	for k, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, k)
		}
	}
}

var _ out.ExampleCache = (*MemoryCache)(nil)
