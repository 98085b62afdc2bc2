package out

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by ExampleCache.Get when no live entry exists.
var ErrCacheMiss = errors.New("cache miss")

// CacheEntry is a structured cache value with an explicit expiry.
type CacheEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// ExampleCache holds label example summaries between runs.
type ExampleCache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, entry *CacheEntry) error
	// Version returns the current key version, starting at 1.
	Version(ctx context.Context) (int64, error)
	// BumpVersion invalidates all entries keyed by the previous version.
	BumpVersion(ctx context.Context) (int64, error)
}
