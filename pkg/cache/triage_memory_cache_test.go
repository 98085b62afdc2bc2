package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"triage_server/core/port/out"
)

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, &out.CacheEntry{Key: "k", Value: []byte("v"), ExpiresAt: now.Add(6 * time.Hour)}); err != nil {
		t.Fatal(err)
	}

	entry, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(entry.Value) != "v" {
		t.Errorf("Value = %q, want v", entry.Value)
	}

	now = now.Add(6 * time.Hour)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, out.ErrCacheMiss) {
		t.Errorf("Get() after expiry error = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache()
	if _, err := c.Get(context.Background(), "absent"); !errors.Is(err, out.ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheVersionBump(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	v, _ := c.Version(ctx)
	if v != 1 {
		t.Errorf("initial Version() = %d, want 1", v)
	}
	bumped, _ := c.BumpVersion(ctx)
	if bumped != 2 {
		t.Errorf("BumpVersion() = %d, want 2", bumped)
	}
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	value := []byte("abc")
	_ = c.Set(ctx, &out.CacheEntry{Key: "k", Value: value})
	value[0] = 'z'

	entry, _ := c.Get(ctx, "k")
	if string(entry.Value) != "abc" {
		t.Errorf("stored value mutated through caller slice: %q", entry.Value)
	}
}
