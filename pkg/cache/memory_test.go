package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestMemoryCache(t *testing.T, maxEntries int) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(&Options{
		DefaultTTL:      time.Minute,
		MaxEntries:      maxEntries,
		CleanupInterval: time.Hour,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := newTestMemoryCache(t, 10)
	ctx := context.Background()

	value := []byte("allocation")
	if err := c.Set(ctx, "k", value, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value[0] = 'X'

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "allocation" {
		t.Errorf("Get() = %q, stored value must be a copy", got)
	}

	got[0] = 'Y'
	again, _ := c.Get(ctx, "k")
	if string(again) != "allocation" {
		t.Errorf("returned slice must be a copy, got %q", again)
	}

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrKeyNotFound", err)
	}
}

func TestMemoryCache_Overwrite(t *testing.T) {
	c := newTestMemoryCache(t, 10)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("1234"), 0)
	_ = c.Set(ctx, "k", []byte("12"), 0)

	got, _ := c.Get(ctx, "k")
	if string(got) != "12" {
		t.Errorf("Get() = %q", got)
	}

	stats, _ := c.Stats(ctx)
	if stats.TotalKeys != 1 || stats.MemoryBytes != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestMemoryCache_TTL(t *testing.T) {
	c := newTestMemoryCache(t, 10)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "short", []byte("v"), time.Second)
	_ = c.Set(ctx, "long", []byte("v"), time.Hour)

	now = now.Add(2 * time.Second)

	if ok, _ := c.Exists(ctx, "short"); ok {
		t.Error("short should be expired")
	}
	if _, err := c.Get(ctx, "short"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(short) error = %v", err)
	}
	if ok, _ := c.Exists(ctx, "long"); !ok {
		t.Error("long should still exist")
	}

	_ = c.Set(ctx, "also-short", []byte("v"), time.Second)
	now = now.Add(2 * time.Second)
	if removed := c.purgeExpired(); removed != 1 {
		t.Errorf("purgeExpired() = %d, want 1", removed)
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	c := newTestMemoryCache(t, 3)
	ctx := context.Background()

	for i := range 3 {
		_ = c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0)
	}

	// k0 становится самым свежим, вытесняется k1
	if _, err := c.Get(ctx, "k0"); err != nil {
		t.Fatalf("Get(k0) error = %v", err)
	}
	_ = c.Set(ctx, "k3", []byte("v"), 0)

	if ok, _ := c.Exists(ctx, "k1"); ok {
		t.Error("k1 should have been evicted")
	}
	for _, k := range []string{"k0", "k2", "k3"} {
		if ok, _ := c.Exists(ctx, k); !ok {
			t.Errorf("%s should exist", k)
		}
	}

	stats, _ := c.Stats(ctx)
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
}

func TestMemoryCache_DeleteByPattern(t *testing.T) {
	c := newTestMemoryCache(t, 100)
	ctx := context.Background()

	_ = c.Set(ctx, "solve:v1:aaa", []byte("1"), 0)
	_ = c.Set(ctx, "solve:v1:bbb", []byte("2"), 0)
	_ = c.Set(ctx, "report:aaa", []byte("3"), 0)

	n, err := c.DeleteByPattern(ctx, "solve:*")
	if err != nil {
		t.Fatalf("DeleteByPattern() error = %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	if ok, _ := c.Exists(ctx, "report:aaa"); !ok {
		t.Error("report:aaa should survive")
	}

	_ = c.Delete(ctx, "report:aaa")
	if ok, _ := c.Exists(ctx, "report:aaa"); ok {
		t.Error("Delete did not remove key")
	}
}

func TestMemoryCache_StatsAndClear(t *testing.T) {
	c := newTestMemoryCache(t, 10)
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("abc"), 0)
	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "b")

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d", stats.Hits, stats.Misses)
	}
	if stats.HitRate < 0.66 || stats.HitRate > 0.67 {
		t.Errorf("HitRate = %v", stats.HitRate)
	}
	if stats.Backend != BackendMemory {
		t.Errorf("Backend = %s", stats.Backend)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	stats, _ = c.Stats(ctx)
	if stats.TotalKeys != 0 || stats.MemoryBytes != 0 {
		t.Errorf("after Clear stats = %+v", stats)
	}
}

func TestMemoryCache_Closed(t *testing.T) {
	c := NewMemoryCache(nil)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	ctx := context.Background()
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Get after close error = %v", err)
	}
	if err := c.Set(ctx, "k", nil, 0); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Set after close error = %v", err)
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern, key string
		want         bool
	}{
		{"*", "anything", true},
		{"solve:*", "solve:v1:x", true},
		{"solve:*", "report:x", false},
		{"*:x", "solve:v1:x", true},
		{"solve:*:x", "solve:v1:x", true},
		{"ab*ba", "aba", false},
		{"exact", "exact", true},
		{"exact", "exact2", false},
	}
	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.key); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.key, got, tt.want)
		}
	}
}

func TestNew_DefaultsToMemory(t *testing.T) {
	c, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	if _, ok := c.(*MemoryCache); !ok {
		t.Errorf("New(nil) = %T, want *MemoryCache", c)
	}
}
