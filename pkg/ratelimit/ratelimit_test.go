package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"broker/pkg/config"
)

// fakeClock подменяет MemoryLimiter.now
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Requests <= 0 {
		t.Error("Requests should be positive")
	}
	if cfg.Window <= 0 {
		t.Error("Window should be positive")
	}
	if cfg.Strategy == "" {
		t.Error("Strategy should not be empty")
	}
}

func TestNewMemoryLimiter(t *testing.T) {
	limiter := NewMemoryLimiter(nil)
	defer limiter.Close()

	if limiter == nil {
		t.Fatal("NewMemoryLimiter returned nil")
	}
}

func TestMemoryLimiter_Allow(t *testing.T) {
	cfg := &Config{
		Requests:        5,
		Window:          time.Second,
		Strategy:        StrategySlidingWindow,
		CleanupInterval: time.Minute,
	}
	limiter := NewMemoryLimiter(cfg)
	defer limiter.Close()

	ctx := context.Background()
	key := "test-key"

	// First 5 requests should be allowed
	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	// 6th request should be denied
	allowed, err := limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("6th request should be denied")
	}
}

func TestMemoryLimiter_AllowN(t *testing.T) {
	cfg := &Config{
		Requests:        10,
		Window:          time.Second,
		Strategy:        StrategySlidingWindow,
		CleanupInterval: time.Minute,
	}
	limiter := NewMemoryLimiter(cfg)
	defer limiter.Close()

	ctx := context.Background()
	key := "test-key"

	// Allow 5 requests at once
	allowed, err := limiter.AllowN(ctx, key, 5)
	if err != nil {
		t.Fatalf("AllowN() error = %v", err)
	}
	if !allowed {
		t.Error("5 requests should be allowed")
	}

	// Allow another 5
	allowed, err = limiter.AllowN(ctx, key, 5)
	if err != nil {
		t.Fatalf("AllowN() error = %v", err)
	}
	if !allowed {
		t.Error("another 5 requests should be allowed")
	}

	// 11th request should be denied
	allowed, err = limiter.AllowN(ctx, key, 1)
	if err != nil {
		t.Fatalf("AllowN() error = %v", err)
	}
	if allowed {
		t.Error("11th request should be denied")
	}
}

func TestMemoryLimiter_Reset(t *testing.T) {
	cfg := &Config{
		Requests:        2,
		Window:          time.Second,
		Strategy:        StrategySlidingWindow,
		CleanupInterval: time.Minute,
	}
	limiter := NewMemoryLimiter(cfg)
	defer limiter.Close()

	ctx := context.Background()
	key := "test-key"

	// Use up the limit
	limiter.Allow(ctx, key)
	limiter.Allow(ctx, key)

	allowed, _ := limiter.Allow(ctx, key)
	if allowed {
		t.Error("should be rate limited")
	}

	// Reset
	limiter.Reset(ctx, key)

	// Should be allowed again
	allowed, _ = limiter.Allow(ctx, key)
	if !allowed {
		t.Error("should be allowed after reset")
	}
}

func TestMemoryLimiter_GetInfo(t *testing.T) {
	cfg := &Config{
		Requests:        10,
		Window:          time.Minute,
		Strategy:        StrategySlidingWindow,
		CleanupInterval: time.Minute,
	}
	limiter := NewMemoryLimiter(cfg)
	defer limiter.Close()

	ctx := context.Background()
	key := "test-key"

	// Initial state
	info, err := limiter.GetInfo(ctx, key)
	if err != nil {
		t.Fatalf("GetInfo() error = %v", err)
	}
	if info.Limit != 10 {
		t.Errorf("Limit = %d, want 10", info.Limit)
	}
	if info.Remaining != 10 {
		t.Errorf("Remaining = %d, want 10", info.Remaining)
	}

	// After some requests
	limiter.Allow(ctx, key)
	limiter.Allow(ctx, key)

	info, _ = limiter.GetInfo(ctx, key)
	if info.Remaining != 8 {
		t.Errorf("Remaining = %d, want 8", info.Remaining)
	}
}

func TestMemoryLimiter_TokenBucket(t *testing.T) {
	cfg := &Config{
		Requests:        5,
		Window:          time.Second,
		Strategy:        StrategyTokenBucket,
		BurstSize:       2,
		CleanupInterval: time.Minute,
	}
	limiter := NewMemoryLimiter(cfg)
	defer limiter.Close()

	ctx := context.Background()
	key := "test-key"

	// Should allow up to Requests + BurstSize
	for i := 0; i < 7; i++ {
		allowed, _ := limiter.Allow(ctx, key)
		if !allowed {
			t.Errorf("Request %d should be allowed with burst", i+1)
		}
	}
}

func TestMemoryLimiter_Close(t *testing.T) {
	limiter := NewMemoryLimiter(nil)

	err := limiter.Close()
	if err != nil {
		t.Errorf("Close() error = %v", err)
	}

	// Double close should not error
	err = limiter.Close()
	if err != nil {
		t.Errorf("Double Close() error = %v", err)
	}

	// Operations after close should fail
	ctx := context.Background()
	_, err = limiter.Allow(ctx, "key")
	if err != ErrLimiterClosed {
		t.Errorf("Allow after close should return ErrLimiterClosed, got %v", err)
	}
}

func TestMemoryLimiter_Wait(t *testing.T) {
	cfg := &Config{
		Requests:        1,
		Window:          100 * time.Millisecond,
		Strategy:        StrategySlidingWindow,
		CleanupInterval: time.Minute,
	}
	limiter := NewMemoryLimiter(cfg)
	defer limiter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Use up the limit
	limiter.Allow(ctx, "key")

	// Wait should timeout
	err := limiter.Wait(ctx, "key")
	if err != context.DeadlineExceeded {
		t.Errorf("Wait() should timeout, got %v", err)
	}
}

func TestNew(t *testing.T) {
	t.Run("memory backend", func(t *testing.T) {
		limiter, err := New(&Config{
			Backend:         "memory",
			Requests:        10,
			Window:          time.Second,
			CleanupInterval: time.Minute,
		})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer limiter.Close()
	})

	t.Run("default backend", func(t *testing.T) {
		limiter, err := New(&Config{
			Backend:         "",
			Requests:        10,
			Window:          time.Second,
			CleanupInterval: time.Minute,
		})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer limiter.Close()
	})

	t.Run("nil config", func(t *testing.T) {
		limiter, err := New(nil)
		if err != nil {
			t.Fatalf("New(nil) error = %v", err)
		}
		defer limiter.Close()
	})
}

func TestMemoryLimiter_SlidingWindowExpiry(t *testing.T) {
	limiter := NewMemoryLimiter(&Config{
		Requests:        2,
		Window:          time.Second,
		Strategy:        StrategySlidingWindow,
		CleanupInterval: time.Minute,
	})
	defer limiter.Close()

	clock := newFakeClock()
	limiter.now = clock.Now

	ctx := context.Background()
	limiter.Allow(ctx, "k")
	clock.Advance(400 * time.Millisecond)
	limiter.Allow(ctx, "k")

	if allowed, _ := limiter.Allow(ctx, "k"); allowed {
		t.Fatal("third request inside the window should be denied")
	}

	info, err := limiter.GetInfo(ctx, "k")
	if err != nil {
		t.Fatalf("GetInfo() error = %v", err)
	}
	if info.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", info.Remaining)
	}
	if info.RetryAfter != 600*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 600ms", info.RetryAfter)
	}

	// первый запрос выходит из окна
	clock.Advance(600 * time.Millisecond)
	if allowed, _ := limiter.Allow(ctx, "k"); !allowed {
		t.Error("request should be allowed after the oldest one expired")
	}
	if allowed, _ := limiter.Allow(ctx, "k"); allowed {
		t.Error("window is full again")
	}
}

func TestMemoryLimiter_TokenBucketRefill(t *testing.T) {
	limiter := NewMemoryLimiter(&Config{
		Requests:        10,
		Window:          time.Second,
		Strategy:        StrategyTokenBucket,
		CleanupInterval: time.Minute,
	})
	defer limiter.Close()

	clock := newFakeClock()
	limiter.now = clock.Now

	ctx := context.Background()
	if allowed, _ := limiter.AllowN(ctx, "k", 10); !allowed {
		t.Fatal("full bucket should allow 10")
	}
	if allowed, _ := limiter.Allow(ctx, "k"); allowed {
		t.Fatal("empty bucket should deny")
	}

	info, _ := limiter.GetInfo(ctx, "k")
	if info.RetryAfter != 100*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 100ms", info.RetryAfter)
	}

	// 10 токенов в секунду: за 500ms набирается 5
	clock.Advance(500 * time.Millisecond)
	if allowed, _ := limiter.AllowN(ctx, "k", 5); !allowed {
		t.Error("5 tokens should be refilled")
	}
	if allowed, _ := limiter.Allow(ctx, "k"); allowed {
		t.Error("bucket should be empty again")
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter(&Config{Requests: 1, Window: time.Minute, CleanupInterval: time.Minute})
	defer limiter.Close()

	ctx := context.Background()
	if allowed, _ := limiter.Allow(ctx, "a"); !allowed {
		t.Error("a should be allowed")
	}
	if allowed, _ := limiter.Allow(ctx, "b"); !allowed {
		t.Error("b should be allowed")
	}
	if allowed, _ := limiter.Allow(ctx, "a"); allowed {
		t.Error("a should be limited")
	}
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	limiter := NewMemoryLimiter(&Config{Requests: 5, Window: time.Second, CleanupInterval: time.Hour})
	defer limiter.Close()

	clock := newFakeClock()
	limiter.now = clock.Now

	ctx := context.Background()
	limiter.Allow(ctx, "old")
	clock.Advance(3 * time.Second)
	limiter.Allow(ctx, "fresh")

	if removed := limiter.doCleanup(); removed != 1 {
		t.Errorf("doCleanup() removed %d, want 1", removed)
	}
	if _, ok := limiter.buckets["fresh"]; !ok {
		t.Error("fresh bucket should survive cleanup")
	}
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	limiter := NewMemoryLimiter(&Config{Requests: 50, Window: time.Minute, CleanupInterval: time.Minute})
	defer limiter.Close()

	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := limiter.Allow(ctx, "shared"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RateLimitConfig{
		Enabled:   true,
		Requests:  30,
		Window:    10 * time.Second,
		Backend:   "redis",
		RedisAddr: "redis:6379",
	})

	if cfg.Requests != 30 || cfg.Window != 10*time.Second {
		t.Errorf("limits = %d/%v", cfg.Requests, cfg.Window)
	}
	if cfg.Backend != "redis" || cfg.RedisAddr != "redis:6379" {
		t.Errorf("backend = %s %s", cfg.Backend, cfg.RedisAddr)
	}
	if cfg.Strategy != StrategySlidingWindow || cfg.KeyPrefix == "" {
		t.Errorf("defaults lost: %+v", cfg)
	}

	empty := FromConfig(config.RateLimitConfig{})
	if empty.Requests != DefaultConfig().Requests {
		t.Errorf("zero requests should fall back to default, got %d", empty.Requests)
	}
}

func TestKeyExtractors(t *testing.T) {
	ctx := context.Background()
	procedure := "/broker.v1.BrokerService/Solve"

	header := func(kv ...string) http.Header {
		h := http.Header{}
		for i := 0; i+1 < len(kv); i += 2 {
			h.Set(kv[i], kv[i+1])
		}
		return h
	}

	tests := []struct {
		name   string
		ext    KeyExtractor
		peer   string
		header http.Header
		want   string
	}{
		{"ip from x-forwarded-for", IPKeyExtractor, "10.0.0.9:5000", header("X-Forwarded-For", "192.168.1.1, 10.0.0.2"), "192.168.1.1"},
		{"ip from x-real-ip", IPKeyExtractor, "", header("X-Real-IP", "10.0.0.1"), "10.0.0.1"},
		{"ip from peer", IPKeyExtractor, "127.0.0.1:43210", header(), "127.0.0.1"},
		{"ip fallback", IPKeyExtractor, "", header(), "unknown"},
		{"procedure", ProcedureKeyExtractor, "", nil, procedure},
		{"composite", CompositeKeyExtractor(ProcedureKeyExtractor, IPKeyExtractor), "1.2.3.4:1", header(), procedure + ":1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ext(ctx, procedure, tt.peer, tt.header); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

type subjectKey struct{}

func TestSubjectKeyExtractor(t *testing.T) {
	ext := SubjectKeyExtractor(func(ctx context.Context) string {
		s, _ := ctx.Value(subjectKey{}).(string)
		return s
	})

	ctx := context.WithValue(context.Background(), subjectKey{}, "alice")
	if got := ext(ctx, "/p", "1.1.1.1:1", http.Header{}); got != "sub:alice" {
		t.Errorf("key = %q, want sub:alice", got)
	}
	if got := ext(context.Background(), "/p", "1.1.1.1:1", http.Header{}); got != "1.1.1.1" {
		t.Errorf("anonymous key = %q, want 1.1.1.1", got)
	}
}
