package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter in-memory реализация rate limiter
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  *Config
	now     func() time.Time
	closed  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
	requests  []time.Time // отсортированы по возрастанию
}

// NewMemoryLimiter создаёт in-memory rate limiter
func NewMemoryLimiter(cfg *Config) *MemoryLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		config:  cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	l.wg.Add(1)
	go l.cleanup(interval)

	return l
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *MemoryLimiter) AllowN(_ context.Context, key string, n int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false, ErrLimiterClosed
	}

	now := l.now()
	b := l.bucket(key, now)

	if l.config.Strategy == StrategyTokenBucket {
		return l.allowTokenBucket(b, n, now), nil
	}
	return l.allowSlidingWindow(b, n, now), nil
}

// bucket вызывается под l.mu
func (l *MemoryLimiter) bucket(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			tokens:    l.capacity(),
			lastCheck: now,
		}
		l.buckets[key] = b
	}
	return b
}

func (l *MemoryLimiter) capacity() float64 {
	return float64(l.config.Requests + l.config.BurstSize)
}

func (l *MemoryLimiter) refill(b *bucket, now time.Time) {
	rate := float64(l.config.Requests) / l.config.Window.Seconds()
	b.tokens = min(b.tokens+now.Sub(b.lastCheck).Seconds()*rate, l.capacity())
	b.lastCheck = now
}

func (l *MemoryLimiter) allowTokenBucket(b *bucket, n int, now time.Time) bool {
	l.refill(b, now)

	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// prune отбрасывает запросы старше окна
func (l *MemoryLimiter) prune(b *bucket, now time.Time) {
	windowStart := now.Add(-l.config.Window)
	i := 0
	for i < len(b.requests) && !b.requests[i].After(windowStart) {
		i++
	}
	b.requests = b.requests[i:]
}

func (l *MemoryLimiter) allowSlidingWindow(b *bucket, n int, now time.Time) bool {
	l.prune(b, now)

	if len(b.requests)+n > l.config.Requests {
		return false
	}
	for range n {
		b.requests = append(b.requests, now)
	}
	b.lastCheck = now
	return true
}

func (l *MemoryLimiter) Wait(ctx context.Context, key string) error {
	return wait(ctx, l, key)
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, key)
	return nil
}

func (l *MemoryLimiter) GetInfo(_ context.Context, key string) (*LimitInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrLimiterClosed
	}

	now := l.now()
	info := &LimitInfo{
		Limit:     l.config.Requests,
		Remaining: l.config.Requests,
		ResetAt:   now.Add(l.config.Window),
	}

	b, ok := l.buckets[key]
	if !ok {
		return info, nil
	}

	if l.config.Strategy == StrategyTokenBucket {
		l.refill(b, now)
		info.Remaining = int(b.tokens)
		if info.Remaining < 1 {
			rate := float64(l.config.Requests) / l.config.Window.Seconds()
			info.RetryAfter = time.Duration((1 - b.tokens) / rate * float64(time.Second))
		}
		return info, nil
	}

	l.prune(b, now)
	info.Remaining = max(l.config.Requests-len(b.requests), 0)
	if len(b.requests) > 0 {
		// окно освобождается, когда истекает самый старый запрос
		oldestExpiry := b.requests[0].Add(l.config.Window)
		info.ResetAt = oldestExpiry
		if info.Remaining == 0 {
			info.RetryAfter = oldestExpiry.Sub(now)
		}
	}
	return info, nil
}

func (l *MemoryLimiter) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.buckets = nil
	l.mu.Unlock()

	close(l.stopCh)
	l.wg.Wait()
	return nil
}

func (l *MemoryLimiter) cleanup(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.doCleanup()
		}
	}
}

// doCleanup удаляет ключи, не обращавшиеся дольше двух окон
func (l *MemoryLimiter) doCleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	staleBefore := now.Add(-2 * l.config.Window)

	removed := 0
	for key, b := range l.buckets {
		l.prune(b, now)
		if len(b.requests) == 0 && b.lastCheck.Before(staleBefore) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}
