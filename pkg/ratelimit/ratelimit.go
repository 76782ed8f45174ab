// Package ratelimit ограничивает частоту запросов к API по ключу клиента.
package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"broker/pkg/config"
)

// Стандартные ошибки
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrLimiterClosed     = errors.New("limiter is closed")
)

// Стратегии
const (
	StrategySlidingWindow = "sliding_window"
	StrategyTokenBucket   = "token_bucket"
)

// Limiter интерфейс ограничителя запросов
type Limiter interface {
	// Allow проверяет, разрешён ли запрос
	Allow(ctx context.Context, key string) (bool, error)

	// AllowN проверяет, разрешены ли n запросов (SolveBatch расходует по одному на задачу)
	AllowN(ctx context.Context, key string, n int) (bool, error)

	// Wait блокирует до получения разрешения
	Wait(ctx context.Context, key string) error

	// Reset сбрасывает лимит для ключа
	Reset(ctx context.Context, key string) error

	// GetInfo возвращает информацию о текущем состоянии
	GetInfo(ctx context.Context, key string) (*LimitInfo, error)

	Close() error
}

// LimitInfo информация о состоянии лимита
type LimitInfo struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Config конфигурация rate limiter
type Config struct {
	Requests int
	Window   time.Duration

	// Strategy sliding_window или token_bucket, только для memory
	Strategy string

	// BurstSize запас сверх Requests для token bucket
	BurstSize int

	// Backend memory или redis
	Backend string

	CleanupInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Requests:        120,
		Window:          time.Minute,
		Strategy:        StrategySlidingWindow,
		Backend:         "memory",
		CleanupInterval: 5 * time.Minute,
		KeyPrefix:       "broker:ratelimit:",
	}
}

// FromConfig переводит секцию rate_limit в конфигурацию лимитера
func FromConfig(cfg config.RateLimitConfig) *Config {
	c := DefaultConfig()
	if cfg.Requests > 0 {
		c.Requests = cfg.Requests
	}
	if cfg.Window > 0 {
		c.Window = cfg.Window
	}
	if cfg.Backend != "" {
		c.Backend = cfg.Backend
	}
	if cfg.CleanupInterval > 0 {
		c.CleanupInterval = cfg.CleanupInterval
	}
	c.RedisAddr = cfg.RedisAddr
	return c
}

// New создаёт лимитер на основе конфигурации
func New(cfg *Config) (Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case "redis":
		return NewRedisLimiter(cfg)
	default:
		return NewMemoryLimiter(cfg), nil
	}
}

// KeyExtractor вычисляет ключ лимита для вызова процедуры
type KeyExtractor func(ctx context.Context, procedure string, peer string, header http.Header) string

// IPKeyExtractor ключ по адресу клиента, с учётом прокси
func IPKeyExtractor(_ context.Context, _ string, peer string, header http.Header) string {
	if fwd := header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(peer); err == nil {
		return host
	}
	if peer != "" {
		return peer
	}
	return "unknown"
}

// ProcedureKeyExtractor ключ по имени процедуры
func ProcedureKeyExtractor(_ context.Context, procedure string, _ string, _ http.Header) string {
	return procedure
}

// SubjectKeyExtractor ключ по субъекту токена, для анонимных вызовов по IP
func SubjectKeyExtractor(subject func(context.Context) string) KeyExtractor {
	return func(ctx context.Context, procedure, peer string, header http.Header) string {
		if s := subject(ctx); s != "" {
			return "sub:" + s
		}
		return IPKeyExtractor(ctx, procedure, peer, header)
	}
}

// CompositeKeyExtractor комбинирует несколько ключей
func CompositeKeyExtractor(extractors ...KeyExtractor) KeyExtractor {
	return func(ctx context.Context, procedure, peer string, header http.Header) string {
		parts := make([]string, 0, len(extractors))
		for _, ext := range extractors {
			parts = append(parts, ext(ctx, procedure, peer, header))
		}
		return strings.Join(parts, ":")
	}
}

// wait общий цикл Wait: ждём RetryAfter, но не меньше minPoll
func wait(ctx context.Context, l Limiter, key string) error {
	const minPoll = 10 * time.Millisecond

	for {
		allowed, err := l.Allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		delay := 100 * time.Millisecond
		if info, err := l.GetInfo(ctx, key); err == nil && info.RetryAfter > 0 {
			delay = max(info.RetryAfter, minPoll)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
