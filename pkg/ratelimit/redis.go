package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript атомарно чистит окно, считает и добавляет запросы.
// Возвращает {allowed, remaining}.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local count = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

	local current = redis.call('ZCARD', key)
	if current + count <= limit then
		for i = 1, count do
			redis.call('ZADD', key, now, member .. ':' .. i)
		end
		redis.call('PEXPIRE', key, window + 1000)
		return {1, limit - current - count}
	end

	return {0, limit - current}
`)

// RedisLimiter распределённый sliding window на sorted set
type RedisLimiter struct {
	client redis.UniversalClient
	config *Config
	now    func() time.Time
}

// NewRedisLimiter создаёт Redis rate limiter
func NewRedisLimiter(cfg *Config) (*RedisLimiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisLimiterWithClient(client, cfg), nil
}

// NewRedisLimiterWithClient оборачивает готовый клиент, Close закроет и его
func NewRedisLimiterWithClient(client redis.UniversalClient, cfg *Config) *RedisLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &RedisLimiter{client: client, config: cfg, now: time.Now}
}

func (l *RedisLimiter) key(k string) string {
	return l.config.KeyPrefix + k
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *RedisLimiter) AllowN(ctx context.Context, key string, n int) (bool, error) {
	result, err := slidingWindowScript.Run(ctx, l.client, []string{l.key(key)},
		l.config.Requests, l.config.Window.Milliseconds(), l.now().UnixMilli(), n, uuid.NewString()).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis script error: %w", err)
	}
	if len(result) == 0 {
		return false, fmt.Errorf("unexpected empty result from redis script")
	}

	return result[0] == 1, nil
}

func (l *RedisLimiter) Wait(ctx context.Context, key string) error {
	return wait(ctx, l, key)
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.key(key)).Err()
}

func (l *RedisLimiter) GetInfo(ctx context.Context, key string) (*LimitInfo, error) {
	now := l.now()
	windowStart := now.Add(-l.config.Window).UnixMilli()
	redisKey := l.key(key)

	entries, err := l.client.ZRangeByScoreWithScores(ctx, redisKey, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(windowStart, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	info := &LimitInfo{
		Limit:     l.config.Requests,
		Remaining: max(l.config.Requests-len(entries), 0),
		ResetAt:   now.Add(l.config.Window),
	}
	if len(entries) > 0 {
		oldest := time.UnixMilli(int64(entries[0].Score)).Add(l.config.Window)
		info.ResetAt = oldest
		if info.Remaining == 0 {
			info.RetryAfter = oldest.Sub(now)
		}
	}
	return info, nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
