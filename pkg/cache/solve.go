package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"broker/pkg/broker"
)

// SolveCache кэш результатов broker.Solve по хешу задачи
type SolveCache struct {
	cache      Cache
	defaultTTL time.Duration
}

// CachedSolveResult кэшированный результат
type CachedSolveResult struct {
	Result     *broker.Result `json:"result"`
	ComputedAt time.Time      `json:"computed_at"`
}

// NewSolveCache создаёт кэш результатов
func NewSolveCache(c Cache, defaultTTL time.Duration) *SolveCache {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &SolveCache{
		cache:      c,
		defaultTTL: defaultTTL,
	}
}

// Get возвращает результат и признак попадания
func (sc *SolveCache) Get(ctx context.Context, p *broker.Problem) (*CachedSolveResult, bool, error) {
	key := BuildSolveKey(ProblemHash(p))

	data, err := sc.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var cached CachedSolveResult
	if err := json.Unmarshal(data, &cached); err != nil || cached.Result == nil {
		// повреждённая запись, удаляем
		_ = sc.cache.Delete(ctx, key) //nolint:errcheck // best effort cleanup
		return nil, false, nil
	}

	return &cached, true, nil
}

// Set сохраняет результат; ttl <= 0 - значение по умолчанию
func (sc *SolveCache) Set(ctx context.Context, p *broker.Problem, result *broker.Result, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = sc.defaultTTL
	}

	data, err := json.Marshal(CachedSolveResult{
		Result:     result,
		ComputedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return sc.cache.Set(ctx, BuildSolveKey(ProblemHash(p)), data, ttl)
}

// Invalidate удаляет результат для задачи
func (sc *SolveCache) Invalidate(ctx context.Context, p *broker.Problem) error {
	return sc.cache.Delete(ctx, BuildSolveKey(ProblemHash(p)))
}

// InvalidateAll удаляет все результаты решения
func (sc *SolveCache) InvalidateAll(ctx context.Context) (int64, error) {
	return sc.cache.DeleteByPattern(ctx, "solve:*")
}

// Stats статистика нижележащего кэша
func (sc *SolveCache) Stats(ctx context.Context) (*Stats, error) {
	return sc.cache.Stats(ctx)
}
