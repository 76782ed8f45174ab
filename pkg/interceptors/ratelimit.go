package interceptors

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"connectrpc.com/connect"

	"broker/pkg/logger"
	"broker/pkg/metrics"
	"broker/pkg/ratelimit"
)

// Coster сообщение, расходующее несколько единиц лимита (пакет задач)
type Coster interface {
	RateLimitCost() int
}

// RateLimitInterceptor создаёт интерсептор для rate limiting.
// m может быть nil.
func RateLimitInterceptor(limiter ratelimit.Limiter, keyExtractor ratelimit.KeyExtractor, m *metrics.Metrics) connect.UnaryInterceptorFunc {
	if keyExtractor == nil {
		keyExtractor = ratelimit.IPKeyExtractor
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure
			key := keyExtractor(ctx, procedure, req.Peer().Addr, req.Header())

			cost := 1
			if c, ok := req.Any().(Coster); ok && c.RateLimitCost() > 1 {
				cost = c.RateLimitCost()
			}

			allowed, err := limiter.AllowN(ctx, key, cost)
			if err != nil {
				logger.FromContext(ctx).Warn("Rate limit check failed", "error", err, "key", key)
				// При ошибке пропускаем (fail open)
				return next(ctx, req)
			}

			if !allowed {
				info, infoErr := limiter.GetInfo(ctx, key)
				if infoErr != nil {
					logger.FromContext(ctx).Warn("Failed to get rate limit info", "error", infoErr, "key", key)
					info = &ratelimit.LimitInfo{ResetAt: time.Now().Add(time.Minute), RetryAfter: time.Second}
				}

				logger.FromContext(ctx).Warn("Rate limit exceeded",
					"key", key,
					"procedure", procedure,
					"cost", cost,
					"limit", info.Limit,
				)
				if m != nil {
					m.RecordRateLimited(procedure)
				}

				ce := connect.NewError(connect.CodeResourceExhausted,
					fmt.Errorf("%w: %d requests per window, retry in %v", ratelimit.ErrRateLimitExceeded, info.Limit, info.RetryAfter.Round(time.Millisecond)))
				ce.Meta().Set("X-Error-Code", "RATE_LIMITED")
				ce.Meta().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
				ce.Meta().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
				ce.Meta().Set("X-RateLimit-Reset", info.ResetAt.UTC().Format(time.RFC3339))
				ce.Meta().Set("Retry-After", strconv.Itoa(int(info.RetryAfter.Seconds()+0.999)))
				return nil, ce
			}

			return next(ctx, req)
		}
	}
}

// IsRateLimited true для ошибки отклонённого лимитом вызова
func IsRateLimited(err error) bool {
	return connect.CodeOf(err) == connect.CodeResourceExhausted || errors.Is(err, ratelimit.ErrRateLimitExceeded)
}
