package interceptors

import (
	"context"
	"fmt"
	"runtime/debug"

	"connectrpc.com/connect"

	"broker/pkg/auth"
	"broker/pkg/logger"
	"broker/pkg/metrics"
	"broker/pkg/ratelimit"
	"broker/pkg/telemetry"
)

// ServerConfig конфигурация серверных интерсепторов
type ServerConfig struct {
	EnableTracing bool
	Metrics       *metrics.Metrics

	RateLimiter  ratelimit.Limiter
	KeyExtractor ratelimit.KeyExtractor

	// Tokens nil отключает проверку токенов
	Tokens           *auth.Manager
	PublicProcedures []string
}

// UnaryServerInterceptors возвращает интерсепторы в порядке выполнения
func UnaryServerInterceptors(cfg *ServerConfig) []connect.Interceptor {
	interceptors := []connect.Interceptor{
		RecoveryInterceptor(),
	}

	// Tracing
	if cfg.EnableTracing {
		interceptors = append(interceptors, telemetry.UnaryInterceptor())
	}

	// Logging (кладёт request id в контекст для остальных)
	interceptors = append(interceptors, LoggingInterceptor())

	// Metrics
	if cfg.Metrics != nil {
		interceptors = append(interceptors, MetricsInterceptor(cfg.Metrics))
	}

	// Auth до rate limiting, чтобы лимитировать по субъекту
	if cfg.Tokens != nil {
		interceptors = append(interceptors, AuthInterceptor(cfg.Tokens, cfg.PublicProcedures))
	}

	// Rate Limiting
	if cfg.RateLimiter != nil {
		interceptors = append(interceptors, RateLimitInterceptor(cfg.RateLimiter, cfg.KeyExtractor, cfg.Metrics))
	}

	// Validation
	interceptors = append(interceptors, ValidationInterceptor())

	return interceptors
}

// RecoveryInterceptor превращает панику обработчика в CodeInternal
func RecoveryInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.FromContext(ctx).Error("Panic recovered",
						"procedure", req.Spec().Procedure,
						"panic", r,
						"stack", string(debug.Stack()),
					)
					resp = nil
					err = connect.NewError(connect.CodeInternal, fmt.Errorf("internal error"))
				}
			}()
			return next(ctx, req)
		}
	}
}
