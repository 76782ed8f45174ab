package client

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"
)

// RetryPolicy экспоненциальный backoff: Backoff, 2*Backoff, ... не больше MaxBackoff
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Backoff << attempt
	if d <= 0 || (p.MaxBackoff > 0 && d > p.MaxBackoff) {
		return p.MaxBackoff
	}
	return d
}

// Retryable true для временных ошибок: сервер недоступен или клиент
// упёрся в rate limit. PROBLEM_TOO_LARGE тоже ResourceExhausted, но не повторяется.
func Retryable(err error) bool {
	var ce *connect.Error
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Code() {
	case connect.CodeUnavailable:
		return true
	case connect.CodeResourceExhausted:
		return ce.Meta().Get("X-Error-Code") == "RATE_LIMITED"
	default:
		return false
	}
}

// RetryInterceptor повторяет unary вызовы с временными ошибками
func RetryInterceptor(p RetryPolicy) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			for attempt := 0; ; attempt++ {
				resp, err := next(ctx, req)
				if err == nil || attempt >= p.MaxRetries || !Retryable(err) {
					return resp, err
				}

				timer := time.NewTimer(p.delay(attempt))
				select {
				case <-ctx.Done():
					timer.Stop()
					code := connect.CodeCanceled
					if errors.Is(ctx.Err(), context.DeadlineExceeded) {
						code = connect.CodeDeadlineExceeded
					}
					return nil, connect.NewError(code, ctx.Err())
				case <-timer.C:
				}
			}
		}
	}
}

// BearerInterceptor добавляет токен в заголовок Authorization
func BearerInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		if token == "" {
			return next
		}
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set("Authorization", "Bearer "+token)
			return next(ctx, req)
		}
	}
}
