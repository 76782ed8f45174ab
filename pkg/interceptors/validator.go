package interceptors

import (
	"context"

	"connectrpc.com/connect"

	"broker/pkg/apperror"
)

// Validator интерфейс для валидируемых сообщений
type Validator interface {
	Validate() error
}

// ValidationInterceptor валидирует входящие запросы
func ValidationInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			// Проверяем, реализует ли запрос интерфейс Validator
			if v, ok := req.Any().(Validator); ok {
				if err := v.Validate(); err != nil {
					if _, isApp := apperror.As(err); !isApp {
						err = apperror.Wrap(err, apperror.CodeInvalidArgument, "validation error: "+err.Error())
					}
					return nil, apperror.ToConnect(err)
				}
			}

			return next(ctx, req)
		}
	}
}
