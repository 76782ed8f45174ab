package interceptors

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"broker/pkg/apperror"
	"broker/pkg/logger"
)

// RequestIDHeader заголовок с идентификатором запроса
const RequestIDHeader = "X-Request-Id"

// LoggingInterceptor логирует запросы и кладёт логгер с request id в контекст
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			requestID := req.Header().Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			log := logger.WithRequestID(requestID)
			ctx = logger.IntoContext(ctx, log)

			start := time.Now()
			procedure := req.Spec().Procedure

			resp, err := next(ctx, req)

			duration := time.Since(start)

			fields := []any{
				"procedure", procedure,
				"peer", req.Peer().Addr,
				"duration_ms", duration.Milliseconds(),
			}
			if err != nil {
				fields = append(fields,
					"code", connect.CodeOf(err).String(),
					"error_code", string(errorCode(err)),
					"error", err.Error(),
				)
				if connect.CodeOf(err) == connect.CodeInternal || connect.CodeOf(err) == connect.CodeUnknown {
					log.Error("Request failed", fields...)
				} else {
					log.Warn("Request rejected", fields...)
				}
				return nil, err
			}

			resp.Header().Set(RequestIDHeader, requestID)
			log.Info("Request completed", fields...)
			return resp, nil
		}
	}
}

func errorCode(err error) apperror.ErrorCode {
	var ce *connect.Error
	if errors.As(err, &ce) {
		if raw := ce.Meta().Get("X-Error-Code"); raw != "" {
			return apperror.ErrorCode(raw)
		}
	}
	return apperror.Code(err)
}
