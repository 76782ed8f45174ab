package interceptors

import (
	"context"
	"time"

	"connectrpc.com/connect"

	"broker/pkg/metrics"
)

// MetricsInterceptor записывает метрики запросов
func MetricsInterceptor(m *metrics.Metrics) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()

			resp, err := next(ctx, req)

			code := "ok"
			if err != nil {
				code = connect.CodeOf(err).String()
			}
			m.RecordRequest(procedure, code, time.Since(start))

			return resp, err
		}
	}
}
