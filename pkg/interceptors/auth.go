package interceptors

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"broker/pkg/auth"
	"broker/pkg/logger"
)

// AuthInterceptor проверяет bearer-токен и кладёт claims в контекст.
// Процедуры из public вызываются без токена; если токен всё же передан
// и валиден, claims тоже попадают в контекст.
func AuthInterceptor(tokens *auth.Manager, public []string) connect.UnaryInterceptorFunc {
	publicSet := make(map[string]bool, len(public))
	for _, p := range public {
		publicSet[p] = true
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure

			raw, err := auth.ParseBearer(req.Header().Get("Authorization"))
			if err != nil {
				if publicSet[procedure] && errors.Is(err, auth.ErrMissingToken) {
					return next(ctx, req)
				}
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			claims, err := tokens.Validate(raw)
			if err != nil {
				logger.FromContext(ctx).Warn("Token validation failed", "procedure", procedure, "error", err)
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			return next(auth.WithClaims(ctx, claims), req)
		}
	}
}
