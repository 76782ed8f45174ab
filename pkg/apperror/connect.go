package apperror

import (
	"errors"

	"connectrpc.com/connect"
	"google.golang.org/grpc/codes"
)

// ToConnect converts an error into a *connect.Error. Connect codes share the
// gRPC numbering, so the gRPC mapping is reused. The application code and
// field travel in response metadata.
func ToConnect(err error) error {
	if err == nil {
		return nil
	}

	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	appErr, ok := As(err)
	if !ok {
		return connect.NewError(connect.CodeInternal, err)
	}

	ce := connect.NewError(connect.Code(appErr.GRPCCode()), errors.New(appErr.Message))
	ce.Meta().Set("X-Error-Code", string(appErr.Code))
	if appErr.Field != "" {
		ce.Meta().Set("X-Error-Field", appErr.Field)
	}
	return ce
}

// FromConnect converts a Connect error returned by a client call back into
// an *Error, restoring the application code when the server sent one.
func FromConnect(err error) *Error {
	if err == nil {
		return nil
	}

	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return Wrap(err, CodeInternal, err.Error())
	}

	code := FromGRPCCode(codes.Code(connectErr.Code()))
	if raw := connectErr.Meta().Get("X-Error-Code"); raw != "" {
		code = ErrorCode(raw)
	}

	appErr := New(code, connectErr.Message())
	appErr.Field = connectErr.Meta().Get("X-Error-Field")
	appErr.Cause = err
	return appErr
}
