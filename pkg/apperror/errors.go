// Package apperror provides structured application errors for the broker
// service: a stable code, a severity and optional field/details. Errors map
// onto gRPC status codes, which in turn map onto Connect codes used by the
// HTTP API.
package apperror

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents a specific application error code.
type ErrorCode string

const (
	// Problem shape and input
	CodeShapeMismatch   ErrorCode = "SHAPE_MISMATCH"
	CodeNonNumericInput ErrorCode = "NON_NUMERIC_INPUT"
	CodeNegativeValue   ErrorCode = "NEGATIVE_VALUE"
	CodeIncompleteData  ErrorCode = "INCOMPLETE_DATA"
	CodeEmptyProblem    ErrorCode = "EMPTY_PROBLEM"
	CodeProblemTooLarge ErrorCode = "PROBLEM_TOO_LARGE"
	CodeZeroVolume      ErrorCode = "ZERO_VOLUME"
	CodeValueOverflow   ErrorCode = "VALUE_OVERFLOW"

	// Solving
	CodeSolveFailed ErrorCode = "SOLVE_FAILED"
	CodeTimeout     ErrorCode = "TIMEOUT"
	CodeCanceled    ErrorCode = "CANCELED"

	// Reports
	CodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	CodeReportFailed      ErrorCode = "REPORT_FAILED"

	// General
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"
	CodeUnauthenticated   ErrorCode = "UNAUTHENTICATED"
	CodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	CodeRateLimited       ErrorCode = "RATE_LIMITED"
	CodeUnavailable       ErrorCode = "UNAVAILABLE"
	CodeNilInput          ErrorCode = "NIL_INPUT"
	CodeInvalidPagination ErrorCode = "INVALID_PAGINATION"
	CodeUnimplemented     ErrorCode = "UNIMPLEMENTED"
)

// Severity defines the criticality level of an error.
type Severity int

const (
	// SeverityWarning indicates a non-critical issue that does not block solving.
	SeverityWarning Severity = iota
	// SeverityError indicates a standard error that requires attention.
	SeverityError
	// SeverityCritical indicates a severe error.
	SeverityCritical
)

// String returns the string representation of the Severity.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Error is the application error type.
type Error struct {
	Code     ErrorCode      // Code is a stable identifier for the error kind.
	Message  string         // Message is a human-readable description.
	Field    string         // Field points at the offending input, e.g. "transport_costs[1]".
	Details  map[string]any // Details carries structured context.
	Cause    error          // Cause is the wrapped error, if any.
	Severity Severity       // Severity of the error.
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// GRPCStatus converts the error into a gRPC status.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Message)
}

// GRPCCode maps the ErrorCode onto a gRPC code.
func (e *Error) GRPCCode() codes.Code {
	switch e.Code {
	case CodeShapeMismatch, CodeNonNumericInput, CodeNegativeValue, CodeIncompleteData,
		CodeEmptyProblem, CodeZeroVolume, CodeValueOverflow, CodeInvalidArgument, CodeNilInput,
		CodeInvalidPagination, CodeUnsupportedFormat:
		return codes.InvalidArgument

	case CodeProblemTooLarge, CodeRateLimited:
		return codes.ResourceExhausted

	case CodeNotFound:
		return codes.NotFound

	case CodeTimeout:
		return codes.DeadlineExceeded

	case CodeCanceled:
		return codes.Canceled

	case CodeUnauthenticated:
		return codes.Unauthenticated

	case CodePermissionDenied:
		return codes.PermissionDenied

	case CodeUnavailable:
		return codes.Unavailable

	case CodeUnimplemented:
		return codes.Unimplemented

	default:
		return codes.Internal
	}
}

// New creates an error with SeverityError.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Details:  make(map[string]any),
		Severity: SeverityError,
	}
}

// Newf is New with a format string.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// NewWithField creates an error bound to an input field.
func NewWithField(code ErrorCode, message, field string) *Error {
	return New(code, message).WithField(field)
}

// NewWarning creates an error with SeverityWarning.
func NewWarning(code ErrorCode, message string) *Error {
	return New(code, message).WithSeverity(SeverityWarning)
}

// Wrap creates an error that wraps cause.
func Wrap(cause error, code ErrorCode, message string) *Error {
	e := New(code, message)
	e.Cause = cause
	return e
}

// WithDetails adds a key-value pair to the details map.
func (e *Error) WithDetails(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithField sets the offending field.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithSeverity sets the severity level.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

// Is reports whether err is an *Error with the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// As returns the first *Error in the chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// Code extracts the ErrorCode from err, CodeInternal if err is not an *Error.
func Code(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// ToGRPC converts any error into a gRPC status error.
func ToGRPC(err error) error {
	if err == nil {
		return nil
	}

	if appErr, ok := As(err); ok {
		return appErr.GRPCStatus().Err()
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	return status.Error(codes.Internal, err.Error())
}

// FromGRPCCode maps a gRPC code back onto the closest ErrorCode.
func FromGRPCCode(c codes.Code) ErrorCode {
	switch c {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.NotFound:
		return CodeNotFound
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCanceled
	case codes.Unauthenticated:
		return CodeUnauthenticated
	case codes.PermissionDenied:
		return CodePermissionDenied
	case codes.ResourceExhausted:
		return CodeRateLimited
	case codes.Unavailable:
		return CodeUnavailable
	case codes.Unimplemented:
		return CodeUnimplemented
	default:
		return CodeInternal
	}
}

// FromGRPC converts a gRPC error into an *Error.
func FromGRPC(err error) *Error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return New(CodeInternal, err.Error())
	}

	return New(FromGRPCCode(st.Code()), st.Message())
}

// IsWarning reports whether err is an *Error with SeverityWarning.
func IsWarning(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Severity == SeverityWarning
}

// Predefined errors.
var (
	ErrNilProblem   = New(CodeNilInput, "problem is nil")
	ErrEmptyProblem = New(CodeEmptyProblem, "problem has no suppliers or customers")
	ErrNotFound     = New(CodeNotFound, "calculation not found")
	ErrTimeout      = New(CodeTimeout, "operation timed out")
)

// ValidationErrors collects errors and warnings from a validation pass.
type ValidationErrors struct {
	Errors   []*Error
	Warnings []*Error
}

// NewValidationErrors creates an empty collection.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors:   make([]*Error, 0),
		Warnings: make([]*Error, 0),
	}
}

// Add appends err to Errors or Warnings according to its severity.
func (v *ValidationErrors) Add(err *Error) {
	if err.Severity == SeverityWarning {
		v.Warnings = append(v.Warnings, err)
	} else {
		v.Errors = append(v.Errors, err)
	}
}

// AddError appends a new error.
func (v *ValidationErrors) AddError(code ErrorCode, message string) {
	v.Errors = append(v.Errors, New(code, message))
}

// AddWarning appends a new warning.
func (v *ValidationErrors) AddWarning(code ErrorCode, message string) {
	v.Warnings = append(v.Warnings, NewWarning(code, message))
}

// AddErrorWithField appends a new error bound to a field.
func (v *ValidationErrors) AddErrorWithField(code ErrorCode, message, field string) {
	v.Errors = append(v.Errors, NewWithField(code, message, field))
}

// HasErrors reports whether any error was collected.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// HasWarnings reports whether any warning was collected.
func (v *ValidationErrors) HasWarnings() bool {
	return len(v.Warnings) > 0
}

// IsValid reports whether no errors were collected. Warnings are ignored.
func (v *ValidationErrors) IsValid() bool {
	return !v.HasErrors()
}

// Merge appends everything from other.
func (v *ValidationErrors) Merge(other *ValidationErrors) {
	if other == nil {
		return
	}
	v.Errors = append(v.Errors, other.Errors...)
	v.Warnings = append(v.Warnings, other.Warnings...)
}

// ErrorMessages returns the formatted errors.
func (v *ValidationErrors) ErrorMessages() []string {
	messages := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		messages[i] = err.Error()
	}
	return messages
}

// WarningMessages returns the warning messages.
func (v *ValidationErrors) WarningMessages() []string {
	messages := make([]string, len(v.Warnings))
	for i, warn := range v.Warnings {
		messages[i] = warn.Message
	}
	return messages
}

// Err folds the collection into a single error, nil when valid. The code of
// the first collected error is kept; all messages are joined.
func (v *ValidationErrors) Err() error {
	if !v.HasErrors() {
		return nil
	}
	first := v.Errors[0]
	e := New(first.Code, strings.Join(v.ErrorMessages(), "; ")).WithField(first.Field)
	e.WithDetails("errors", len(v.Errors))
	return e
}
