package errors

import "errors"

// Domain errors. The realtime path is deliberately fail-silent (dropped
// actions produce no error events), so this taxonomy only surfaces through
// the HTTP endpoints and adapter boundaries.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrMaterialNotFound = errors.New("material not found")
	ErrMissingEventData = errors.New("event data is required")
	ErrUnknownEvent     = errors.New("unknown event name")
)

// AppError wraps errors with additional context for HTTP responses.
type AppError struct {
	Err        error
	Message    string
	Code       string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewBadRequestError(err error, message string) *AppError {
	return &AppError{Err: err, Message: message, Code: "BAD_REQUEST", StatusCode: 400}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Err: ErrUnauthorized, Message: message, Code: "UNAUTHORIZED", StatusCode: 401}
}

func NewInternalError(err error) *AppError {
	return &AppError{Err: err, Message: "An unexpected error occurred", Code: "INTERNAL_ERROR", StatusCode: 500}
}
