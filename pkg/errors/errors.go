// Package errors defines the sentinel errors shared by the search service and
// maps them onto HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMalformedQuery      = errors.New("malformed query")
	ErrQueryTooLong        = errors.New("query too long")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrUnavailable         = errors.New("dependency unavailable")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
)

// AppError attaches a user-facing message and status code to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode returns the status an HTTP handler should answer with for err.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrMalformedQuery),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnsupportedOperator):
		return http.StatusBadRequest
	case errors.Is(err, ErrQueryTooLong):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
