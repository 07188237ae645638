// Package errors maps Scriptura failures onto HTTP responses. Code wraps one
// of the sentinels below, optionally inside an AppError that carries the
// caller-facing message and status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkNotFound       = errors.New("work not found")
	ErrWorkExists         = errors.New("work already exists")
	ErrIndexUnavailable   = errors.New("index unavailable")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNoSentences        = errors.New("no sentences found in query")
	ErrUnsupportedMedia   = errors.New("unsupported file type")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrEmbedding          = errors.New("embedding failed")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
)

// sentinels lists every public failure with its default status. Order
// matters only when an error wraps more than one.
var sentinels = []struct {
	err    error
	status int
}{
	{ErrWorkNotFound, http.StatusNotFound},
	{ErrWorkExists, http.StatusConflict},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrUnsupportedMedia, http.StatusBadRequest},
	{ErrNoSentences, http.StatusUnprocessableEntity},
	{ErrRateLimited, http.StatusTooManyRequests},
	{ErrTimeout, http.StatusServiceUnavailable},
	{ErrIndexUnavailable, http.StatusServiceUnavailable},
	{ErrCatalogUnavailable, http.StatusServiceUnavailable},
	{ErrEmbedding, http.StatusServiceUnavailable},
}

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

func match(err error) (error, int) {
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.err, s.status
		}
	}
	return ErrInternal, http.StatusInternalServerError
}

// Message returns the caller-facing text of err. Internal details never leak:
// without an AppError message only the sentinel text is returned.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	sentinel, _ := match(err)
	return sentinel.Error()
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	_, status := match(err)
	return status
}
