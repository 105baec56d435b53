// Package errors defines the sentinel errors of the system and an AppError
// wrapper that carries an HTTP status for the serving layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTranscriptUnavailable marks a video whose captions are disabled,
	// missing, or empty after normalization. Non-fatal per video.
	ErrTranscriptUnavailable = errors.New("transcript unavailable")
	// ErrChunkNotFound is returned by point lookups for unknown chunk ids.
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrVideoNotFound is returned when a video has no persisted segments.
	ErrVideoNotFound = errors.New("video not found")
	// ErrStoreUnavailable wraps persistence failures after the retry budget
	// is exhausted.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidChunkConfig marks a non-positive window or step. This is a
	// construction-time programming error and must not be retried.
	ErrInvalidChunkConfig = errors.New("invalid chunking configuration")
	// ErrInvalidInput marks malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)

// AppError attaches a human-readable message and an HTTP status to a
// sentinel error.
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

// New wraps a sentinel with a status code and message.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Newf wraps a sentinel with a status code and a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the status the serving layer should emit.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrChunkNotFound), errors.Is(err, ErrVideoNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTranscriptUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidChunkConfig):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
