package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorWrapsSentinel(t *testing.T) {
	err := New(ErrInvalidInput, http.StatusBadRequest, "empty query")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("errors.Is should see through AppError, got %v", err)
	}
	if got := err.Error(); got != "invalid input: empty query" {
		t.Errorf("Error() = %q", got)
	}

	errf := Newf(ErrInvalidInput, http.StatusBadRequest, "query %q has no searchable terms", "!!!")
	if !errors.Is(errf, ErrInvalidInput) {
		t.Errorf("errors.Is should see through Newf, got %v", errf)
	}
	if got := errf.Message; got != `query "!!!" has no searchable terms` {
		t.Errorf("Message = %q", got)
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{New(ErrInvalidInput, http.StatusBadRequest, "empty query"), http.StatusBadRequest},
		{ErrChunkNotFound, http.StatusNotFound},
		{ErrVideoNotFound, http.StatusNotFound},
		{ErrTranscriptUnavailable, http.StatusUnprocessableEntity},
		{ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("persisting chunks: %w: %w", ErrStoreUnavailable, errors.New("connection reset")), http.StatusServiceUnavailable},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatusCode(tt.err); got != tt.want {
			t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
