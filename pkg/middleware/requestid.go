package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kontext/clipsearch/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID returns middleware that ensures every request carries a request
// id, propagated through the context and echoed in the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
