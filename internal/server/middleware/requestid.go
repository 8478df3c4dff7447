package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

// RequestIDKey is the context key holding the request correlation ID.
const RequestIDKey contextKey = "request_id"

// maxClientRequestID caps client-supplied X-Request-ID values so the log
// stream cannot be stuffed with arbitrary payloads.
const maxClientRequestID = 64

// RequestID assigns every request a correlation ID, echoed on the response
// header and attached to the context so the request logger and error
// envelopes line up in the logs. A reasonable client-supplied X-Request-ID is
// honored; an oversized one is replaced.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > maxClientRequestID {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the correlation ID from the context, or "" when the
// middleware did not run.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
