package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns an HTTP middleware that limits requests per IP address
// to the specified number per minute. Uses a sliding window algorithm.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RateLimitByUser returns an HTTP middleware that limits requests per
// authenticated user to the specified number per minute. Unauthenticated
// requests fall back to the remote IP. Must run after Authenticate.
func RateLimitByUser(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if id, ok := GetIdentity(r.Context()); ok {
				return id.UserID, nil
			}
			return httprate.KeyByIP(r)
		}),
	)
}
