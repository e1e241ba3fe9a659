// Package requesttime pins one clock reading per request so every timestamp
// an operation writes agrees, and expiry checks use the same instant.
package requesttime

import (
	"net/http"
	"time"

	"homeledger/pkg/requestcontext"
)

// Postgres keeps microseconds; truncating up front means a value read back
// compares equal to the one the request wrote.
const precision = time.Microsecond

// Middleware stamps the request with the current UTC time.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock is Middleware with an injectable clock.
func WithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := clock().UTC().Truncate(precision)
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), now)))
		})
	}
}
