package middleware

import (
	"net/http"
	"time"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/metrics"
)

// Metrics records request counts and latency by matched route pattern.
// Unmatched requests are grouped under "unmatched".
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrap(w)

			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequest(route, r.Method, rw.statusCode, time.Since(start))
		})
	}
}
