package middleware

import (
	"net/http"
	"time"

	"github.com/ayo6706/kenyabank/internal/observability"
	"github.com/go-chi/chi/v5"
)

// unobserved paths are polled by infrastructure, not users.
var unobserved = map[string]struct{}{
	"/metrics":      {},
	"/health/live":  {},
	"/health/ready": {},
}

// MetricsMiddleware records request durations by route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, skip := unobserved[r.URL.Path]; skip {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		observability.ObserveHTTP(r.Method, routePattern(r), rw.status, time.Since(start))
	})
}

// routePattern keeps label cardinality bounded: unmatched paths share one label.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
