package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tutoring-api/internal/metrics"
)

// Metrics records request count and latency labelled by the matched route
// pattern, so path parameters do not explode label cardinality.
func Metrics(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				path = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			code := strconv.Itoa(status)
			metrics.RequestCounter.WithLabelValues(service, r.Method, path, code).Inc()
			metrics.RequestDuration.WithLabelValues(service, r.Method, path, code).Observe(time.Since(start).Seconds())
		})
	}
}
