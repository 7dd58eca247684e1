package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dupbot/dupbot/internal/metrics"
)

// Metrics records the response time histogram for every request. The route
// pattern is used as the path label so parameterized routes do not explode
// the cardinality.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				path := r.URL.Path
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					if pattern := rctx.RoutePattern(); pattern != "" {
						path = pattern
					}
				}
				m.ObserveAPIResponse(r.Method, path, ww.Status(), time.Since(start))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
