package middlewares

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	appmetrics "github.com/dropDatabas3/dtva/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// WithMetrics instrumenta requests HTTP (contadores, latencia, inflight).
// El label path es el patrón de ruta de chi para no explotar la cardinalidad
// con sids.
func WithMetrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method := strings.ToUpper(r.Method)
			start := time.Now()

			appmetrics.HTTPInflight.WithLabelValues(method, "all").Inc()
			rec := newStatusRecorder(w)
			defer func() {
				appmetrics.HTTPInflight.WithLabelValues(method, "all").Dec()
				path := routePattern(r)
				appmetrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
				appmetrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
