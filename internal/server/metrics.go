package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by logical endpoint name rather than
// raw URL path.
const labelHandler = "handler"

// serverMetrics holds the Prometheus collectors owned by the HTTP server.
// Built per Server so tests can pass an isolated registry.
type serverMetrics struct {
	// playlistRequestsTotal counts finished POST /api/playlist requests by
	// outcome: "ok", "rejected", "timeout" or "error".
	playlistRequestsTotal *prometheus.CounterVec

	// activeRuns is the number of pipeline runs currently in flight.
	activeRuns prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests by method, handler and code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records request latency by method and handler.
	httpDurationSeconds *prometheus.HistogramVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		playlistRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toonify",
			Subsystem: "playlist",
			Name:      "requests_total",
			Help:      "Total number of /api/playlist requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "toonify",
			Subsystem: "playlist",
			Name:      "active_runs",
			Help:      "Number of pipeline runs currently in flight.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toonify",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toonify",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   []float64{0.01, 0.05, 0.25, 1, 5, 15, 30, 60, 120, 180},
		}, []string{"method", labelHandler}),
	}
}

// instrument records request count and latency for the named handler.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}
		start := time.Now()
		next.ServeHTTP(rw, r)
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
	})
}
