package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// Pipeline operation outcomes.
const (
	outcomeOK            = "ok"
	outcomeBadInput      = "bad_input"
	outcomeUpstreamError = "upstream_error"
	outcomeTimeout       = "timeout"
	outcomeCanceled      = "canceled"
	outcomeError         = "error"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// operationsTotal counts completed pipeline operations (upload, ask,
	// analyze), partitioned by operation and outcome.
	operationsTotal *prometheus.CounterVec

	// operationDurationSeconds records the wall-clock duration of each
	// pipeline operation.
	operationDurationSeconds *prometheus.HistogramVec

	// chunksIngestedTotal counts chunks written to the vector index by uploads.
	chunksIngestedTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// rateLimitedTotal counts requests rejected by the per-IP limiter.
	rateLimitedTotal prometheus.Counter
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) registers into the provided
// registry rather than the global default.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		operationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragbot",
			Subsystem: "pipeline",
			Name:      "operations_total",
			Help:      "Total number of pipeline operations completed, partitioned by operation and outcome.",
		}, []string{"operation", "outcome"}),

		operationDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragbot",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of pipeline operations.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation", "outcome"}),

		chunksIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragbot",
			Subsystem: "pipeline",
			Name:      "chunks_ingested_total",
			Help:      "Total number of chunks written to the vector index by uploads.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragbot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragbot",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		rateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragbot",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected with 429 by the per-IP rate limiter.",
		}),
	}
}

// observeOperation records one pipeline operation.
func (m *serverMetrics) observeOperation(operation, outcome string, elapsed time.Duration) {
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationDurationSeconds.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}

// instrument wraps h so every request is counted and timed under handler.
func (s *Server) instrument(handler string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h(rw, r)
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}
