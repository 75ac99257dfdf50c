// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// chatRequestsTotal counts completed /api/chat requests, partitioned by
	// outcome: "ok", "timeout", or "error".
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of each /api/chat
	// request, including retrieval and the model call.
	chatDurationSeconds *prometheus.HistogramVec

	// documentsIngestedTotal counts successfully indexed uploaded documents.
	documentsIngestedTotal prometheus.Counter

	// chunksIndexedTotal counts chunks added to the vector store via uploads.
	chunksIndexedTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragbot",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /api/chat requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragbot",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/chat requests including retrieval and the model call.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		documentsIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragbot",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of uploaded documents successfully indexed.",
		}),

		chunksIndexedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragbot",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of chunks added to the vector store via uploads.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragbot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", "handler", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragbot",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "handler"}),
	}
}

// httpMetrics is an http.Handler middleware that records request counts and
// latencies for every route, labelled by the logical handler name.
func (s *Server) httpMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		handler := handlerLabel(r.URL.Path)

		start := time.Now()
		next.ServeHTTP(rw, r)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}

// handlerLabel maps a request path to the logical endpoint name used as the
// "handler" metric label, so raw paths never become label values.
func handlerLabel(path string) string {
	switch path {
	case "/api/chat":
		return "chat"
	case "/api/documents":
		return "documents"
	case "/api/reset":
		return "reset"
	case "/api/status":
		return "status"
	case "/api/history":
		return "history"
	case "/api/health":
		return "health"
	case "/api/ready":
		return "ready"
	case "/metrics":
		return "metrics"
	default:
		return "other"
	}
}
