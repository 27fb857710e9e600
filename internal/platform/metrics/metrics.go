package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	AuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Audit log entries written, by event type and outcome.",
		},
		[]string{"event_type", "success"},
	)

	TokenOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_operations_total",
			Help: "Token store operations, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	HealthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_health_checks_total",
			Help: "Token health probe results.",
		},
		[]string{"result"},
	)

	RetentionDeletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_deletions_total",
			Help: "Rows deleted by retention passes, by data class.",
		},
		[]string{"data_class"},
	)
)

func Init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		AuditEventsTotal,
		TokenOperationsTotal,
		HealthChecksTotal,
		RetentionDeletionsTotal,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument records request counts and latencies for an HTTP handler.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		status := strconv.Itoa(sw.code)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}
