// Package metrics exposes the Prometheus collectors for the registry core:
// HTTP traffic, store mutations, storage failures, broadcast fan-out, and
// query execution timing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request counter
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP request duration histogram
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// Store mutations committed against the local collections
	StoreMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_mutations_total",
			Help: "Total number of committed store mutations",
		},
		[]string{"table", "action"},
	)

	// Durable-storage write failures per collection
	StorageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_storage_failures_total",
			Help: "Total number of durable-storage write failures",
		},
		[]string{"table"},
	)

	// Broadcast channel traffic
	BroadcastEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_events_total",
			Help: "Total number of broadcast channel events",
		},
		[]string{"direction"}, // "published", "received", "dropped"
	)

	// Query executor timing
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "query_execution_duration_seconds",
			Help:    "Duration of query executions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordHTTPRequest records metrics for an HTTP request.
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)

	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordMutation records one committed store mutation.
func RecordMutation(table, action string) {
	StoreMutationsTotal.WithLabelValues(table, action).Inc()
}

// RecordStorageFailure records a failed durable write for a collection.
func RecordStorageFailure(table string) {
	StorageFailuresTotal.WithLabelValues(table).Inc()
}

// RecordBroadcast records broadcast channel traffic in the given direction.
func RecordBroadcast(direction string) {
	BroadcastEventsTotal.WithLabelValues(direction).Inc()
}

// RecordQuery records one query execution.
func RecordQuery(duration time.Duration) {
	QueryDuration.Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments every request with the HTTP counters above.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
