// Package metrics provides Prometheus metrics for the file store server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mistware_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mistware_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Storage metrics
	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mistware_storage_operation_duration_seconds",
			Help:    "Storage backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mistware_storage_operations_total",
			Help: "Total storage backend operations",
		},
		[]string{"backend", "operation", "status"},
	)

	storageBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mistware_storage_bytes_total",
			Help: "Total bytes moved through the storage contract",
		},
		[]string{"backend", "direction"},
	)

	remoteCopyPolls = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mistware_remote_copy_polls",
			Help:    "Status polls needed per remote server-side copy",
			Buckets: []float64{1, 2, 5, 10, 50, 100, 1000},
		},
	)

	remoteCopiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mistware_remote_copies_total",
			Help: "Remote server-side copies by terminal outcome",
		},
		[]string{"outcome"},
	)

	// Ingest metrics
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mistware_uploads_total",
			Help: "Uploaded file sections by validation status",
		},
		[]string{"status"},
	)

	uploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mistware_upload_bytes_total",
			Help: "Total bytes of accepted uploads",
		},
	)

	// Log retention metrics
	retentionDeletesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mistware_log_retention_deletes_total",
			Help: "Log objects deleted by the retention sweep",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordStorageOperation records a storage backend operation.
func RecordStorageOperation(backend, operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	storageOperationsTotal.WithLabelValues(backend, operation, statusLabel(success)).Inc()
}

// RecordStorageBytes records bytes uploaded to or downloaded from a backend.
// Unknown (negative) sizes and failed transfers are ignored.
func RecordStorageBytes(backend, direction string, bytes int64, success bool) {
	if !success || bytes <= 0 {
		return
	}
	storageBytesTotal.WithLabelValues(backend, direction).Add(float64(bytes))
}

// RecordRemoteCopy records a finished remote copy and how many polls it took.
func RecordRemoteCopy(outcome string, polls int) {
	remoteCopiesTotal.WithLabelValues(outcome).Inc()
	remoteCopyPolls.Observe(float64(polls))
}

// RecordUpload records one validated upload section.
func RecordUpload(status int, bytes int64) {
	uploadsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	if status == 0 {
		uploadBytes.Add(float64(bytes))
	}
}

// RecordRetentionDelete records a log object removed by the retention sweep.
func RecordRetentionDelete() {
	retentionDeletesTotal.Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics. pattern
// maps a request to a low-cardinality path label; nil uses the raw path.
func Middleware(pattern func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			path := r.URL.Path
			if pattern != nil {
				if p := pattern(r); p != "" {
					path = p
				}
			}
			RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
		})
	}
}
