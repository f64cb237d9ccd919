// Package metrics exposes the process-wide Prometheus collectors for the HTTP
// surface and scan I/O. Scan lifecycle counters live in the progress sinks.
package metrics

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	throttleDelaySeconds       *prometheus.HistogramVec
	historyErrorsTotal         *prometheus.CounterVec
	reportsTotal               *prometheus.CounterVec
	streamClients              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		throttleDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sawdisk_throttle_delay_seconds",
				Help:    "Time workers spent waiting on the per-volume read limiter.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"volume"},
		)

		historyErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sawdisk_history_errors_total",
				Help: "History store failures, labeled by operation.",
			},
			[]string{"op"},
		)

		reportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sawdisk_reports_total",
				Help: "Reports produced, labeled by format and result.",
			},
			[]string{"format", "result"},
		)

		streamClients = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sawdisk_stream_clients",
				Help: "Websocket clients currently following scan status.",
			},
		)
	})
}

// SanitizeVolume reduces a scan root to at most its first three path
// elements so label cardinality stays bounded. Empty input yields "unknown".
func SanitizeVolume(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "unknown"
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	parts := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	out := strings.Join(parts, "/")
	if strings.HasPrefix(clean, "/") {
		out = "/" + out
	}
	if out == "" {
		return "unknown"
	}
	return out
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveThrottleDelay records how long a worker waited on the limiter.
func ObserveThrottleDelay(volume string, waited time.Duration) {
	throttleDelaySeconds.WithLabelValues(SanitizeVolume(volume)).Observe(waited.Seconds())
}

// ObserveHistoryError counts a failed history operation.
func ObserveHistoryError(op string) {
	historyErrorsTotal.WithLabelValues(op).Inc()
}

// ObserveReport counts a report attempt.
func ObserveReport(format string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	reportsTotal.WithLabelValues(format, result).Inc()
}

// IncStreamClients increments the stream clients gauge.
func IncStreamClients() {
	streamClients.Inc()
}

// DecStreamClients decrements the stream clients gauge.
func DecStreamClients() {
	streamClients.Dec()
}
