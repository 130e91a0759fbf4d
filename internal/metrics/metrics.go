// Package metrics defines the Prometheus collectors of Alexander Library.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alexander_library"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeDropped = "dropped"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRateLimited     prometheus.Counter

	// Inventory
	InventoryOperations    *prometheus.CounterVec
	InventoryOpDuration    *prometheus.HistogramVec
	BookLockWait           prometheus.Histogram
	BookLockBusy           prometheus.Counter
	VersionConflictRetries *prometheus.CounterVec

	// Notifications
	NotificationsTotal *prometheus.CounterVec
	NotificationQueue  prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),

		HTTPRateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}),

		InventoryOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "operations_total",
			Help:      "Inventory operations by operation and result kind.",
		}, []string{"operation", "result"}),

		InventoryOpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "operation_duration_seconds",
			Help:      "Inventory operation latency including lock wait.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),

		BookLockWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "book_lock_wait_seconds",
			Help:      "Time spent acquiring the per-book lock.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),

		BookLockBusy: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "book_lock_busy_total",
			Help:      "Operations rejected because the per-book lock stayed held.",
		}),

		VersionConflictRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "version_conflict_retries_total",
			Help:      "Units of work retried after losing a version check.",
		}, []string{"operation"}),

		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "messages_total",
			Help:      "Notification messages by kind and outcome.",
		}, []string{"kind", "outcome"}),

		NotificationQueue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "queue_depth",
			Help:      "Messages waiting for a delivery worker.",
		}),
	}
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// RecordRateLimited counts a rejected request.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.HTTPRateLimited.Inc()
}

// RecordInventoryOp records the result of one coordinator operation.
func (m *Metrics) RecordInventoryOp(operation, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.InventoryOperations.WithLabelValues(operation, result).Inc()
	m.InventoryOpDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordLockWait records how long a per-book lock acquisition took.
func (m *Metrics) RecordLockWait(d time.Duration, acquired bool) {
	if m == nil {
		return
	}
	m.BookLockWait.Observe(d.Seconds())
	if !acquired {
		m.BookLockBusy.Inc()
	}
}

// RecordConflictRetry counts a retry after a lost version check.
func (m *Metrics) RecordConflictRetry(operation string) {
	if m == nil {
		return
	}
	m.VersionConflictRetries.WithLabelValues(operation).Inc()
}

// RecordNotification counts a notification outcome.
func (m *Metrics) RecordNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// SetNotificationQueueDepth sets the pending message gauge.
func (m *Metrics) SetNotificationQueueDepth(n int) {
	if m == nil {
		return
	}
	m.NotificationQueue.Set(float64(n))
}
