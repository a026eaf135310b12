// Package metrics holds the Prometheus collectors shared by the event
// distribution core. Every method is safe to call on a nil *Metrics so that
// components can run without instrumentation (tests, embedded use).
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "homebus"

// Metrics groups the collectors for the bus, the thread pools and the
// binding manager.
type Metrics struct {
	eventsPosted      *prometheus.CounterVec
	eventsRejected    *prometheus.CounterVec
	deliveryFailures  *prometheus.CounterVec
	poolSubmitted     *prometheus.CounterVec
	poolWorkers       *prometheus.GaugeVec
	scheduledJobs     *prometheus.GaugeVec
	bindingsActive    prometheus.Gauge
	bindingStatus     *prometheus.CounterVec
	bindingExecutions *prometheus.CounterVec
	configFailures    *prometheus.CounterVec
	httpRequests      *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// the collectors unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsPosted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "events_posted_total",
				Help:      "Events accepted by the event bus",
			},
			[]string{"kind"},
		),
		eventsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "events_rejected_total",
				Help:      "Events rejected at the bus boundary (nil payloads, closed pools)",
			},
			[]string{"kind"},
		),
		deliveryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "delivery_failures_total",
				Help:      "Subscriber callbacks that panicked during delivery",
			},
			[]string{"channel"},
		),
		poolSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "threadpool",
				Name:      "tasks_submitted_total",
				Help:      "Tasks submitted per pool",
			},
			[]string{"pool"},
		),
		poolWorkers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "threadpool",
				Name:      "workers",
				Help:      "Live worker goroutines per pool",
			},
			[]string{"pool"},
		),
		scheduledJobs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "threadpool",
				Name:      "scheduled_jobs",
				Help:      "Active scheduled jobs per pool",
			},
			[]string{"pool"},
		),
		bindingsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "binding",
				Name:      "registered",
				Help:      "Currently registered bindings",
			},
		),
		bindingStatus: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "binding",
				Name:      "status_events_total",
				Help:      "Binding status notifications emitted",
			},
			[]string{"binding", "status"},
		),
		bindingExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "binding",
				Name:      "executions_total",
				Help:      "Periodic binding executions by result (ok, skipped, panic)",
			},
			[]string{"binding", "result"},
		),
		configFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "binding",
				Name:      "config_failures_total",
				Help:      "Rejected binding properties or item configurations",
			},
			[]string{"binding", "kind"},
		),
		httpRequests: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Diagnostics API request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.eventsPosted,
			m.eventsRejected,
			m.deliveryFailures,
			m.poolSubmitted,
			m.poolWorkers,
			m.scheduledJobs,
			m.bindingsActive,
			m.bindingStatus,
			m.bindingExecutions,
			m.configFailures,
			m.httpRequests,
		)
	}
	return m
}

// EventPosted counts an event accepted by the bus.
func (m *Metrics) EventPosted(kind string) {
	if m == nil {
		return
	}
	m.eventsPosted.WithLabelValues(kind).Inc()
}

// EventRejected counts an event refused by the bus.
func (m *Metrics) EventRejected(kind string) {
	if m == nil {
		return
	}
	m.eventsRejected.WithLabelValues(kind).Inc()
}

// DeliveryFailed counts a subscriber panic.
func (m *Metrics) DeliveryFailed(channel string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(channel).Inc()
}

// TaskSubmitted counts a task queued on a pool.
func (m *Metrics) TaskSubmitted(pool string) {
	if m == nil {
		return
	}
	m.poolSubmitted.WithLabelValues(pool).Inc()
}

// WorkersChanged adjusts the live worker gauge of a pool by delta.
func (m *Metrics) WorkersChanged(pool string, delta int) {
	if m == nil {
		return
	}
	m.poolWorkers.WithLabelValues(pool).Add(float64(delta))
}

// JobsChanged adjusts the scheduled job gauge of a pool by delta.
func (m *Metrics) JobsChanged(pool string, delta int) {
	if m == nil {
		return
	}
	m.scheduledJobs.WithLabelValues(pool).Add(float64(delta))
}

// BindingsRegistered sets the registered bindings gauge.
func (m *Metrics) BindingsRegistered(n int) {
	if m == nil {
		return
	}
	m.bindingsActive.Set(float64(n))
}

// BindingStatus counts a binding status notification.
func (m *Metrics) BindingStatus(binding, status string) {
	if m == nil {
		return
	}
	m.bindingStatus.WithLabelValues(binding, status).Inc()
}

// BindingExecuted counts one periodic firing of a binding.
func (m *Metrics) BindingExecuted(binding, result string) {
	if m == nil {
		return
	}
	m.bindingExecutions.WithLabelValues(binding, result).Inc()
}

// ConfigFailed counts a rejected configuration. kind is "properties" or "item".
func (m *Metrics) ConfigFailed(binding, kind string) {
	if m == nil {
		return
	}
	m.configFailures.WithLabelValues(binding, kind).Inc()
}

// HTTPRequest observes one served diagnostics request.
func (m *Metrics) HTTPRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}
