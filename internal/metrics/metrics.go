// Package metrics exposes service counters for Prometheus scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcomes.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
	LoginLocked  = "locked"
	LoginUnknown = "unknown_user"
)

// Metrics holds the collectors of one server instance. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	loginsTotal       *prometheus.CounterVec
	lockoutsTotal     prometheus.Counter
	rateLimitedTotal  prometheus.Counter
	eventsPublished   prometheus.Counter
	eventsDropped     prometheus.Counter
	subscribers       prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphpaste_operations_total",
				Help: "GraphQL operations executed",
			},
			[]string{"type", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graphpaste_operation_duration_seconds",
				Help:    "GraphQL operation latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"type"},
		),
		loginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphpaste_login_attempts_total",
				Help: "Authenticate calls by outcome",
			},
			[]string{"result"},
		),
		lockoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphpaste_account_lockouts_total",
			Help: "Accounts locked after repeated failures",
		}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphpaste_rate_limited_total",
			Help: "Requests rejected by the per-user rate limit",
		}),
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphpaste_events_published_total",
			Help: "Paste events published to subscribers",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphpaste_events_dropped_total",
			Help: "Paste events dropped because a subscriber buffer was full",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "graphpaste_subscribers",
			Help: "Active pasteCreated subscriptions",
		}),
	}
	m.registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.loginsTotal,
		m.lockoutsTotal,
		m.rateLimitedTotal,
		m.eventsPublished,
		m.eventsDropped,
		m.subscribers,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOperation records one executed operation.
func (m *Metrics) ObserveOperation(opType string, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.operationsTotal.WithLabelValues(opType, outcome).Inc()
	m.operationDuration.WithLabelValues(opType).Observe(elapsed.Seconds())
}

// Login records an authenticate outcome.
func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.loginsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.lockoutsTotal.Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimitedTotal.Inc()
}

// Published records one broadcast paste event.
func (m *Metrics) Published() {
	if m == nil {
		return
	}
	m.eventsPublished.Inc()
}

func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// Subscribers sets the number of live subscriptions.
func (m *Metrics) Subscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}
