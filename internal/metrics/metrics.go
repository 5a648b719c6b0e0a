// Package metrics exposes docserve's Prometheus collectors. Collectors live
// on their own registry so tests and multiple servers do not collide.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docserve"

// Build outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	buildsTotal    *prometheus.CounterVec
	buildDuration  *prometheus.HistogramVec
	reloadsTotal   prometheus.Counter
	sseSubscribers prometheus.Gauge
	wsSubscribers  prometheus.Gauge
	changesTotal   *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		buildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Total number of renderer builds by rebuild mode and outcome",
		}, []string{"mode", "outcome"}),

		buildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Renderer build duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode"}),

		reloadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Total number of reload notifications broadcast",
		}),

		sseSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_subscribers",
			Help:      "Number of connected SSE reload streams",
		}),

		wsSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_subscribers",
			Help:      "Number of connected websocket reload streams",
		}),

		changesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Total number of file changes accepted by the watcher",
		}, []string{"kind"}),
	}
}

// ObserveBuild records one renderer call.
func (m *Metrics) ObserveBuild(mode string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.buildsTotal.WithLabelValues(mode, outcome).Inc()
	m.buildDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// Reloaded records a reload broadcast.
func (m *Metrics) Reloaded() {
	if m == nil {
		return
	}
	m.reloadsTotal.Inc()
}

// Changed records a change accepted by the watcher.
func (m *Metrics) Changed(kind string) {
	if m == nil {
		return
	}
	m.changesTotal.WithLabelValues(kind).Inc()
}

// SSEConnected tracks an SSE stream; call the returned func on disconnect.
func (m *Metrics) SSEConnected() func() {
	if m == nil {
		return func() {}
	}
	m.sseSubscribers.Inc()
	return m.sseSubscribers.Dec
}

// WSConnected tracks a websocket stream; call the returned func on
// disconnect.
func (m *Metrics) WSConnected() func() {
	if m == nil {
		return func() {}
	}
	m.wsSubscribers.Inc()
	return m.wsSubscribers.Dec
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
