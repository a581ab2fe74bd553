// Package monitoring - metrics.go exports Prometheus counters.
//
// DESIGN: Counters are registered on a caller-supplied registry so tests and
// embedders never touch the global default registry:
//   - upstream_requests_total:   Upstream calls by provider and outcome
//   - upstream_duration_seconds: Upstream call latency by provider
//   - quirk_applications_total:  Quirk hits by quirk id and phase
//   - capability_filter_total:   Allow-list decisions by result
//   - usage_tokens_total:        Normalized usage by provider and meter
//   - trace_entries_total:       Debug trace entries by stage and action
//
// A nil *Metrics is valid and records nothing.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsNamespace prefixes every metric name.
const MetricsNamespace = "dialect_gateway"

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests  *prometheus.CounterVec
	upstreamDuration  *prometheus.HistogramVec
	quirkApplications *prometheus.CounterVec
	capabilityFilter  *prometheus.CounterVec
	usageTokens       *prometheus.CounterVec
	traceEntries      *prometheus.CounterVec
}

// NewMetrics creates and registers the gateway metrics. A nil registry gets
// a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of upstream provider calls",
			},
			[]string{"provider", "outcome"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Name:      "upstream_duration_seconds",
				Help:      "Duration of upstream provider calls in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"provider"},
		),
		quirkApplications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "quirk_applications_total",
				Help:      "Total number of provider quirk applications",
			},
			[]string{"quirk", "phase"},
		),
		capabilityFilter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "capability_filter_total",
				Help:      "Capability allow-list decisions by result",
			},
			[]string{"result"},
		),
		usageTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "usage_tokens_total",
				Help:      "Normalized usage reported by providers",
			},
			[]string{"provider", "meter"},
		),
		traceEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "trace_entries_total",
				Help:      "Debug trace entries recorded",
			},
			[]string{"stage", "action"},
		),
	}

	registry.MustRegister(
		m.upstreamRequests,
		m.upstreamDuration,
		m.quirkApplications,
		m.capabilityFilter,
		m.usageTokens,
		m.traceEntries,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RecordUpstream records one upstream call.
func (m *Metrics) RecordUpstream(provider string, outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(provider, string(outcome)).Inc()
	m.upstreamDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordQuirks records quirk applications for a phase.
func (m *Metrics) RecordQuirks(phase Phase, ids ...string) {
	if m == nil {
		return
	}
	for _, id := range ids {
		m.quirkApplications.WithLabelValues(id, string(phase)).Inc()
	}
}

// RecordFilter records one capability filter decision.
func (m *Metrics) RecordFilter(result string) {
	if m == nil {
		return
	}
	m.capabilityFilter.WithLabelValues(result).Inc()
}

// RecordUsage adds every non-zero meter to the token counters.
func (m *Metrics) RecordUsage(provider string, meters map[string]int64) {
	if m == nil {
		return
	}
	for meter, v := range meters {
		if v > 0 {
			m.usageTokens.WithLabelValues(provider, meter).Add(float64(v))
		}
	}
}

// RecordTraceEntry records one debug trace entry.
func (m *Metrics) RecordTraceEntry(stage, action string) {
	if m == nil {
		return
	}
	m.traceEntries.WithLabelValues(stage, action).Inc()
}
