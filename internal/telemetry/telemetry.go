package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "autofix"

// Metrics holds the counters and histograms the orchestrator records
// against as bundles move through the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	bundlesTotal      *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	retriesTotal      *prometheus.CounterVec
	budgetUtilization *prometheus.GaugeVec
	activeBundles     prometheus.Gauge
}

// New creates a Metrics instance registered against its own registry, so
// tests can create independent instances without a global collision.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		bundlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundles_total",
			Help:      "Total number of bundles processed, by terminal status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of pipeline attempt retries, by bundle policy.",
		}, []string{"policy"}),
		budgetUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_utilization_ratio",
			Help:      "Fraction of the configured spend cap consumed, by scope (bundle or session).",
		}, []string{"scope"}),
		activeBundles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_bundles",
			Help:      "Number of bundles currently occupying a worktree lease.",
		}),
	}

	registry.MustRegister(m.bundlesTotal, m.stageDuration, m.retriesTotal, m.budgetUtilization, m.activeBundles)
	return m
}

// RecordBundleResult increments the terminal-status counter for a bundle.
func (m *Metrics) RecordBundleResult(status string) {
	m.bundlesTotal.WithLabelValues(status).Inc()
}

// RecordStageDuration records how long a pipeline stage took to run.
func (m *Metrics) RecordStageDuration(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRetry increments the retry counter for a bundle's grouping policy.
func (m *Metrics) RecordRetry(policy string) {
	m.retriesTotal.WithLabelValues(policy).Inc()
}

// SetBudgetUtilization records the current bundle or session spend ratio.
func (m *Metrics) SetBudgetUtilization(scope string, ratio float64) {
	m.budgetUtilization.WithLabelValues(scope).Set(ratio)
}

// SetActiveBundles records the current worktree lease occupancy.
func (m *Metrics) SetActiveBundles(n int) {
	m.activeBundles.Set(float64(n))
}

// Registry returns the underlying Prometheus registry, for mounting a
// /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
