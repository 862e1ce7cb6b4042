package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for convergence runs.
type Metrics struct {
	config MetricsConfig

	runsCompleted  *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	actionsApplied *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// A disabled configuration returns a no-op instance.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	registry := prometheus.NewRegistry()
	namespace := cfg.Namespace

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of convergence runs completed",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of convergence runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		actionsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total number of actions executed by status",
			},
			[]string{"action", "status"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of individual actions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
	}

	registry.MustRegister(
		m.runsCompleted,
		m.runDuration,
		m.actionsApplied,
		m.actionDuration,
	)

	return m
}

// ObserveRun records the outcome and duration of a completed run.
func (m *Metrics) ObserveRun(outcome string, d time.Duration) {
	if m.registry == nil {
		return
	}
	m.runsCompleted.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveAction records the status and duration of a single action.
func (m *Metrics) ObserveAction(action, status string, d time.Duration) {
	if m.registry == nil {
		return
	}
	m.actionsApplied.WithLabelValues(action, status).Inc()
	m.actionDuration.WithLabelValues(action).Observe(d.Seconds())
}

// Handler returns an HTTP handler serving the metrics endpoint, or nil
// when metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes the metrics endpoint on the configured listen address.
// Used by long-lived menu sessions; one-shot subcommands skip it.
func (m *Metrics) Serve() error {
	if m.registry == nil || m.config.ListenAddress == "" {
		return nil
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return http.ListenAndServe(m.config.ListenAddress, mux)
}
