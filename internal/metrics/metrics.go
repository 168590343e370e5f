// Package metrics exposes Prometheus counters for pipeline runs.
//
// Every method is safe to call on a nil *Metrics, so code paths that run
// without an endpoint need no guards.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Child kinds used as label values.
const (
	KindWorker  = "worker"
	KindCommand = "command"
)

// Metrics holds the collectors for one orchestrator process.
type Metrics struct {
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	childrenTotal  *prometheus.CounterVec
	childrenActive prometheus.Gauge
	childExits     *prometheus.CounterVec
	childrenKilled prometheus.Counter
	pipesCreated   prometheus.Counter

	registry *prometheus.Registry
}

// New creates the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipewright_runs_total",
				Help: "Pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipewright_run_duration_seconds",
				Help:    "Wall-clock duration of pipeline runs",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
			},
		),
		childrenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipewright_children_spawned_total",
				Help: "Child processes started, by kind",
			},
			[]string{"kind"},
		),
		childrenActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipewright_children_active",
				Help: "Child processes started and not yet reaped",
			},
		),
		childExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipewright_child_exits_total",
				Help: "Reaped child processes by exit status (ok, failed, signalled)",
			},
			[]string{"status"},
		),
		childrenKilled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipewright_children_killed_total",
				Help: "Child process groups signalled during failure teardown",
			},
		),
		pipesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipewright_pipes_created_total",
				Help: "Named pipes created",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.childrenTotal,
		m.childrenActive,
		m.childExits,
		m.childrenKilled,
		m.pipesCreated,
	)
	return m
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// ChildStarted records a spawned child.
func (m *Metrics) ChildStarted(kind string) {
	if m == nil {
		return
	}
	m.childrenTotal.WithLabelValues(kind).Inc()
	m.childrenActive.Inc()
}

// ChildExited records a reaped child.
func (m *Metrics) ChildExited(status string) {
	if m == nil {
		return
	}
	m.childrenActive.Dec()
	m.childExits.WithLabelValues(status).Inc()
}

// ChildKilled records a child signalled on the failure path.
func (m *Metrics) ChildKilled() {
	if m == nil {
		return
	}
	m.childrenKilled.Inc()
}

// PipeCreated records a new named pipe.
func (m *Metrics) PipeCreated() {
	if m == nil {
		return
	}
	m.pipesCreated.Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
