package graph

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects engine metrics for Prometheus.
//
// Metrics exposed (all namespaced with "queryflow_"):
//
//   - node_latency_ms (histogram, labels node_id, status): node execution time.
//   - node_faults_total (counter, label node_id): node errors and panics
//     converted into state by the fault handler.
//   - runs_total (counter, label outcome): finished Run/Resume calls, with
//     outcome terminated, suspended or error.
//   - inflight_runs (gauge): Run/Resume calls currently walking the graph.
//
// Thread ids are deliberately not labels: they are unbounded.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine, _ := graph.New(reducer, st, emitter, graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	nodeLatency  *prometheus.HistogramVec
	nodeFaults   *prometheus.CounterVec
	runs         *prometheus.CounterVec
	inflightRuns prometheus.Gauge

	enabled atomic.Bool
}

// NewPrometheusMetrics creates and registers the engine metrics with registry.
// A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	pm := &PrometheusMetrics{}
	pm.enabled.Store(true)

	pm.nodeLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "queryflow",
		Name:      "node_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
	}, []string{"node_id", "status"})

	pm.nodeFaults = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "queryflow",
		Name:      "node_faults_total",
		Help:      "Node errors and panics converted into workflow state",
	}, []string{"node_id"})

	pm.runs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "queryflow",
		Name:      "runs_total",
		Help:      "Completed Run and Resume calls by outcome",
	}, []string{"outcome"})

	pm.inflightRuns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "queryflow",
		Name:      "inflight_runs",
		Help:      "Run and Resume calls currently executing",
	})

	return pm
}

// RecordNodeLatency observes one node execution. status is "success" or "fault".
func (pm *PrometheusMetrics) RecordNodeLatency(nodeID string, latency time.Duration, status string) {
	if pm == nil || !pm.enabled.Load() {
		return
	}
	pm.nodeLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementNodeFaults counts a fault converted by the fault handler.
func (pm *PrometheusMetrics) IncrementNodeFaults(nodeID string) {
	if pm == nil || !pm.enabled.Load() {
		return
	}
	pm.nodeFaults.WithLabelValues(nodeID).Inc()
}

// RecordRun counts a finished run by outcome.
func (pm *PrometheusMetrics) RecordRun(outcome string) {
	if pm == nil || !pm.enabled.Load() {
		return
	}
	pm.runs.WithLabelValues(outcome).Inc()
}

// The in-flight gauge ignores Disable so it never drifts.
func (pm *PrometheusMetrics) runStarted() {
	if pm == nil {
		return
	}
	pm.inflightRuns.Inc()
}

func (pm *PrometheusMetrics) runFinished() {
	if pm == nil {
		return
	}
	pm.inflightRuns.Dec()
}

// Disable stops recording. Registered series keep their values.
func (pm *PrometheusMetrics) Disable() {
	pm.enabled.Store(false)
}

// Enable resumes recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.enabled.Store(true)
}
