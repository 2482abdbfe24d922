package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects graph execution metrics.
//
// Metrics exposed (namespace "agentgraph"):
//
//	inflight_nodes       gauge      nodes currently executing
//	frontier_size        gauge      width of the most recent superstep
//	step_latency_ms      histogram  node duration {graph, node_id, status}
//	retries_total        counter    retry attempts {graph, node_id, reason}
//	runs_total           counter    finished runs {graph, status}
//	interrupts_total     counter    human-in-the-loop pauses {graph, node_id}
//	llm_tokens_total     counter    tokens reported by model adapters {model, direction}
//
// Labels use the graph name rather than run IDs to keep cardinality bounded.
type PrometheusMetrics struct {
	inflightNodes prometheus.Gauge
	frontierSize  prometheus.Gauge
	stepLatency   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	runs          *prometheus.CounterVec
	interrupts    *prometheus.CounterVec
	tokens        *prometheus.CounterVec

	mu       sync.RWMutex
	inflight int
	enabled  bool
}

// NewPrometheusMetrics creates and registers all graph execution metrics with
// the provided registry. A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	pm := &PrometheusMetrics{enabled: true}

	pm.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentgraph",
		Name:      "inflight_nodes",
		Help:      "Current number of nodes executing concurrently",
	})
	pm.frontierSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentgraph",
		Name:      "frontier_size",
		Help:      "Number of nodes scheduled in the most recent superstep",
	})
	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentgraph",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 30000, 120000},
	}, []string{"graph", "node_id", "status"})
	pm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgraph",
		Name:      "retries_total",
		Help:      "Cumulative count of node retry attempts",
	}, []string{"graph", "node_id", "reason"})
	pm.runs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgraph",
		Name:      "runs_total",
		Help:      "Finished graph runs by outcome",
	}, []string{"graph", "status"})
	pm.interrupts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgraph",
		Name:      "interrupts_total",
		Help:      "Runs paused for human input",
	}, []string{"graph", "node_id"})
	pm.tokens = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgraph",
		Name:      "llm_tokens_total",
		Help:      "LLM tokens consumed",
	}, []string{"model", "direction"})

	return pm
}

func (pm *PrometheusMetrics) isEnabled() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordStepLatency records the execution duration of a node.
// status is one of "success", "error", "timeout", "interrupted".
func (pm *PrometheusMetrics) RecordStepLatency(graphName, nodeID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.stepLatency.WithLabelValues(graphName, nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries increments the retry counter for a node.
func (pm *PrometheusMetrics) IncrementRetries(graphName, nodeID, reason string) {
	if !pm.isEnabled() {
		return
	}
	pm.retries.WithLabelValues(graphName, nodeID, reason).Inc()
}

// RecordRun counts a finished run ("completed", "interrupted", "failed").
func (pm *PrometheusMetrics) RecordRun(graphName, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.runs.WithLabelValues(graphName, status).Inc()
}

// RecordInterrupt counts a pause requested by a node.
func (pm *PrometheusMetrics) RecordInterrupt(graphName, nodeID string) {
	if !pm.isEnabled() {
		return
	}
	pm.interrupts.WithLabelValues(graphName, nodeID).Inc()
}

// RecordTokens adds token usage reported by a model adapter.
func (pm *PrometheusMetrics) RecordTokens(model string, input, output int) {
	if !pm.isEnabled() {
		return
	}
	pm.tokens.WithLabelValues(model, "input").Add(float64(input))
	pm.tokens.WithLabelValues(model, "output").Add(float64(output))
}

// UpdateFrontierSize sets the width of the superstep about to run.
func (pm *PrometheusMetrics) UpdateFrontierSize(n int) {
	if !pm.isEnabled() {
		return
	}
	pm.frontierSize.Set(float64(n))
}

func (pm *PrometheusMetrics) nodeStarted() {
	if !pm.isEnabled() {
		return
	}
	pm.mu.Lock()
	pm.inflight++
	pm.inflightNodes.Set(float64(pm.inflight))
	pm.mu.Unlock()
}

func (pm *PrometheusMetrics) nodeFinished() {
	if !pm.isEnabled() {
		return
	}
	pm.mu.Lock()
	if pm.inflight > 0 {
		pm.inflight--
	}
	pm.inflightNodes.Set(float64(pm.inflight))
	pm.mu.Unlock()
}

// Disable temporarily disables metric recording.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
