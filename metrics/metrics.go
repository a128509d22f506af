// Package metrics provides Prometheus observability for claim processing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the orchestration loop and its tools. All methods are safe
// on a nil receiver so metrics stay optional in tests.
type Metrics struct {
	// Tool call latencies by tool name and status
	ToolLatency *prometheus.HistogramVec

	// Decision outcomes by decision label
	DecisionOutcome *prometheus.CounterVec

	// Reasoning iterations consumed per claim run
	LoopIterations prometheus.Histogram

	// Full claim processing latency by final status
	ProcessLatency *prometheus.HistogramVec

	// Guardrails findings by detection type
	Detections *prometheus.CounterVec
}

// New registers and returns the claim processing metrics.
func New() *Metrics {
	return &Metrics{
		ToolLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claimflow_tool_duration_seconds",
			Help:    "Duration of tool invocations by tool and status",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"tool", "status"}),

		DecisionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "claimflow_decisions_total",
			Help: "Total synthesized decisions by outcome",
		}, []string{"decision"}),

		LoopIterations: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimflow_loop_iterations",
			Help:    "Reasoning iterations consumed per claim run",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}),

		ProcessLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claimflow_process_duration_seconds",
			Help:    "Duration of full claim processing by final status",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"status"}),

		Detections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "claimflow_guardrails_detections_total",
			Help: "Total guardrails findings by detection type",
		}, []string{"type"}),
	}
}

// ObserveTool records one tool invocation.
func (m *Metrics) ObserveTool(tool, status string, d time.Duration) {
	if m != nil {
		m.ToolLatency.WithLabelValues(tool, status).Observe(d.Seconds())
	}
}

// IncrementDecision records a synthesized decision outcome.
func (m *Metrics) IncrementDecision(decision string) {
	if m != nil {
		m.DecisionOutcome.WithLabelValues(decision).Inc()
	}
}

// ObserveIterations records the iterations a claim run consumed.
func (m *Metrics) ObserveIterations(n int) {
	if m != nil {
		m.LoopIterations.Observe(float64(n))
	}
}

// ObserveProcess records the full processing duration for a claim.
func (m *Metrics) ObserveProcess(status string, d time.Duration) {
	if m != nil {
		m.ProcessLatency.WithLabelValues(status).Observe(d.Seconds())
	}
}

// IncrementDetection records one guardrails finding.
func (m *Metrics) IncrementDetection(detectionType string) {
	if m != nil {
		m.Detections.WithLabelValues(detectionType).Inc()
	}
}
