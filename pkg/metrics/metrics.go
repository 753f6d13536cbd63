// Package metrics defines the Prometheus collectors for the lifecycle
// manager. Collectors are registered via promauto at package init and
// exposed through GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// stateTransitions counts lifecycle state transitions.
	// Labels: model, to (stopped, starting, running, stopping, failed)
	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelmgr",
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Total lifecycle state transitions",
	}, []string{"model", "to"})

	// probes counts health probe outcomes.
	// Labels: model, outcome (ok, http_error, transport_error, timeout)
	probes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelmgr",
		Subsystem: "probe",
		Name:      "results_total",
		Help:      "Total health probe results by outcome",
	}, []string{"model", "outcome"})

	// admissions counts memory admission decisions.
	// Labels: decision (allowed, rejected, forced)
	admissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelmgr",
		Subsystem: "memory",
		Name:      "admissions_total",
		Help:      "Total memory admission decisions",
	}, []string{"decision"})

	// chatIterations tracks the distribution of tool-loop round trips
	// per chat request. The loop is capped at 10.
	chatIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "modelmgr",
		Subsystem: "chat",
		Name:      "iterations",
		Help:      "Model round trips per chat request",
		Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	})

	// toolExecutions counts tool dispatches.
	// Labels: tool (web_search or sandbox tool name), status (ok, error)
	toolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelmgr",
		Subsystem: "chat",
		Name:      "tool_executions_total",
		Help:      "Total tool executions by status",
	}, []string{"tool", "status"})

	// toolDuration measures tool execution wall time.
	// Labels: tool
	toolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "modelmgr",
		Subsystem: "chat",
		Name:      "tool_duration_seconds",
		Help:      "Tool execution duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"tool"})

	// parserFallbacks counts chat turns where structured tool_calls were
	// absent and the tagged-text fallback parser found calls instead.
	// Labels: model
	parserFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelmgr",
		Subsystem: "chat",
		Name:      "parser_fallbacks_total",
		Help:      "Total tool calls recovered by the text fallback parser",
	}, []string{"model"})
)

// RecordTransition records one lifecycle state transition.
func RecordTransition(model, to string) {
	stateTransitions.WithLabelValues(model, to).Inc()
}

// RecordProbe records one health probe outcome.
func RecordProbe(model, outcome string) {
	probes.WithLabelValues(model, outcome).Inc()
}

// RecordAdmission records one memory admission decision.
func RecordAdmission(decision string) {
	admissions.WithLabelValues(decision).Inc()
}

// ObserveChatIterations records the round-trip count of one chat request.
func ObserveChatIterations(n int) {
	chatIterations.Observe(float64(n))
}

// RecordToolExecution records one tool dispatch with its duration.
func RecordToolExecution(tool, status string, durationSec float64) {
	toolExecutions.WithLabelValues(tool, status).Inc()
	toolDuration.WithLabelValues(tool).Observe(durationSec)
}

// RecordParserFallback records a chat turn that needed the text parser.
func RecordParserFallback(model string) {
	parserFallbacks.WithLabelValues(model).Inc()
}
