// Package metrics provides the Prometheus instrumentation for the
// pipeline: tool call outcomes, the current phase distribution across
// active sessions, LLM request latency/errors, token usage, and streamed
// response duration. It follows internal/observability/metrics.go's shape
// — a single Registry struct holding the collectors, constructed once and
// passed in, rather than package-level globals recorded from free
// functions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every collector the pipeline records against. One
// Registry is constructed at startup and threaded into the runner and LLM
// clients; nil-safety is the caller's job (runner.Config.Metrics may be
// left nil to disable instrumentation entirely).
type Registry struct {
	// ToolCallCounter counts tool invocations by name and outcome.
	// Labels: tool_name, status (success|error)
	ToolCallCounter *prometheus.CounterVec

	// ToolCallDuration measures tool handler latency in seconds.
	// Labels: tool_name
	ToolCallDuration *prometheus.HistogramVec

	// PhaseSessions gauges how many active runner iterations are
	// currently in each phase. Labels: phase
	PhaseSessions *prometheus.GaugeVec

	// LLMRequestCounter counts LLM requests by model and outcome.
	// Labels: model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM streaming-call latency in seconds,
	// start to Final(). Labels: model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption by model and kind.
	// Labels: model, kind (input|output|cache_creation|cache_read)
	LLMTokensUsed *prometheus.CounterVec

	// LLMErrorCounter counts LLM-layer errors by category (spec.md
	// §4.11's ferrors/llm error categories: rate_limit, overloaded,
	// context_length, content_policy, network, unknown).
	LLMErrorCounter *prometheus.CounterVec

	// StreamDuration measures one full runner turn, request submission to
	// the terminal done event, in seconds.
	StreamDuration *prometheus.HistogramVec
}

// New constructs and registers every collector against the default
// Prometheus registry, mirroring observability.NewMetrics's
// register-on-construct idiom.
func New() *Registry {
	return &Registry{
		ToolCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_tool_calls_total",
				Help: "Total tool invocations by tool name and outcome",
			},
			[]string{"tool_name", "status"},
		),
		ToolCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forge_tool_call_duration_seconds",
				Help:    "Tool handler latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"tool_name"},
		),
		PhaseSessions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forge_phase_active_iterations",
				Help: "Current runner loop iterations executing in each phase",
			},
			[]string{"phase"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_llm_requests_total",
				Help: "Total LLM requests by model and outcome",
			},
			[]string{"model", "status"},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forge_llm_request_duration_seconds",
				Help:    "LLM streaming call duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_llm_tokens_total",
				Help: "Total tokens consumed by model and kind",
			},
			[]string{"model", "kind"},
		),
		LLMErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_llm_errors_total",
				Help: "Total LLM-layer errors by category",
			},
			[]string{"category"},
		),
		StreamDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forge_turn_duration_seconds",
				Help:    "Duration of one runner turn, submission to terminal event",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
	}
}

// RecordToolCall records a tool invocation's outcome and latency.
func (r *Registry) RecordToolCall(toolName, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.ToolCallCounter.WithLabelValues(toolName, status).Inc()
	r.ToolCallDuration.WithLabelValues(toolName).Observe(d.Seconds())
}

// PhaseIterationStarted increments the active-iteration gauge for phase,
// mirroring observability.Metrics.SessionStarted's Inc()-on-entry idiom.
func (r *Registry) PhaseIterationStarted(phase string) {
	if r == nil {
		return
	}
	r.PhaseSessions.WithLabelValues(phase).Inc()
}

// PhaseIterationFinished decrements the active-iteration gauge for phase.
func (r *Registry) PhaseIterationFinished(phase string) {
	if r == nil {
		return
	}
	r.PhaseSessions.WithLabelValues(phase).Dec()
}

// RecordLLMRequest records one LLM request's outcome, duration, and token
// usage. usage may be a zero value when the call errored before a
// response was available.
func (r *Registry) RecordLLMRequest(model, status string, d time.Duration, inputTokens, outputTokens, cacheCreation, cacheRead int) {
	if r == nil {
		return
	}
	r.LLMRequestCounter.WithLabelValues(model, status).Inc()
	r.LLMRequestDuration.WithLabelValues(model).Observe(d.Seconds())
	if inputTokens > 0 {
		r.LLMTokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		r.LLMTokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
	if cacheCreation > 0 {
		r.LLMTokensUsed.WithLabelValues(model, "cache_creation").Add(float64(cacheCreation))
	}
	if cacheRead > 0 {
		r.LLMTokensUsed.WithLabelValues(model, "cache_read").Add(float64(cacheRead))
	}
}

// RecordLLMError increments the error counter for category.
func (r *Registry) RecordLLMError(category string) {
	if r == nil {
		return
	}
	r.LLMErrorCounter.WithLabelValues(category).Inc()
}

// RecordTurn records the duration of one full runner turn.
func (r *Registry) RecordTurn(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.StreamDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
