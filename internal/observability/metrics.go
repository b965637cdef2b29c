package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Event flow through the agent (processed, skipped, dropped)
//   - Model request performance, token consumption, and response times
//   - Decision outcomes and end-to-end decision latency
//   - Action execution patterns and latencies
//   - Error rates categorized by type and component
//   - Active agent counts
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordEvent("task:stalled", "processed")
//	metrics.RecordLLMRequest("anthropic", "claude-sonnet-4", "success", 1.2, 350, 120)
type Metrics struct {
	// EventCounter tracks agent events by name and result.
	// Labels: event, result (processed|skipped|dropped|error)
	EventCounter *prometheus.CounterVec

	// LLMRequestDuration measures model API call latency in seconds.
	// Labels: provider, model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts model requests by provider and model.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// DecisionCounter counts decisions by task type and outcome.
	// Labels: task_type, outcome (executed|failed|no_action|rejected|fallback)
	DecisionCounter *prometheus.CounterVec

	// DecisionDuration measures end-to-end decision handling in seconds.
	// Labels: task_type
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s
	DecisionDuration *prometheus.HistogramVec

	// ActionCounter counts executed actions.
	// Labels: action, status (success|error)
	ActionCounter *prometheus.CounterVec

	// ActionDuration measures action execution time in seconds.
	// Labels: action
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ActionDuration *prometheus.HistogramVec

	// LLMRetryCounter counts retried model request attempts.
	// Labels: provider
	LLMRetryCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by type and component.
	// Labels: component (agent|llm|decision|executor|store), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveAgents is a gauge tracking currently running agents.
	// Labels: task_type
	ActiveAgents *prometheus.GaugeVec

	// RateLimitedCounter counts rate limiter saturation by limiter.
	// Labels: limiter (model_window|decision_window)
	RateLimitedCounter *prometheus.CounterVec

	// RateLimitWait measures time spent blocked on the model request window.
	// Labels: limiter
	// Buckets: 1ms, 10ms, 100ms, 500ms, 1s, 5s, 15s, 60s
	RateLimitWait *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with the default
// Prometheus registry. This should be called once at application startup.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates all metrics against the given registerer.
// Tests use this to avoid default-registry collisions.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskpilot_agent_events_total",
				Help: "Total number of agent events by name and result",
			},
			[]string{"event", "result"},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskpilot_llm_request_duration_seconds",
				Help:    "Duration of model API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskpilot_llm_requests_total",
				Help: "Total number of model requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskpilot_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		DecisionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskpilot_decisions_total",
				Help: "Total number of agent decisions by task type and outcome",
			},
			[]string{"task_type", "outcome"},
		),

		DecisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskpilot_decision_duration_seconds",
				Help:    "End-to-end duration of decision handling in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"task_type"},
		),

		ActionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskpilot_action_executions_total",
				Help: "Total number of action executions by action and status",
			},
			[]string{"action", "status"},
		),

		ActionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskpilot_action_execution_duration_seconds",
				Help:    "Duration of action executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"action"},
		),

		LLMRetryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskpilot_llm_retries_total",
				Help: "Total number of retried model request attempts by provider",
			},
			[]string{"provider"},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskpilot_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveAgents: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "taskpilot_active_agents",
				Help: "Current number of running agents by task type",
			},
			[]string{"task_type"},
		),

		RateLimitedCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskpilot_rate_limited_total",
				Help: "Total number of rate limiter saturations by limiter",
			},
			[]string{"limiter"},
		),

		RateLimitWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskpilot_rate_limit_wait_seconds",
				Help:    "Time spent waiting for a rate limit window in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"limiter"},
		),
	}
}

// RecordEvent increments the event counter for a given event name and result.
//
// Example:
//
//	metrics.RecordEvent("task:stalled", "processed")
func (m *Metrics) RecordEvent(event, result string) {
	m.EventCounter.WithLabelValues(event, result).Inc()
}

// RecordLLMRequest records metrics for a model API request.
//
// Example:
//
//	start := time.Now()
//	// ... make model request ...
//	metrics.RecordLLMRequest("anthropic", "claude-sonnet-4", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordDecision records a decision outcome and its end-to-end latency.
//
// Example:
//
//	metrics.RecordDecision("renewal", "executed", time.Since(start).Seconds())
func (m *Metrics) RecordDecision(taskType, outcome string, durationSeconds float64) {
	m.DecisionCounter.WithLabelValues(taskType, outcome).Inc()
	m.DecisionDuration.WithLabelValues(taskType).Observe(durationSeconds)
}

// RecordActionExecution records metrics for one executed action.
//
// Example:
//
//	metrics.RecordActionExecution("ASSIGN_PIPELINE", "success", time.Since(start).Seconds())
func (m *Metrics) RecordActionExecution(action, status string, durationSeconds float64) {
	m.ActionCounter.WithLabelValues(action, status).Inc()
	m.ActionDuration.WithLabelValues(action).Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and error
// type.
//
// Example:
//
//	metrics.RecordError("llm", "rate_limit")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// AgentStarted increments the active agents gauge.
func (m *Metrics) AgentStarted(taskType string) {
	m.ActiveAgents.WithLabelValues(taskType).Inc()
}

// AgentStopped decrements the active agents gauge.
func (m *Metrics) AgentStopped(taskType string) {
	m.ActiveAgents.WithLabelValues(taskType).Dec()
}

// RecordLLMRetry counts one retried model request attempt.
func (m *Metrics) RecordLLMRetry(provider string) {
	m.LLMRetryCounter.WithLabelValues(provider).Inc()
}

// RecordRateLimited counts one saturation of the named limiter.
//
// Example:
//
//	metrics.RecordRateLimited("decision_window")
func (m *Metrics) RecordRateLimited(limiter string) {
	m.RateLimitedCounter.WithLabelValues(limiter).Inc()
}

// ObserveRateLimitWait records time spent blocked on the named limiter.
func (m *Metrics) ObserveRateLimitWait(limiter string, seconds float64) {
	m.RateLimitWait.WithLabelValues(limiter).Observe(seconds)
}
