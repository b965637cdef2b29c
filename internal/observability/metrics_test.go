package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

func TestRecordEvent(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordEvent("task:stalled", "processed")
	m.RecordEvent("task:stalled", "processed")
	m.RecordEvent("task:created", "skipped")

	expected := `
		# HELP taskpilot_agent_events_total Total number of agent events by name and result
		# TYPE taskpilot_agent_events_total counter
		taskpilot_agent_events_total{event="task:created",result="skipped"} 1
		taskpilot_agent_events_total{event="task:stalled",result="processed"} 2
	`
	if err := testutil.CollectAndCompare(m.EventCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestRecordLLMRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordLLMRequest("anthropic", "claude-sonnet-4", "success", 1.25, 350, 120)
	m.RecordLLMRequest("anthropic", "claude-sonnet-4", "error", 0.5, 0, 0)

	if count := testutil.CollectAndCount(m.LLMRequestCounter); count != 2 {
		t.Errorf("Expected 2 request counter series, got %d", count)
	}

	expectedTokens := `
		# HELP taskpilot_llm_tokens_total Total number of tokens used by provider, model, and type
		# TYPE taskpilot_llm_tokens_total counter
		taskpilot_llm_tokens_total{model="claude-sonnet-4",provider="anthropic",type="completion"} 120
		taskpilot_llm_tokens_total{model="claude-sonnet-4",provider="anthropic",type="prompt"} 350
	`
	if err := testutil.CollectAndCompare(m.LLMTokensUsed, strings.NewReader(expectedTokens)); err != nil {
		t.Errorf("Unexpected token metric value: %v", err)
	}

	// Zero token counts must not create series.
	if count := testutil.CollectAndCount(m.LLMTokensUsed); count != 2 {
		t.Errorf("Expected 2 token series, got %d", count)
	}
}

func TestRecordDecision(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordDecision("renewal", "executed", 2.0)
	m.RecordDecision("renewal", "no_action", 1.0)
	m.RecordDecision("renewal", "executed", 3.0)

	expected := `
		# HELP taskpilot_decisions_total Total number of agent decisions by task type and outcome
		# TYPE taskpilot_decisions_total counter
		taskpilot_decisions_total{outcome="executed",task_type="renewal"} 2
		taskpilot_decisions_total{outcome="no_action",task_type="renewal"} 1
	`
	if err := testutil.CollectAndCompare(m.DecisionCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestRecordActionExecution(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordActionExecution("ASSIGN_PIPELINE", "success", 0.1)
	m.RecordActionExecution("ESCALATE", "error", 0.2)

	expected := `
		# HELP taskpilot_action_executions_total Total number of action executions by action and status
		# TYPE taskpilot_action_executions_total counter
		taskpilot_action_executions_total{action="ASSIGN_PIPELINE",status="success"} 1
		taskpilot_action_executions_total{action="ESCALATE",status="error"} 1
	`
	if err := testutil.CollectAndCompare(m.ActionCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestRecordError(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordError("llm", "rate_limit")
	m.RecordError("llm", "rate_limit")
	m.RecordError("agent", "panic")

	expected := `
		# HELP taskpilot_errors_total Total number of errors by component and error type
		# TYPE taskpilot_errors_total counter
		taskpilot_errors_total{component="agent",error_type="panic"} 1
		taskpilot_errors_total{component="llm",error_type="rate_limit"} 2
	`
	if err := testutil.CollectAndCompare(m.ErrorCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestActiveAgentsGauge(t *testing.T) {
	m := newTestMetrics(t)

	m.AgentStarted("renewal")
	m.AgentStarted("renewal")
	m.AgentStopped("renewal")

	value := testutil.ToFloat64(m.ActiveAgents.WithLabelValues("renewal"))
	if value != 1 {
		t.Errorf("ActiveAgents = %v, want 1", value)
	}
}

func TestRecordRateLimited(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRateLimited("decision_window")
	m.RecordRateLimited("decision_window")
	m.RecordRateLimited("model_window")

	expected := `
		# HELP taskpilot_rate_limited_total Total number of rate limiter saturations by limiter
		# TYPE taskpilot_rate_limited_total counter
		taskpilot_rate_limited_total{limiter="decision_window"} 2
		taskpilot_rate_limited_total{limiter="model_window"} 1
	`
	if err := testutil.CollectAndCompare(m.RateLimitedCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestRecordLLMRetry(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordLLMRetry("anthropic")
	m.RecordLLMRetry("anthropic")
	m.RecordLLMRetry("openai")

	expected := `
		# HELP taskpilot_llm_retries_total Total number of retried model request attempts by provider
		# TYPE taskpilot_llm_retries_total counter
		taskpilot_llm_retries_total{provider="anthropic"} 2
		taskpilot_llm_retries_total{provider="openai"} 1
	`
	if err := testutil.CollectAndCompare(m.LLMRetryCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestObserveRateLimitWait(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveRateLimitWait("model_window", 0.05)
	m.ObserveRateLimitWait("model_window", 1.5)

	if count := testutil.CollectAndCount(m.RateLimitWait); count != 1 {
		t.Errorf("Expected 1 wait histogram series, got %d", count)
	}
}
