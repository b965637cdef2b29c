package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"

	"github.com/haasonsaas/taskpilot/internal/decision"
	"github.com/haasonsaas/taskpilot/internal/events"
	"github.com/haasonsaas/taskpilot/internal/executor"
	"github.com/haasonsaas/taskpilot/internal/llm"
	"github.com/haasonsaas/taskpilot/internal/observability"
	"github.com/haasonsaas/taskpilot/internal/store"
	"github.com/haasonsaas/taskpilot/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testTenant     = "tenant-1"
	testTaskID     = "task-1"
	testTemplateID = "tpl-1"

	assignResponse = `{"intent": "route_task", "confidence": 0.95, "reasoning": "new support task needs a pipeline", "actions": [{"type": "ASSIGN_PIPELINE", "params": {"task_id": "task-1", "pipeline_id": "pipe-urgent"}, "priority": 2}]}`
)

// stubModel satisfies ModelClient with canned responses.
type stubModel struct {
	mu           sync.Mutex
	responses    []string
	err          error
	calls        int
	lastMessages []llm.ChatMessage
}

func (s *stubModel) Complete(ctx context.Context, messages []llm.ChatMessage, opts ...llm.CompletionOptions) (*llm.ModelResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastMessages = messages
	if s.err != nil {
		return nil, s.err
	}
	content := "{}"
	if len(s.responses) > 0 {
		content = s.responses[0]
		if len(s.responses) > 1 {
			s.responses = s.responses[1:]
		}
	}
	return &llm.ModelResponse{
		Content:   content,
		Provider:  "stub",
		Model:     "stub-model",
		Usage:     llm.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
		LatencyMs: 5,
	}, nil
}

func (s *stubModel) ProviderName() string { return "stub" }

func (s *stubModel) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testEnv struct {
	bus       *events.MemoryBus
	tasks     *store.MemoryTaskStore
	templates *store.MemoryTemplateStore
	decisions *store.MemoryDecisionLogStore
	model     *stubModel
	agent     *TaskAgent
}

// newTestEnv seeds one template and one task and builds an agent around the
// given model and executor. Config zero values fall back to defaults except
// the tenant, which is always set.
func newTestEnv(t *testing.T, cfg Config, model *stubModel, exec executor.ActionExecutor) *testEnv {
	t.Helper()

	bus := events.NewMemoryBus()
	tasks := store.NewMemoryTaskStore()
	templates := store.NewMemoryTemplateStore()
	decisions := store.NewMemoryDecisionLogStore()

	now := time.Now()
	if err := templates.PutTemplate(&models.TaskTemplate{
		ID:           testTemplateID,
		TenantID:     testTenant,
		Name:         "Support triage",
		TaskType:     "support",
		SystemPrompt: "You triage support tasks.",
		Pipelines: []models.Pipeline{
			{ID: "pipe-urgent", Name: "Urgent", Description: "same day response"},
			{ID: "pipe-standard", Name: "Standard"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed template: %v", err)
	}
	if err := tasks.PutTask(&models.Task{
		ID:         testTaskID,
		TenantID:   testTenant,
		TemplateID: testTemplateID,
		Title:      "Customer cannot log in",
		Status:     models.TaskStatusNew,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	cfg.TenantID = testTenant
	ag, err := New(cfg, Dependencies{
		Events:    bus,
		Tasks:     tasks,
		Templates: templates,
		Decisions: decisions,
		Model:     model,
		Engine:    decision.NewEngine(decision.DefaultConfig()),
		Executor:  exec,
		Logger:    observability.NewLogger(observability.LogConfig{Output: io.Discard}),
		Metrics:   observability.NewMetricsWithRegistry(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testEnv{
		bus:       bus,
		tasks:     tasks,
		templates: templates,
		decisions: decisions,
		model:     model,
		agent:     ag,
	}
}

func (env *testEnv) start(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := env.agent.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		if err := env.agent.Stop(ctx); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
}

func (env *testEnv) publish(name, taskID string) *models.TaskEvent {
	event := &models.TaskEvent{
		Name:     name,
		TenantID: testTenant,
		TaskID:   taskID,
	}
	env.bus.Publish(context.Background(), event)
	return event
}

func (env *testEnv) taskDecisions(t *testing.T, taskID string) []*models.DecisionLogEntry {
	t.Helper()
	entries, err := env.decisions.RecentDecisions(context.Background(), taskID, 0)
	if err != nil {
		t.Fatalf("RecentDecisions: %v", err)
	}
	return entries
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing tenant", cfg: Config{}, wantErr: "tenant_id"},
		{name: "blank subscription", cfg: Config{TenantID: "t", Subscriptions: []string{" "}}, wantErr: "subscription"},
		{name: "missing dependencies", cfg: Config{TenantID: "t"}, wantErr: "event source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, Dependencies{})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("New error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestAgent_StartStopIdempotent(t *testing.T) {
	env := newTestEnv(t, Config{}, &stubModel{}, executor.NewRecordingExecutor())
	ctx := context.Background()

	if err := env.agent.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := env.bus.SubscriberCount(models.EventTaskCreated); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}
	if err := env.agent.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if got := env.bus.SubscriberCount(models.EventTaskCreated); got != 1 {
		t.Fatalf("SubscriberCount after double Start = %d, want 1", got)
	}
	if !env.agent.Stats().Running {
		t.Fatal("Stats().Running = false after Start")
	}

	if err := env.agent.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := env.bus.SubscriberCount(models.EventTaskCreated); got != 0 {
		t.Fatalf("SubscriberCount after Stop = %d, want 0", got)
	}
	if err := env.agent.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if env.agent.Stats().Running {
		t.Fatal("Stats().Running = true after Stop")
	}
}

func TestAgent_ExecutesDecision(t *testing.T) {
	model := &stubModel{responses: []string{assignResponse}}
	recorder := executor.NewRecordingExecutor()
	env := newTestEnv(t, Config{}, model, recorder)
	env.start(t)

	event := env.publish(models.EventTaskCreated, testTaskID)

	if got := recorder.CallCount(); got != 1 {
		t.Fatalf("executor calls = %d, want 1", got)
	}
	call := recorder.Calls()[0]
	if call.Request.TaskID != testTaskID || call.Request.TenantID != testTenant {
		t.Errorf("request = %+v, want task %s tenant %s", call.Request, testTaskID, testTenant)
	}
	if call.Request.CorrelationID != event.ID {
		t.Errorf("CorrelationID = %q, want event id %q", call.Request.CorrelationID, event.ID)
	}
	if len(call.Actions) != 1 || call.Actions[0].Kind != models.ActionAssignPipeline {
		t.Fatalf("actions = %+v, want one ASSIGN_PIPELINE", call.Actions)
	}

	entries := env.taskDecisions(t, testTaskID)
	if len(entries) != 1 {
		t.Fatalf("decision entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Status != models.DecisionExecuted {
		t.Errorf("entry status = %s, want %s", entry.Status, models.DecisionExecuted)
	}
	if len(entry.ExecutionResults) != 1 || !entry.ExecutionResults[0].Success {
		t.Errorf("execution results = %+v, want one success", entry.ExecutionResults)
	}
	if entry.CompletedAt == nil {
		t.Error("CompletedAt not set on executed decision")
	}
	if entry.ModelCall == nil || entry.ModelCall.Provider != "stub" || entry.ModelCall.TotalTokens != 150 {
		t.Errorf("model call meta = %+v", entry.ModelCall)
	}
	if entry.Input.SystemPrompt == "" || entry.Input.UserPrompt == "" {
		t.Error("decision input prompts not recorded")
	}

	task, err := env.tasks.GetTask(context.Background(), testTaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.AgentState == nil || task.AgentState.LastDecisionID != entry.ID {
		t.Errorf("agent state = %+v, want LastDecisionID %s", task.AgentState, entry.ID)
	}

	stats := env.agent.Stats()
	if stats.EventsProcessed != 1 || stats.TotalDecisions != 1 || stats.SuccessfulDecisions != 1 {
		t.Errorf("stats = %+v, want 1 processed, 1 decision, 1 successful", stats)
	}
	if stats.NoOpDecisions != 0 || stats.FailedDecisions != 0 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want no failures", stats)
	}
	if stats.RateLimitMinute != 1 {
		t.Errorf("RateLimitMinute = %d, want 1", stats.RateLimitMinute)
	}
	if stats.AvgDecisionTime <= 0 {
		t.Errorf("AvgDecisionTime = %v, want > 0", stats.AvgDecisionTime)
	}
}

// checkingExecutor asserts the decision is already persisted as pending by
// the time actions run.
type checkingExecutor struct {
	t         *testing.T
	decisions store.DecisionLogStore
	taskID    string
}

func (c *checkingExecutor) ExecuteActions(ctx context.Context, actions []models.Action, req executor.Request) ([]models.ActionResult, error) {
	entries, err := c.decisions.RecentDecisions(ctx, c.taskID, 0)
	if err != nil {
		c.t.Errorf("RecentDecisions during execution: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != models.DecisionPending {
		c.t.Errorf("entries during execution = %+v, want one pending", entries)
	}
	results := make([]models.ActionResult, 0, len(actions))
	for _, action := range actions {
		results = append(results, models.ActionResult{Action: action, Success: true})
	}
	return results, nil
}

func TestAgent_LogsDecisionBeforeExecution(t *testing.T) {
	model := &stubModel{responses: []string{assignResponse}}
	check := &checkingExecutor{t: t, taskID: testTaskID}

	env := newTestEnv(t, Config{}, model, check)
	check.decisions = env.decisions
	env.start(t)

	env.publish(models.EventTaskCreated, testTaskID)

	entries := env.taskDecisions(t, testTaskID)
	if len(entries) != 1 || entries[0].Status != models.DecisionExecuted {
		t.Fatalf("entries after handling = %+v, want one executed", entries)
	}
}

func TestAgent_UnparsableReplyBecomesNoOp(t *testing.T) {
	model := &stubModel{responses: []string{"I think we should wait and see."}}
	recorder := executor.NewRecordingExecutor()
	env := newTestEnv(t, Config{}, model, recorder)
	env.start(t)

	env.publish(models.EventTaskCreated, testTaskID)

	if got := recorder.CallCount(); got != 0 {
		t.Fatalf("executor calls = %d, want 0 for a no-op", got)
	}
	entries := env.taskDecisions(t, testTaskID)
	if len(entries) != 1 {
		t.Fatalf("decision entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Status != models.DecisionNoAction {
		t.Errorf("entry status = %s, want %s", entry.Status, models.DecisionNoAction)
	}
	if entry.Decision == nil || !strings.Contains(entry.Decision.Reasoning, "could not be parsed") {
		t.Errorf("decision = %+v, want parse failure reasoning", entry.Decision)
	}
	if entry.Decision != nil && len(entry.Decision.Warnings) == 0 {
		t.Error("expected validation problems in warnings")
	}

	stats := env.agent.Stats()
	if stats.NoOpDecisions != 1 || stats.TotalDecisions != 1 {
		t.Errorf("stats = %+v, want one no-op decision", stats)
	}
	if stats.RateLimitMinute != 0 {
		t.Errorf("RateLimitMinute = %d, want 0: no-ops must not consume budget", stats.RateLimitMinute)
	}
}

func TestAgent_LeavesOverriddenTaskAlone(t *testing.T) {
	model := &stubModel{responses: []string{assignResponse}}
	recorder := executor.NewRecordingExecutor()
	env := newTestEnv(t, Config{}, model, recorder)

	if err := env.tasks.PutTask(&models.Task{
		ID:         testTaskID,
		TenantID:   testTenant,
		TemplateID: testTemplateID,
		Title:      "Customer cannot log in",
		Status:     models.TaskStatusInProgress,
		Override: &models.TaskOverride{
			Overridden: true,
			By:         "ops@example.com",
			Reason:     "handling manually",
			At:         time.Now(),
		},
	}); err != nil {
		t.Fatalf("PutTask: %v", err)
	}
	env.start(t)

	env.publish(models.EventTaskUpdated, testTaskID)

	if got := env.model.callCount(); got != 0 {
		t.Fatalf("model calls = %d, want 0 for overridden task", got)
	}
	if got := recorder.CallCount(); got != 0 {
		t.Fatalf("executor calls = %d, want 0", got)
	}
	if entries := env.taskDecisions(t, testTaskID); len(entries) != 0 {
		t.Fatalf("decision entries = %d, want 0", len(entries))
	}
	stats := env.agent.Stats()
	if stats.NoOpDecisions != 1 {
		t.Errorf("NoOpDecisions = %d, want 1", stats.NoOpDecisions)
	}
	if stats.EventsSkipped != 0 {
		t.Errorf("EventsSkipped = %d, want 0: override is a no-op, not a skip", stats.EventsSkipped)
	}
}

func TestAgent_SkipsEvents(t *testing.T) {
	tests := []struct {
		name   string
		taskID string
		setup  func(t *testing.T, env *testEnv)
	}{
		{
			name:   "unknown task",
			taskID: "task-missing",
		},
		{
			name:   "no task id",
			taskID: "",
		},
		{
			name:   "missing template",
			taskID: "task-dangling",
			setup: func(t *testing.T, env *testEnv) {
				if err := env.tasks.PutTask(&models.Task{
					ID:         "task-dangling",
					TenantID:   testTenant,
					TemplateID: "tpl-missing",
					Title:      "Orphaned",
					Status:     models.TaskStatusNew,
				}); err != nil {
					t.Fatalf("PutTask: %v", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &stubModel{responses: []string{assignResponse}}
			recorder := executor.NewRecordingExecutor()
			env := newTestEnv(t, Config{}, model, recorder)
			if tt.setup != nil {
				tt.setup(t, env)
			}
			env.start(t)

			env.publish(models.EventTaskCreated, tt.taskID)

			if got := env.model.callCount(); got != 0 {
				t.Fatalf("model calls = %d, want 0", got)
			}
			stats := env.agent.Stats()
			if stats.EventsSkipped != 1 {
				t.Errorf("EventsSkipped = %d, want 1", stats.EventsSkipped)
			}
			if stats.EventsProcessed != 1 {
				t.Errorf("EventsProcessed = %d, want 1", stats.EventsProcessed)
			}
			if stats.TotalDecisions != 0 {
				t.Errorf("TotalDecisions = %d, want 0", stats.TotalDecisions)
			}
		})
	}
}

func TestAgent_DropsEventsWhenSaturated(t *testing.T) {
	model := &stubModel{responses: []string{assignResponse}}
	recorder := executor.NewRecordingExecutor()
	env := newTestEnv(t, Config{MaxDecisionsPerMinute: 1}, model, recorder)
	env.start(t)

	env.publish(models.EventTaskCreated, testTaskID)
	env.publish(models.EventTaskUpdated, testTaskID)

	stats := env.agent.Stats()
	if stats.EventsDropped != 1 {
		t.Errorf("EventsDropped = %d, want 1", stats.EventsDropped)
	}
	if stats.TotalDecisions != 1 {
		t.Errorf("TotalDecisions = %d, want 1", stats.TotalDecisions)
	}
	if got := env.model.callCount(); got != 1 {
		t.Errorf("model calls = %d, want 1", got)
	}
	if entries := env.taskDecisions(t, testTaskID); len(entries) != 1 {
		t.Errorf("decision entries = %d, want 1", len(entries))
	}
}

func TestAgent_ActionFailureMarksDecisionFailed(t *testing.T) {
	model := &stubModel{responses: []string{assignResponse}}
	recorder := executor.NewRecordingExecutor()
	recorder.FailKind = models.ActionAssignPipeline
	env := newTestEnv(t, Config{}, model, recorder)
	env.start(t)

	env.publish(models.EventTaskCreated, testTaskID)

	entries := env.taskDecisions(t, testTaskID)
	if len(entries) != 1 {
		t.Fatalf("decision entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Status != models.DecisionFailed {
		t.Errorf("entry status = %s, want %s", entry.Status, models.DecisionFailed)
	}
	if !strings.Contains(entry.Error, "ASSIGN_PIPELINE") {
		t.Errorf("entry error = %q, want the failing action named", entry.Error)
	}
	if entry.CompletedAt == nil {
		t.Error("CompletedAt not set on failed decision")
	}

	stats := env.agent.Stats()
	if stats.FailedDecisions != 1 || stats.SuccessfulDecisions != 0 {
		t.Errorf("stats = %+v, want one failed decision", stats)
	}
	if stats.RateLimitMinute != 1 {
		t.Errorf("RateLimitMinute = %d, want 1: failed decisions consume budget", stats.RateLimitMinute)
	}
}

func TestAgent_ModelErrorCountsAsError(t *testing.T) {
	model := &stubModel{err: errors.New("provider unavailable")}
	recorder := executor.NewRecordingExecutor()
	env := newTestEnv(t, Config{}, model, recorder)
	env.start(t)

	env.publish(models.EventTaskCreated, testTaskID)

	if entries := env.taskDecisions(t, testTaskID); len(entries) != 0 {
		t.Fatalf("decision entries = %d, want 0 on transport failure", len(entries))
	}
	if got := recorder.CallCount(); got != 0 {
		t.Fatalf("executor calls = %d, want 0", got)
	}
	stats := env.agent.Stats()
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if stats.TotalDecisions != 0 {
		t.Errorf("TotalDecisions = %d, want 0", stats.TotalDecisions)
	}
}

// panickyExecutor panics on its first call and delegates afterwards.
type panickyExecutor struct {
	mu       sync.Mutex
	panicked bool
	inner    executor.ActionExecutor
}

func (p *panickyExecutor) ExecuteActions(ctx context.Context, actions []models.Action, req executor.Request) ([]models.ActionResult, error) {
	p.mu.Lock()
	first := !p.panicked
	p.panicked = true
	p.mu.Unlock()
	if first {
		panic("handler exploded")
	}
	return p.inner.ExecuteActions(ctx, actions, req)
}

func TestAgent_SurvivesExecutorPanic(t *testing.T) {
	model := &stubModel{responses: []string{assignResponse}}
	exec := &panickyExecutor{inner: executor.NewRecordingExecutor()}
	env := newTestEnv(t, Config{}, model, exec)
	env.start(t)

	env.publish(models.EventTaskCreated, testTaskID)

	stats := env.agent.Stats()
	if stats.Errors != 1 {
		t.Fatalf("Errors = %d, want 1 after executor panic", stats.Errors)
	}
	entries := env.taskDecisions(t, testTaskID)
	if len(entries) != 1 || entries[0].Status != models.DecisionPending {
		t.Fatalf("entries = %+v, want one still pending", entries)
	}

	env.publish(models.EventTaskUpdated, testTaskID)

	stats = env.agent.Stats()
	if stats.SuccessfulDecisions != 1 {
		t.Fatalf("SuccessfulDecisions = %d, want 1: agent must keep working after a panic", stats.SuccessfulDecisions)
	}
}

func TestAgent_DryRunFlagReachesExecutor(t *testing.T) {
	model := &stubModel{responses: []string{assignResponse}}
	recorder := executor.NewRecordingExecutor()
	env := newTestEnv(t, Config{DryRun: true}, model, recorder)
	env.start(t)

	env.publish(models.EventTaskCreated, testTaskID)

	calls := recorder.Calls()
	if len(calls) != 1 {
		t.Fatalf("executor calls = %d, want 1", len(calls))
	}
	if !calls[0].Request.DryRun {
		t.Error("Request.DryRun = false, want true")
	}
}

func TestAgent_StatsUptime(t *testing.T) {
	env := newTestEnv(t, Config{}, &stubModel{}, executor.NewRecordingExecutor())
	env.start(t)

	time.Sleep(10 * time.Millisecond)
	stats := env.agent.Stats()
	if !stats.Running {
		t.Fatal("Running = false while started")
	}
	if stats.Uptime <= 0 {
		t.Errorf("Uptime = %v, want > 0", stats.Uptime)
	}
}
