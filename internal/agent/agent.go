// Package agent runs the autonomous decision loop: it subscribes to task
// events, asks the model what to do about each one, records the decision,
// and executes the resulting actions.
//
// One TaskAgent serves one tenant and one task type. Event handling is
// synchronous with respect to the event source; every event runs the full
// pipeline (load task, build prompts, call the model, log, execute) before
// the handler returns. Failures in one event never stop the agent.
package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/taskpilot/internal/audit"
	"github.com/haasonsaas/taskpilot/internal/decision"
	"github.com/haasonsaas/taskpilot/internal/events"
	"github.com/haasonsaas/taskpilot/internal/executor"
	"github.com/haasonsaas/taskpilot/internal/llm"
	"github.com/haasonsaas/taskpilot/internal/observability"
	"github.com/haasonsaas/taskpilot/internal/ratelimit"
	"github.com/haasonsaas/taskpilot/internal/store"
	"github.com/haasonsaas/taskpilot/pkg/models"
)

// ModelClient is the slice of the model layer the agent needs. *llm.Client
// satisfies it; tests substitute a stub.
type ModelClient interface {
	Complete(ctx context.Context, messages []llm.ChatMessage, opts ...llm.CompletionOptions) (*llm.ModelResponse, error)
	ProviderName() string
}

var _ ModelClient = (*llm.Client)(nil)

// Config controls one agent instance.
type Config struct {
	// TenantID scopes every decision the agent makes. Required.
	TenantID string `yaml:"tenant_id"`

	// TaskType labels metrics and audit events for this agent.
	// Default: "task".
	TaskType string `yaml:"task_type"`

	// Subscriptions lists the event names the agent reacts to.
	// Default: task:created, task:updated, task:stalled.
	Subscriptions []string `yaml:"subscriptions"`

	// HistoryLimit caps how many past decisions are loaded into the
	// prompt. Negative means unlimited. Default: 10.
	HistoryLimit int `yaml:"history_limit"`

	// MaxDecisionsPerMinute caps completed decisions per minute. Events
	// above the cap are dropped. Negative disables the cap. Default: 10.
	MaxDecisionsPerMinute int `yaml:"max_decisions_per_minute"`

	// MaxDecisionsPerHour caps completed decisions per hour. Negative
	// disables the cap. Default: 100.
	MaxDecisionsPerHour int `yaml:"max_decisions_per_hour"`

	// DryRun makes the executor simulate actions instead of running them.
	DryRun bool `yaml:"dry_run"`

	// PromptTokenBudget bounds the estimated size of one decision prompt.
	// History is trimmed oldest-first to fit. Non-positive disables
	// trimming. Default: 4000.
	PromptTokenBudget int `yaml:"prompt_token_budget"`
}

// DefaultConfig returns the agent defaults.
func DefaultConfig() Config {
	return Config{
		TaskType:              "task",
		Subscriptions:         []string{models.EventTaskCreated, models.EventTaskUpdated, models.EventTaskStalled},
		HistoryLimit:          10,
		MaxDecisionsPerMinute: 10,
		MaxDecisionsPerHour:   100,
		PromptTokenBudget:     4000,
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.TaskType == "" {
		cfg.TaskType = def.TaskType
	}
	if cfg.Subscriptions == nil {
		cfg.Subscriptions = def.Subscriptions
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.MaxDecisionsPerMinute == 0 {
		cfg.MaxDecisionsPerMinute = def.MaxDecisionsPerMinute
	}
	if cfg.MaxDecisionsPerHour == 0 {
		cfg.MaxDecisionsPerHour = def.MaxDecisionsPerHour
	}
	if cfg.PromptTokenBudget == 0 {
		cfg.PromptTokenBudget = def.PromptTokenBudget
	}
	return cfg
}

// Validate checks the config after normalization.
func (c Config) Validate() error {
	if strings.TrimSpace(c.TenantID) == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if len(c.Subscriptions) == 0 {
		return fmt.Errorf("at least one subscription is required")
	}
	for _, name := range c.Subscriptions {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("subscription names must not be empty")
		}
	}
	return nil
}

// Dependencies wires the agent to the rest of the system.
type Dependencies struct {
	Events    events.Source
	Tasks     store.TaskStore
	Templates store.TemplateStore
	Decisions store.DecisionLogStore
	Model     ModelClient
	Engine    *decision.Engine
	Executor  executor.ActionExecutor
	Logger    *observability.Logger
	Metrics   *observability.Metrics

	// Tracer is optional. When nil the agent skips span creation.
	Tracer *observability.Tracer

	// Audit is optional. When nil audit logging is disabled.
	Audit *audit.Logger
}

// Validate returns an error naming the first missing dependency.
func (d Dependencies) Validate() error {
	if d.Events == nil {
		return fmt.Errorf("event source is required")
	}
	if d.Tasks == nil {
		return fmt.Errorf("task store is required")
	}
	if d.Templates == nil {
		return fmt.Errorf("template store is required")
	}
	if d.Decisions == nil {
		return fmt.Errorf("decision log store is required")
	}
	if d.Model == nil {
		return fmt.Errorf("model client is required")
	}
	if d.Engine == nil {
		return fmt.Errorf("decision engine is required")
	}
	if d.Executor == nil {
		return fmt.Errorf("action executor is required")
	}
	if d.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if d.Metrics == nil {
		return fmt.Errorf("metrics are required")
	}
	return nil
}

// TaskAgent is the autonomous decision loop for one tenant and task type.
type TaskAgent struct {
	cfg     Config
	deps    Dependencies
	limiter *ratelimit.MultiWindow
	prompts *promptBuilder

	mu        sync.Mutex
	running   bool
	subs      []events.Subscription
	startedAt time.Time

	stats agentStats
}

// New builds an agent from config and dependencies. The config is
// normalized before validation, so zero values mean defaults.
func New(cfg Config, deps Dependencies) (*TaskAgent, error) {
	cfg = normalizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent dependencies: %w", err)
	}
	if deps.Audit == nil {
		deps.Audit, _ = audit.NewLogger(audit.Config{})
	}

	perMinute := cfg.MaxDecisionsPerMinute
	if perMinute < 0 {
		perMinute = 0
	}
	perHour := cfg.MaxDecisionsPerHour
	if perHour < 0 {
		perHour = 0
	}

	return &TaskAgent{
		cfg:     cfg,
		deps:    deps,
		limiter: ratelimit.NewMultiWindow(perMinute, perHour),
		prompts: newPromptBuilder(cfg.PromptTokenBudget, deps.Engine.EnabledActions()),
	}, nil
}

// Start subscribes the agent to its configured events. Starting a running
// agent logs a warning and returns nil.
func (a *TaskAgent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		a.deps.Logger.Warn(ctx, "agent already running",
			"tenant_id", a.cfg.TenantID,
			"task_type", a.cfg.TaskType)
		return nil
	}

	subs := make([]events.Subscription, 0, len(a.cfg.Subscriptions))
	for _, name := range a.cfg.Subscriptions {
		sub, err := a.deps.Events.Subscribe(name, a.handleEvent)
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return fmt.Errorf("subscribe %s: %w", name, err)
		}
		subs = append(subs, sub)
	}

	a.subs = subs
	a.running = true
	a.startedAt = time.Now()
	a.deps.Metrics.AgentStarted(a.cfg.TaskType)
	a.deps.Audit.AgentStarted(ctx, a.cfg.TenantID, a.cfg.TaskType, a.cfg.Subscriptions)
	a.deps.Logger.Info(ctx, "agent started",
		"tenant_id", a.cfg.TenantID,
		"task_type", a.cfg.TaskType,
		"subscriptions", a.cfg.Subscriptions)
	return nil
}

// Stop unsubscribes from all events. Stopping a stopped agent logs a
// warning and returns nil.
func (a *TaskAgent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		a.deps.Logger.Warn(ctx, "agent already stopped",
			"tenant_id", a.cfg.TenantID,
			"task_type", a.cfg.TaskType)
		return nil
	}

	for _, sub := range a.subs {
		sub.Unsubscribe()
	}
	a.subs = nil
	a.running = false
	a.deps.Metrics.AgentStopped(a.cfg.TaskType)

	minute, hour := a.limiter.Occupancy()
	snap := a.stats.snapshot(false, 0, minute, hour)
	a.deps.Audit.AgentStopped(ctx, a.cfg.TenantID, a.cfg.TaskType, map[string]any{
		"events_processed": snap.EventsProcessed,
		"decisions":        snap.TotalDecisions,
		"successful":       snap.SuccessfulDecisions,
		"failed":           snap.FailedDecisions,
		"no_op":            snap.NoOpDecisions,
		"errors":           snap.Errors,
	})
	a.deps.Logger.Info(ctx, "agent stopped",
		"tenant_id", a.cfg.TenantID,
		"task_type", a.cfg.TaskType,
		"decisions", snap.TotalDecisions)
	return nil
}

// Stats returns a point-in-time snapshot of the agent's counters.
func (a *TaskAgent) Stats() Stats {
	a.mu.Lock()
	running := a.running
	var uptime time.Duration
	if running {
		uptime = time.Since(a.startedAt)
	}
	a.mu.Unlock()

	minute, hour := a.limiter.Occupancy()
	return a.stats.snapshot(running, uptime, minute, hour)
}

// handleEvent is the subscription callback. It never returns an error to
// the event source; failures are counted, logged, and audited here.
func (a *TaskAgent) handleEvent(ctx context.Context, event *models.TaskEvent) {
	ctx = observability.AddTenantID(ctx, a.cfg.TenantID)
	ctx = observability.AddEventName(ctx, event.Name)
	ctx = observability.AddCorrelationID(ctx, event.ID)
	a.stats.eventsProcessed.Add(1)

	if a.limiter.Saturated() {
		a.stats.eventsDropped.Add(1)
		a.deps.Metrics.RecordRateLimited("decision_window")
		a.deps.Metrics.RecordEvent(event.Name, "dropped")
		a.deps.Logger.Warn(ctx, "decision rate limit saturated, dropping event",
			"event_id", event.ID)
		a.deps.Audit.TaskEventSkipped(ctx, event, "decision rate limit saturated")
		return
	}

	taskID := event.EntityID()
	if taskID == "" {
		a.skip(ctx, event, "event carries no task id")
		return
	}
	ctx = observability.AddTaskID(ctx, taskID)

	if a.deps.Tracer != nil {
		var span trace.Span
		ctx, span = a.deps.Tracer.TraceEventProcessing(ctx, event.Name, taskID)
		defer span.End()
	}
	a.deps.Audit.TaskEventReceived(ctx, event)

	task, err := a.deps.Tasks.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		a.skip(ctx, event, "task not found")
		return
	}
	if err != nil {
		a.fail(ctx, event, fmt.Errorf("load task: %w", err))
		return
	}

	if task.Overridden() {
		a.stats.noOpDecisions.Add(1)
		a.deps.Metrics.RecordEvent(event.Name, "override")
		a.deps.Logger.Info(ctx, "task under human override, leaving it alone",
			"overridden_by", task.Override.By)
		a.deps.Audit.TaskEventSkipped(ctx, event, "task override set")
		return
	}

	template, err := a.deps.Templates.GetTemplate(ctx, task.TemplateID)
	if errors.Is(err, store.ErrNotFound) {
		a.skip(ctx, event, "task template not found")
		return
	}
	if err != nil {
		a.fail(ctx, event, fmt.Errorf("load template: %w", err))
		return
	}

	if err := a.decide(ctx, event, task, template); err != nil {
		a.fail(ctx, event, err)
	}
}

func (a *TaskAgent) skip(ctx context.Context, event *models.TaskEvent, reason string) {
	a.stats.eventsSkipped.Add(1)
	a.deps.Metrics.RecordEvent(event.Name, "skipped")
	a.deps.Logger.Warn(ctx, "skipping event",
		"event_id", event.ID,
		"reason", reason)
	a.deps.Audit.TaskEventSkipped(ctx, event, reason)
}

func (a *TaskAgent) fail(ctx context.Context, event *models.TaskEvent, err error) {
	a.stats.errors.Add(1)
	a.deps.Metrics.RecordError("agent", "event_handler")
	a.deps.Metrics.RecordEvent(event.Name, "error")
	a.deps.Logger.Error(ctx, "event handling failed",
		"event_id", event.ID,
		"error", err)
	a.deps.Audit.AgentError(ctx, a.cfg.TenantID, a.cfg.TaskType, "handle_event", err)
}

// decide runs the decision pipeline for one event. A panic anywhere inside
// is converted to an error so one bad decision cannot take the agent down.
func (a *TaskAgent) decide(ctx context.Context, event *models.TaskEvent, task *models.Task, template *models.TaskTemplate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decision pipeline panic: %v\n%s", r, debug.Stack())
		}
	}()

	started := time.Now()

	historyLimit := a.cfg.HistoryLimit
	if historyLimit < 0 {
		historyLimit = 0
	}
	history, err := a.deps.Decisions.RecentDecisions(ctx, task.ID, historyLimit)
	if err != nil {
		return fmt.Errorf("load decision history: %w", err)
	}

	systemPrompt, userPrompt := a.prompts.Build(template, task, event, history)

	resp, err := a.completeWithSpan(ctx, []llm.ChatMessage{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(userPrompt),
	})
	if err != nil {
		return fmt.Errorf("model call: %w", err)
	}
	meta := &models.ModelCallMeta{
		Provider:         resp.Provider,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		LatencyMs:        resp.LatencyMs,
		FinishReason:     resp.FinishReason,
	}

	result, perr := a.deps.Engine.ProcessResponse(resp.Content, nil)
	if perr != nil {
		result = unparsableDecision(perr)
		a.deps.Logger.Warn(ctx, "model response unusable, recording a no-op",
			"error", perr)
	}
	if result.ID == "" {
		result.ID = uuid.NewString()
	}

	entry := &models.DecisionLogEntry{
		ID:       result.ID,
		TenantID: a.cfg.TenantID,
		TaskID:   task.ID,
		EventID:  event.ID,
		Status:   models.DecisionPending,
		Input: models.DecisionInput{
			Event:        event,
			TaskSnapshot: task,
			SystemPrompt: systemPrompt,
			UserPrompt:   userPrompt,
		},
		ModelCall: meta,
		Decision:  result,
		CreatedAt: time.Now(),
	}
	if err := a.deps.Decisions.CreateDecisionLog(ctx, entry); err != nil {
		return fmt.Errorf("persist decision: %w", err)
	}
	a.stats.totalDecisions.Add(1)
	a.deps.Audit.DecisionCreated(ctx, entry)

	if err := a.deps.Tasks.UpdateTaskAgentState(ctx, task.ID, entry.ID); err != nil {
		return fmt.Errorf("update agent state: %w", err)
	}

	if result.IsNoOp() {
		if err := a.finalize(ctx, entry, models.DecisionNoAction, nil, ""); err != nil {
			return err
		}
		a.stats.noOpDecisions.Add(1)
		a.deps.Metrics.RecordDecision(a.cfg.TaskType, "no_action", time.Since(started).Seconds())
		a.deps.Logger.Info(ctx, "decision is a no-op",
			"decision_id", entry.ID,
			"reason", result.NoOpReason())
		return nil
	}

	req := executor.Request{
		TaskID:        task.ID,
		TenantID:      a.cfg.TenantID,
		CorrelationID: event.ID,
		DryRun:        a.cfg.DryRun,
	}
	results, execErr := a.deps.Executor.ExecuteActions(ctx, result.Actions, req)
	for _, res := range results {
		status := "executed"
		if !res.Success {
			status = "failed"
		}
		a.deps.Metrics.RecordActionExecution(string(res.Action.Kind), status, float64(res.ExecutionTimeMs)/1000)
		a.deps.Audit.ActionOutcome(ctx, a.cfg.TenantID, task.ID, entry.ID, res)
	}

	if failure := execFailure(results, execErr); failure != "" {
		if err := a.finalize(ctx, entry, models.DecisionFailed, results, failure); err != nil {
			return err
		}
		a.limiter.Record()
		a.stats.failedDecisions.Add(1)
		a.deps.Metrics.RecordDecision(a.cfg.TaskType, "failed", time.Since(started).Seconds())
		a.deps.Logger.Warn(ctx, "decision execution failed",
			"decision_id", entry.ID,
			"error", failure)
		return nil
	}

	elapsed := time.Since(started)
	if err := a.finalize(ctx, entry, models.DecisionExecuted, results, ""); err != nil {
		return err
	}
	a.limiter.Record()
	a.stats.decisionSucceeded(elapsed)
	a.deps.Metrics.RecordDecision(a.cfg.TaskType, "executed", elapsed.Seconds())
	a.deps.Logger.Info(ctx, "decision executed",
		"decision_id", entry.ID,
		"intent", result.Intent,
		"actions", len(result.Actions),
		"duration_ms", elapsed.Milliseconds())
	return nil
}

func (a *TaskAgent) completeWithSpan(ctx context.Context, messages []llm.ChatMessage) (*llm.ModelResponse, error) {
	if a.deps.Tracer != nil {
		var span trace.Span
		ctx, span = a.deps.Tracer.TraceLLMRequest(ctx, a.deps.Model.ProviderName(), "")
		defer span.End()
	}
	return a.deps.Model.Complete(ctx, messages)
}

// finalize records the terminal status of a decision in the log and the
// audit trail.
func (a *TaskAgent) finalize(ctx context.Context, entry *models.DecisionLogEntry, status models.DecisionStatus, results []models.ActionResult, detail string) error {
	now := time.Now()
	update := &models.DecisionLogUpdate{
		Status:           status,
		ExecutionResults: results,
		Error:            detail,
		CompletedAt:      &now,
	}
	if err := a.deps.Decisions.UpdateDecisionLog(ctx, entry.ID, update); err != nil {
		return fmt.Errorf("finalize decision %s: %w", entry.ID, err)
	}
	var execErr error
	if detail != "" {
		execErr = errors.New(detail)
	}
	a.deps.Audit.DecisionFinalized(ctx, entry, status, results, execErr)
	return nil
}

// execFailure reduces executor output to a single failure description, or
// "" when every action succeeded.
func execFailure(results []models.ActionResult, execErr error) string {
	if execErr != nil {
		return execErr.Error()
	}
	for _, res := range results {
		if !res.Success {
			return fmt.Sprintf("action %s failed: %s", res.Action.Kind, res.Error)
		}
	}
	return ""
}

// unparsableDecision wraps a parse or validation failure in a no-op
// decision so the event still leaves an auditable trail.
func unparsableDecision(perr error) *models.AgentDecisionResult {
	reason := "model response could not be parsed"
	warnings := []string{perr.Error()}
	var invalid *decision.InvalidDecisionError
	if errors.As(perr, &invalid) {
		warnings = invalid.Problems
	}
	return &models.AgentDecisionResult{
		ID:               uuid.NewString(),
		Intent:           "no_action",
		Confidence:       0,
		Reasoning:        reason + ": " + perr.Error(),
		Actions:          []models.Action{models.NewNoAction(reason)},
		RequiresApproval: true,
		Warnings:         warnings,
	}
}
