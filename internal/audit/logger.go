package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/taskpilot/internal/observability"
	"github.com/haasonsaas/taskpilot/pkg/models"
)

// Logger writes structured audit events describing the agent's decision
// trail. Events are buffered and written by a background goroutine so callers
// never block on output I/O. Close drains the buffer before releasing the
// output; events logged after Close are dropped.
//
// Usage:
//
//	logger, err := audit.NewLogger(audit.Config{
//	    Enabled: true,
//	    Level:   audit.LevelInfo,
//	    Format:  audit.FormatJSON,
//	    Output:  "file:/var/log/taskpilot/audit.log",
//	})
//	defer logger.Close()
//
//	logger.DecisionCreated(ctx, entry)
type Logger struct {
	config     Config
	output     io.WriteCloser
	slogger    *slog.Logger
	buffer     chan *Event
	wg         sync.WaitGroup
	done       chan struct{}
	eventTypes map[EventType]bool

	mu     sync.Mutex
	closed bool
}

// NewLogger creates a new audit logger with the given configuration.
func NewLogger(config Config) (*Logger, error) {
	if !config.Enabled {
		return &Logger{config: config}, nil
	}

	// Set defaults
	if config.BufferSize == 0 {
		config.BufferSize = 1000
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.MaxFieldSize == 0 {
		config.MaxFieldSize = 1024
	}

	// Open output
	var output io.WriteCloser
	switch {
	case config.Output == "stdout" || config.Output == "":
		output = os.Stdout
	case config.Output == "stderr":
		output = os.Stderr
	case strings.HasPrefix(config.Output, "file:"):
		path := strings.TrimPrefix(config.Output, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log file: %w", err)
		}
		output = f
	default:
		return nil, fmt.Errorf("unsupported audit output: %s", config.Output)
	}

	// Build event type filter map
	eventTypes := make(map[EventType]bool)
	for _, et := range config.EventTypes {
		eventTypes[et] = true
	}

	l := &Logger{
		config:     config,
		output:     output,
		buffer:     make(chan *Event, config.BufferSize),
		done:       make(chan struct{}),
		eventTypes: eventTypes,
	}

	// Create underlying slog logger for structured output
	var handler slog.Handler
	switch config.Format {
	case FormatText, FormatLogfmt:
		handler = slog.NewTextHandler(output, &slog.HandlerOptions{
			Level: l.slogLevel(),
		})
	default:
		handler = slog.NewJSONHandler(output, &slog.HandlerOptions{
			Level: l.slogLevel(),
		})
	}
	l.slogger = slog.New(handler).With("component", "audit")

	// Start async writer
	l.wg.Add(1)
	go l.writeLoop()

	return l, nil
}

// Close flushes remaining events and closes the logger. Events logged after
// Close are dropped. Close is idempotent.
func (l *Logger) Close() error {
	if !l.config.Enabled {
		return nil
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.wg.Wait()

	if l.output != os.Stdout && l.output != os.Stderr {
		return l.output.Close()
	}
	return nil
}

// Log writes an audit event to the trail.
func (l *Logger) Log(ctx context.Context, event *Event) {
	if !l.config.Enabled {
		return
	}

	// Check event type filter
	if len(l.eventTypes) > 0 && !l.eventTypes[event.Type] {
		return
	}

	// Check level
	if !l.shouldLog(event.Level) {
		return
	}

	// Set defaults
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Fill identifiers from the request context when the caller left them out
	if event.TraceID == "" {
		event.TraceID = observability.GetTraceID(ctx)
	}
	if event.SpanID == "" {
		event.SpanID = observability.GetSpanID(ctx)
	}
	if event.TenantID == "" {
		event.TenantID = observability.GetTenantID(ctx)
	}
	if event.TaskID == "" {
		event.TaskID = observability.GetTaskID(ctx)
	}
	if event.CorrelationID == "" {
		event.CorrelationID = observability.GetCorrelationID(ctx)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	// Non-blocking write to buffer
	select {
	case l.buffer <- event:
	default:
		// Buffer full, log directly (slower but doesn't drop)
		l.writeEvent(event)
	}
}

// AgentStarted records an agent coming online.
func (l *Logger) AgentStarted(ctx context.Context, tenantID, taskType string, subscriptions []string) {
	l.Log(ctx, &Event{
		Type:     EventAgentStarted,
		Level:    LevelInfo,
		TenantID: tenantID,
		TaskType: taskType,
		Action:   "agent_started",
		Details: map[string]any{
			"subscriptions": subscriptions,
		},
	})
}

// AgentStopped records an agent shutting down, with a final stats snapshot.
func (l *Logger) AgentStopped(ctx context.Context, tenantID, taskType string, stats map[string]any) {
	l.Log(ctx, &Event{
		Type:     EventAgentStopped,
		Level:    LevelInfo,
		TenantID: tenantID,
		TaskType: taskType,
		Action:   "agent_stopped",
		Details:  stats,
	})
}

// AgentError records a failure in the agent's event handling boundary.
func (l *Logger) AgentError(ctx context.Context, tenantID, taskType, action string, err error) {
	l.Log(ctx, &Event{
		Type:     EventAgentError,
		Level:    LevelError,
		TenantID: tenantID,
		TaskType: taskType,
		Action:   action,
		Error:    l.clip(err.Error()),
	})
}

// TaskEventReceived records a task event entering the decision pipeline.
func (l *Logger) TaskEventReceived(ctx context.Context, event *models.TaskEvent) {
	l.Log(ctx, &Event{
		Type:          EventTaskEventReceived,
		Level:         LevelDebug,
		TenantID:      event.TenantID,
		TaskID:        event.EntityID(),
		EventName:     event.Name,
		CorrelationID: event.ID,
		Action:        "task_event_received",
	})
}

// TaskEventSkipped records a task event the agent declined to act on.
func (l *Logger) TaskEventSkipped(ctx context.Context, event *models.TaskEvent, reason string) {
	l.Log(ctx, &Event{
		Type:          EventTaskEventSkipped,
		Level:         LevelInfo,
		TenantID:      event.TenantID,
		TaskID:        event.EntityID(),
		EventName:     event.Name,
		CorrelationID: event.ID,
		Action:        "task_event_skipped",
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// DecisionCreated records a decision log entry at persist time, before any
// action runs.
func (l *Logger) DecisionCreated(ctx context.Context, entry *models.DecisionLogEntry) {
	details := map[string]any{}
	if entry.Decision != nil {
		details["intent"] = entry.Decision.Intent
		details["confidence"] = entry.Decision.Confidence
		details["action_count"] = len(entry.Decision.Actions)
		details["requires_approval"] = entry.Decision.RequiresApproval
	}
	if entry.ModelCall != nil {
		details["provider"] = entry.ModelCall.Provider
		details["model"] = entry.ModelCall.Model
		details["total_tokens"] = entry.ModelCall.TotalTokens
		details["latency_ms"] = entry.ModelCall.LatencyMs
	}
	l.addPrompt(details, "system_prompt", entry.Input.SystemPrompt)
	l.addPrompt(details, "user_prompt", entry.Input.UserPrompt)

	event := &Event{
		Type:          EventDecisionCreated,
		Level:         LevelInfo,
		TenantID:      entry.TenantID,
		TaskID:        entry.TaskID,
		CorrelationID: entry.EventID,
		DecisionID:    entry.ID,
		Action:        "decision_created",
		Details:       details,
	}
	if entry.Input.Event != nil {
		event.EventName = entry.Input.Event.Name
	}
	l.Log(ctx, event)
}

// DecisionFinalized records the terminal status of a decision after its
// single post-execution update.
func (l *Logger) DecisionFinalized(ctx context.Context, entry *models.DecisionLogEntry, status models.DecisionStatus, results []models.ActionResult, execErr error) {
	eventType := EventDecisionExecuted
	level := LevelInfo
	switch status {
	case models.DecisionFailed:
		eventType = EventDecisionFailed
		level = LevelWarn
	case models.DecisionNoAction:
		eventType = EventDecisionNoAction
	}

	succeeded := 0
	var total time.Duration
	for _, res := range results {
		if res.Success {
			succeeded++
		}
		total += time.Duration(res.ExecutionTimeMs) * time.Millisecond
	}

	details := map[string]any{
		"actions_attempted": len(results),
		"actions_succeeded": succeeded,
	}
	if status == models.DecisionNoAction && entry.Decision != nil {
		details["reason"] = entry.Decision.NoOpReason()
	}

	event := &Event{
		Type:          eventType,
		Level:         level,
		TenantID:      entry.TenantID,
		TaskID:        entry.TaskID,
		CorrelationID: entry.EventID,
		DecisionID:    entry.ID,
		Action:        "decision_" + string(status),
		Details:       details,
		Duration:      total,
	}
	if execErr != nil {
		event.Error = l.clip(execErr.Error())
	}
	l.Log(ctx, event)
}

// ActionOutcome records the result of executing one action from a decision.
func (l *Logger) ActionOutcome(ctx context.Context, tenantID, taskID, decisionID string, result models.ActionResult) {
	eventType := EventActionExecuted
	level := LevelInfo
	action := "action_executed"
	if !result.Success {
		eventType = EventActionFailed
		level = LevelWarn
		action = "action_failed"
	}

	details := map[string]any{
		"kind": string(result.Action.Kind),
	}
	if dry, ok := result.Data["dry_run"].(bool); ok && dry {
		details["dry_run"] = true
	}

	l.Log(ctx, &Event{
		Type:       eventType,
		Level:      level,
		TenantID:   tenantID,
		TaskID:     taskID,
		DecisionID: decisionID,
		Action:     action,
		Details:    details,
		Duration:   time.Duration(result.ExecutionTimeMs) * time.Millisecond,
		Error:      l.clip(result.Error),
	})
}

// addPrompt attaches a prompt to the details map, verbatim or hashed per the
// privacy configuration.
func (l *Logger) addPrompt(details map[string]any, key, prompt string) {
	if prompt == "" {
		return
	}
	if l.config.IncludePrompts {
		details[key] = l.clip(prompt)
		return
	}
	details[key+"_hash"] = hashString(prompt)
}

// clip truncates a field to the configured maximum size.
func (l *Logger) clip(s string) string {
	if l.config.MaxFieldSize > 0 && len(s) > l.config.MaxFieldSize {
		return s[:l.config.MaxFieldSize] + "...(truncated)"
	}
	return s
}

// writeLoop processes buffered events.
func (l *Logger) writeLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-l.buffer:
			l.writeEvent(event)
		case <-ticker.C:
			// Flush any remaining buffered events
			l.flushBuffer()
		case <-l.done:
			// Drain remaining events
			l.flushBuffer()
			return
		}
	}
}

// flushBuffer drains all buffered events.
func (l *Logger) flushBuffer() {
	for {
		select {
		case event := <-l.buffer:
			l.writeEvent(event)
		default:
			return
		}
	}
}

// writeEvent writes a single event to the output.
func (l *Logger) writeEvent(event *Event) {
	attrs := []any{
		"audit_id", event.ID,
		"audit_type", event.Type,
		"action", event.Action,
		"timestamp", event.Timestamp.Format(time.RFC3339Nano),
	}

	if event.TenantID != "" {
		attrs = append(attrs, "tenant_id", event.TenantID)
	}
	if event.TaskID != "" {
		attrs = append(attrs, "task_id", event.TaskID)
	}
	if event.TaskType != "" {
		attrs = append(attrs, "task_type", event.TaskType)
	}
	if event.EventName != "" {
		attrs = append(attrs, "event_name", event.EventName)
	}
	if event.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", event.CorrelationID)
	}
	if event.DecisionID != "" {
		attrs = append(attrs, "decision_id", event.DecisionID)
	}
	if event.TraceID != "" {
		attrs = append(attrs, "trace_id", event.TraceID)
	}
	if event.SpanID != "" {
		attrs = append(attrs, "span_id", event.SpanID)
	}
	if event.Duration > 0 {
		attrs = append(attrs, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
	}

	// Add details as individual attributes for better querying
	for k, v := range event.Details {
		attrs = append(attrs, k, v)
	}

	switch event.Level {
	case LevelDebug:
		l.slogger.Debug("audit", attrs...)
	case LevelInfo:
		l.slogger.Info("audit", attrs...)
	case LevelWarn:
		l.slogger.Warn("audit", attrs...)
	case LevelError:
		l.slogger.Error("audit", attrs...)
	}
}

// shouldLog checks if an event at the given level should be logged.
func (l *Logger) shouldLog(level Level) bool {
	levels := map[Level]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
	}
	return levels[level] >= levels[l.config.Level]
}

// slogLevel converts audit level to slog level.
func (l *Logger) slogLevel() slog.Level {
	switch l.config.Level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// hashString creates a SHA256 hash of a string (first 16 chars).
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:16]
}
