// Package audit records the agent's decision trail: which task events it saw,
// which decisions it made, and what executing them produced. Entries are
// written asynchronously so audit never sits on the decision path.
package audit

import (
	"time"
)

// EventType categorizes audit events.
type EventType string

const (
	// Agent lifecycle events
	EventAgentStarted EventType = "agent.started"
	EventAgentStopped EventType = "agent.stopped"
	EventAgentError   EventType = "agent.error"

	// Task event disposition
	EventTaskEventReceived EventType = "task_event.received"
	EventTaskEventSkipped  EventType = "task_event.skipped"

	// Decision lifecycle events
	EventDecisionCreated  EventType = "decision.created"
	EventDecisionExecuted EventType = "decision.executed"
	EventDecisionFailed   EventType = "decision.failed"
	EventDecisionNoAction EventType = "decision.no_action"

	// Action execution events
	EventActionExecuted EventType = "action.executed"
	EventActionFailed   EventType = "action.failed"
)

// Level represents audit log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event represents a single audit trail entry.
type Event struct {
	// ID is a unique identifier for this audit event.
	ID string `json:"id"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// Level is the severity level.
	Level Level `json:"level"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// TenantID identifies the tenant the agent acts for.
	TenantID string `json:"tenant_id,omitempty"`

	// TaskID identifies the task the entry concerns.
	TaskID string `json:"task_id,omitempty"`

	// TaskType identifies the agent's task type for lifecycle events.
	TaskType string `json:"task_type,omitempty"`

	// EventName is the task event name that triggered the work.
	EventName string `json:"event_name,omitempty"`

	// CorrelationID ties the entry back to the triggering task event.
	CorrelationID string `json:"correlation_id,omitempty"`

	// DecisionID links to the decision log entry.
	DecisionID string `json:"decision_id,omitempty"`

	// Action describes what happened.
	Action string `json:"action"`

	// Details contains event-specific structured data.
	Details map[string]any `json:"details,omitempty"`

	// Duration is the time taken for timed operations.
	Duration time.Duration `json:"duration,omitempty"`

	// Error contains error information if applicable.
	Error string `json:"error,omitempty"`

	// TraceID for distributed tracing correlation.
	TraceID string `json:"trace_id,omitempty"`

	// SpanID for distributed tracing correlation.
	SpanID string `json:"span_id,omitempty"`
}

// OutputFormat specifies the audit log output format.
type OutputFormat string

const (
	FormatJSON   OutputFormat = "json"
	FormatLogfmt OutputFormat = "logfmt"
	FormatText   OutputFormat = "text"
)

// Config configures the audit logger.
type Config struct {
	// Enabled determines if audit logging is active.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Level is the minimum level to log.
	Level Level `json:"level" yaml:"level"`

	// Format specifies the output format.
	Format OutputFormat `json:"format" yaml:"format"`

	// Output specifies where to write logs.
	// Supported: "stdout", "stderr", "file:/path/to/file.log"
	Output string `json:"output" yaml:"output"`

	// IncludePrompts determines if model prompts are logged verbatim.
	// When false, prompts appear only as hashes. Set to false for
	// privacy-sensitive environments.
	IncludePrompts bool `json:"include_prompts" yaml:"include_prompts"`

	// MaxFieldSize limits the size of logged fields.
	MaxFieldSize int `json:"max_field_size" yaml:"max_field_size"`

	// EventTypes filters which event types to log (empty = all).
	EventTypes []EventType `json:"event_types" yaml:"event_types"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// FlushInterval is how often to flush the buffer.
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
}

// DefaultConfig returns a default audit configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		Level:          LevelInfo,
		Format:         FormatJSON,
		Output:         "stdout",
		IncludePrompts: false,
		MaxFieldSize:   1024,
		BufferSize:     1000,
		FlushInterval:  5 * time.Second,
	}
}
