package models

import "time"

// DecisionStatus tracks a logged decision through its lifecycle.
type DecisionStatus string

const (
	DecisionPending  DecisionStatus = "pending"
	DecisionExecuted DecisionStatus = "executed"
	DecisionFailed   DecisionStatus = "failed"
	DecisionNoAction DecisionStatus = "no_action"
)

// DecisionInput snapshots what the agent saw when it asked the model for a
// decision. It is frozen at write time so later task edits cannot rewrite
// history.
type DecisionInput struct {
	Event        *TaskEvent `json:"event,omitempty"`
	TaskSnapshot *Task      `json:"task_snapshot,omitempty"`
	SystemPrompt string     `json:"system_prompt,omitempty"`
	UserPrompt   string     `json:"user_prompt,omitempty"`
}

// ModelCallMeta records how the model call went, independent of what it said.
type ModelCallMeta struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	LatencyMs        int64  `json:"latency_ms"`
	FinishReason     string `json:"finish_reason,omitempty"`
}

// ActionResult is the outcome of executing one action.
type ActionResult struct {
	Action          Action         `json:"action"`
	Success         bool           `json:"success"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	Error           string         `json:"error,omitempty"`
	Data            map[string]any `json:"data,omitempty"`
}

// DecisionLogEntry is the append-only record of one agent decision. It is
// created before execution starts and updated exactly once afterward; entries
// are never deleted.
type DecisionLogEntry struct {
	ID               string               `json:"id"`
	TenantID         string               `json:"tenant_id"`
	TaskID           string               `json:"task_id"`
	EventID          string               `json:"event_id,omitempty"`
	Status           DecisionStatus       `json:"status"`
	Input            DecisionInput        `json:"input"`
	ModelCall        *ModelCallMeta       `json:"model_call,omitempty"`
	Decision         *AgentDecisionResult `json:"decision,omitempty"`
	ExecutionResults []ActionResult       `json:"execution_results,omitempty"`
	Error            string               `json:"error,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	CompletedAt      *time.Time           `json:"completed_at,omitempty"`
}

// DecisionLogUpdate carries the single post-execution update applied to a
// pending entry. Nil fields are left untouched.
type DecisionLogUpdate struct {
	Status           DecisionStatus `json:"status"`
	ExecutionResults []ActionResult `json:"execution_results,omitempty"`
	Error            string         `json:"error,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so stores can hand out entries without sharing
// mutable slices with callers.
func (e *DecisionLogEntry) Clone() *DecisionLogEntry {
	if e == nil {
		return nil
	}
	out := *e
	if e.Input.TaskSnapshot != nil {
		out.Input.TaskSnapshot = e.Input.TaskSnapshot.Clone()
	}
	if e.Input.Event != nil {
		ev := *e.Input.Event
		out.Input.Event = &ev
	}
	if e.ModelCall != nil {
		mc := *e.ModelCall
		out.ModelCall = &mc
	}
	if e.Decision != nil {
		d := *e.Decision
		d.Actions = append([]Action(nil), e.Decision.Actions...)
		d.Alternatives = append([]Alternative(nil), e.Decision.Alternatives...)
		d.Warnings = append([]string(nil), e.Decision.Warnings...)
		out.Decision = &d
	}
	out.ExecutionResults = append([]ActionResult(nil), e.ExecutionResults...)
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
