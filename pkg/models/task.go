package models

import "time"

// TaskStatus represents where a task sits in its pipeline.
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "new"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusArchived   TaskStatus = "archived"
)

// Task is the domain entity whose lifecycle the agent manages.
type Task struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	TemplateID  string          `json:"template_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      TaskStatus      `json:"status"`
	PipelineID  string          `json:"pipeline_id,omitempty"`
	StageID     string          `json:"stage_id,omitempty"`
	Priority    int             `json:"priority,omitempty"`
	AgentState  *TaskAgentState `json:"agent_state,omitempty"`
	Override    *TaskOverride   `json:"override,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TaskOverride is a human-set flag that disables agent control of a task.
type TaskOverride struct {
	Overridden bool      `json:"overridden"`
	By         string    `json:"by,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at,omitempty"`
}

// Overridden reports whether the task is under human override.
func (t *Task) Overridden() bool {
	return t != nil && t.Override != nil && t.Override.Overridden
}

// TaskAgentState tracks the agent's decision history on a task.
type TaskAgentState struct {
	DecisionIDs    []string  `json:"decision_ids,omitempty"`
	LastDecisionID string    `json:"last_decision_id,omitempty"`
	LastDecisionAt time.Time `json:"last_decision_at,omitempty"`
}

// maxDecisionHistory bounds the per-task decision id list.
const maxDecisionHistory = 50

// RecordDecision appends a decision id and sets it as the last decision.
func (s *TaskAgentState) RecordDecision(decisionID string, at time.Time) {
	s.DecisionIDs = append(s.DecisionIDs, decisionID)
	if len(s.DecisionIDs) > maxDecisionHistory {
		s.DecisionIDs = s.DecisionIDs[len(s.DecisionIDs)-maxDecisionHistory:]
	}
	s.LastDecisionID = decisionID
	s.LastDecisionAt = at
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.AgentState != nil {
		st := *t.AgentState
		st.DecisionIDs = append([]string(nil), t.AgentState.DecisionIDs...)
		cp.AgentState = &st
	}
	if t.Override != nil {
		ov := *t.Override
		cp.Override = &ov
	}
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// TaskTemplate describes a task type: its stages, routing pipelines, and the
// prompt used to build decisions for tasks of that type.
type TaskTemplate struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	Name         string          `json:"name"`
	TaskType     string          `json:"task_type"`
	SystemPrompt string          `json:"system_prompt"`
	Stages       []TemplateStage `json:"stages,omitempty"`
	Pipelines    []Pipeline      `json:"pipelines,omitempty"`
	Rules        []string        `json:"rules,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TemplateStage is one valid stage for a task type.
type TemplateStage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Pipeline is a routing destination a task can be assigned to.
type Pipeline struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
