package models

import "time"

// Well-known task lifecycle event names. Event sources may publish others;
// agents subscribe by name.
const (
	EventTaskCreated      = "task:created"
	EventTaskUpdated      = "task:updated"
	EventTaskStageChanged = "task:stage_changed"
	EventTaskStalled      = "task:stalled"
	EventTaskCommented    = "task:comment_added"
)

// TaskEvent is a lifecycle event delivered by the external event source.
// Its ID doubles as the correlation id for everything the event triggers.
type TaskEvent struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	TenantID   string         `json:"tenant_id"`
	TaskID     string         `json:"task_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EntityID resolves the task id, falling back to well-known payload keys for
// sources that only populate the payload.
func (e *TaskEvent) EntityID() string {
	if e == nil {
		return ""
	}
	if e.TaskID != "" {
		return e.TaskID
	}
	for _, key := range []string{"task_id", "taskId", "entity_id", "entityId"} {
		if v, ok := e.Payload[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
