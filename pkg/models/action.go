package models

import (
	"fmt"
	"time"
)

// ActionKind identifies one concrete operation the system can perform.
// The set is closed: decisions carrying any other kind are rejected.
type ActionKind string

const (
	ActionAssignPipeline   ActionKind = "ASSIGN_PIPELINE"
	ActionSendNotification ActionKind = "SEND_NOTIFICATION"
	ActionCreateEvent      ActionKind = "CREATE_EVENT"
	ActionEscalate         ActionKind = "ESCALATE"
	ActionUpdateStatus     ActionKind = "UPDATE_STATUS"
	ActionNoAction         ActionKind = "NO_ACTION"
)

// AllActionKinds lists every kind the core understands, in a stable order.
func AllActionKinds() []ActionKind {
	return []ActionKind{
		ActionAssignPipeline,
		ActionSendNotification,
		ActionCreateEvent,
		ActionEscalate,
		ActionUpdateStatus,
		ActionNoAction,
	}
}

// KnownActionKind reports whether k belongs to the closed kind set.
func KnownActionKind(k ActionKind) bool {
	switch k {
	case ActionAssignPipeline, ActionSendNotification, ActionCreateEvent,
		ActionEscalate, ActionUpdateStatus, ActionNoAction:
		return true
	}
	return false
}

// Precondition gates an action on an externally evaluated condition.
// The core carries it as data; evaluation belongs to the executor.
type Precondition struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Action is a validated, typed operation. Exactly one payload pointer is set
// and it matches Kind; construct through the New*Action helpers or the
// decision engine so that invariant holds.
type Action struct {
	Kind                 ActionKind    `json:"kind"`
	Priority             int           `json:"priority"`
	RequiresConfirmation bool          `json:"requires_confirmation,omitempty"`
	Delay                time.Duration `json:"delay,omitempty"`
	Precondition         *Precondition `json:"precondition,omitempty"`

	AssignPipeline   *AssignPipelinePayload   `json:"assign_pipeline,omitempty"`
	SendNotification *SendNotificationPayload `json:"send_notification,omitempty"`
	CreateEvent      *CreateEventPayload      `json:"create_event,omitempty"`
	Escalate         *EscalatePayload         `json:"escalate,omitempty"`
	UpdateStatus     *UpdateStatusPayload     `json:"update_status,omitempty"`
	NoAction         *NoActionPayload         `json:"no_action,omitempty"`
}

// AssignPipelinePayload routes a task to a pipeline.
type AssignPipelinePayload struct {
	TaskID     string `json:"task_id"`
	PipelineID string `json:"pipeline_id"`
	StageID    string `json:"stage_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// SendNotificationPayload notifies people about a task.
type SendNotificationPayload struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Channel    string   `json:"channel,omitempty"`
}

// CreateEventPayload schedules a calendar entry. Times are carried verbatim;
// the core does no scheduling arithmetic.
type CreateEventPayload struct {
	Title       string   `json:"title"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time,omitempty"`
	Attendees   []string `json:"attendees,omitempty"`
	Location    string   `json:"location,omitempty"`
	Description string   `json:"description,omitempty"`
}

// EscalatePayload raises a task to a human or a higher tier.
type EscalatePayload struct {
	Reason string `json:"reason"`
	Target string `json:"target,omitempty"`
	Level  string `json:"level,omitempty"`
}

// UpdateStatusPayload moves a task to a new status.
type UpdateStatusPayload struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}

// NoActionPayload marks an explicit decision to do nothing.
type NoActionPayload struct {
	Reason string `json:"reason"`
}

const (
	// MinActionPriority and MaxActionPriority bound the priority scale.
	MinActionPriority = 1
	MaxActionPriority = 5
	// DefaultActionPriority is used when a decision omits priority.
	DefaultActionPriority = 3
)

// NewAssignPipelineAction builds a validated ASSIGN_PIPELINE action.
func NewAssignPipelineAction(taskID, pipelineID string) Action {
	return Action{
		Kind:     ActionAssignPipeline,
		Priority: DefaultActionPriority,
		AssignPipeline: &AssignPipelinePayload{
			TaskID:     taskID,
			PipelineID: pipelineID,
		},
	}
}

// NewEscalateAction builds a validated ESCALATE action.
func NewEscalateAction(reason string) Action {
	return Action{
		Kind:     ActionEscalate,
		Priority: DefaultActionPriority,
		Escalate: &EscalatePayload{Reason: reason},
	}
}

// NewNoAction builds the explicit no-action marker.
func NewNoAction(reason string) Action {
	return Action{
		Kind:     ActionNoAction,
		Priority: DefaultActionPriority,
		NoAction: &NoActionPayload{Reason: reason},
	}
}

// payloadKind returns the kind implied by the single non-nil payload, or ""
// when zero or multiple payloads are set.
func (a *Action) payloadKind() ActionKind {
	var kind ActionKind
	set := 0
	if a.AssignPipeline != nil {
		kind, set = ActionAssignPipeline, set+1
	}
	if a.SendNotification != nil {
		kind, set = ActionSendNotification, set+1
	}
	if a.CreateEvent != nil {
		kind, set = ActionCreateEvent, set+1
	}
	if a.Escalate != nil {
		kind, set = ActionEscalate, set+1
	}
	if a.UpdateStatus != nil {
		kind, set = ActionUpdateStatus, set+1
	}
	if a.NoAction != nil {
		kind, set = ActionNoAction, set+1
	}
	if set != 1 {
		return ""
	}
	return kind
}

// Validate checks the sum-type invariant: a known kind, exactly one matching
// payload, and a priority inside the 1-5 scale.
func (a *Action) Validate() error {
	if !KnownActionKind(a.Kind) {
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	if pk := a.payloadKind(); pk != a.Kind {
		return fmt.Errorf("action kind %q does not match its payload", a.Kind)
	}
	if a.Priority < MinActionPriority || a.Priority > MaxActionPriority {
		return fmt.Errorf("action priority %d outside %d-%d", a.Priority, MinActionPriority, MaxActionPriority)
	}
	return nil
}

// IsNoAction reports whether the action is the explicit no-action marker.
func (a *Action) IsNoAction() bool {
	return a.Kind == ActionNoAction
}

// Describe renders a short human-readable summary for logs and audit lines.
func (a *Action) Describe() string {
	switch a.Kind {
	case ActionAssignPipeline:
		if a.AssignPipeline != nil {
			return fmt.Sprintf("assign task %s to pipeline %s", a.AssignPipeline.TaskID, a.AssignPipeline.PipelineID)
		}
	case ActionSendNotification:
		if a.SendNotification != nil {
			return fmt.Sprintf("notify %d recipient(s): %s", len(a.SendNotification.Recipients), a.SendNotification.Subject)
		}
	case ActionCreateEvent:
		if a.CreateEvent != nil {
			return fmt.Sprintf("create event %q at %s", a.CreateEvent.Title, a.CreateEvent.StartTime)
		}
	case ActionEscalate:
		if a.Escalate != nil {
			return "escalate: " + a.Escalate.Reason
		}
	case ActionUpdateStatus:
		if a.UpdateStatus != nil {
			return fmt.Sprintf("set task %s status to %s", a.UpdateStatus.TaskID, a.UpdateStatus.Status)
		}
	case ActionNoAction:
		if a.NoAction != nil {
			return "no action: " + a.NoAction.Reason
		}
	}
	return string(a.Kind)
}
