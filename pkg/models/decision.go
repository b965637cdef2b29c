package models

// RawAction is one action exactly as the model produced it, before
// validation. Params stays a string-keyed map so malformed payloads survive
// long enough to be reported instead of failing JSON decoding.
type RawAction struct {
	Type                 string         `json:"type"`
	Params               map[string]any `json:"params,omitempty"`
	Priority             *int           `json:"priority,omitempty"`
	RequiresConfirmation bool           `json:"requires_confirmation,omitempty"`
	DelayMs              int64          `json:"delay_ms,omitempty"`
	Precondition         *Precondition  `json:"precondition,omitempty"`
}

// AgentDecision is the wire shape the model is asked to emit: an intent, a
// confidence, its reasoning, and zero or more proposed actions.
type AgentDecision struct {
	Intent           string        `json:"intent"`
	Confidence       float64       `json:"confidence"`
	Reasoning        string        `json:"reasoning"`
	Actions          []RawAction   `json:"actions"`
	RequiresApproval *bool         `json:"requires_approval,omitempty"`
	Priority         *int          `json:"priority,omitempty"`
	Alternatives     []Alternative `json:"alternatives,omitempty"`
}

// Alternative is a path the model considered and set aside.
type Alternative struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// AgentDecisionResult is a decision after validation: typed actions, a
// settled approval flag, and any warnings the validator collected. This is
// the only decision shape downstream code consumes.
type AgentDecisionResult struct {
	ID               string        `json:"id"`
	Intent           string        `json:"intent"`
	Confidence       float64       `json:"confidence"`
	Reasoning        string        `json:"reasoning"`
	Actions          []Action      `json:"actions"`
	RequiresApproval bool          `json:"requires_approval"`
	Priority         *int          `json:"priority,omitempty"`
	Alternatives     []Alternative `json:"alternatives,omitempty"`
	Warnings         []string      `json:"warnings,omitempty"`
}

// IsNoOp reports whether the decision resolves to exactly one no-action
// marker, the shape the agent treats as "deliberately do nothing".
func (r *AgentDecisionResult) IsNoOp() bool {
	return len(r.Actions) == 1 && r.Actions[0].IsNoAction()
}

// NoOpReason returns the stated reason when IsNoOp holds, "" otherwise.
func (r *AgentDecisionResult) NoOpReason() string {
	if !r.IsNoOp() || r.Actions[0].NoAction == nil {
		return ""
	}
	return r.Actions[0].NoAction.Reason
}
