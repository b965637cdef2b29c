// Package decision turns raw model output into validated, executable
// decisions. The engine parses the response, checks every action against the
// closed kind set and its parameter requirements, settles the approval flag,
// and falls back to a deterministic keyword decision when the model output is
// unusable and the caller supplied enough context to route without it.
package decision

import (
	"strings"

	"github.com/haasonsaas/taskpilot/pkg/models"
)

// Engine validates model decisions against one immutable configuration.
// Safe for concurrent use.
type Engine struct {
	cfg     Config
	enabled map[models.ActionKind]struct{}
}

// NewEngine builds an engine from cfg. An empty enabled set means every
// known action kind is allowed.
func NewEngine(cfg Config) *Engine {
	kinds := cfg.EnabledActions
	if len(kinds) == 0 {
		kinds = models.AllActionKinds()
	}
	enabled := make(map[models.ActionKind]struct{}, len(kinds))
	for _, k := range kinds {
		enabled[k] = struct{}{}
	}
	return &Engine{cfg: cfg, enabled: enabled}
}

func (e *Engine) actionEnabled(kind models.ActionKind) bool {
	_, ok := e.enabled[kind]
	return ok
}

// EnabledActions returns the action kinds this engine accepts, in the
// canonical kind order.
func (e *Engine) EnabledActions() []models.ActionKind {
	kinds := make([]models.ActionKind, 0, len(e.enabled))
	for _, k := range models.AllActionKinds() {
		if e.actionEnabled(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// InvalidDecisionError reports a decision that failed validation, carrying
// every problem found.
type InvalidDecisionError struct {
	Problems []string
}

func (e *InvalidDecisionError) Error() string {
	return "invalid decision: " + strings.Join(e.Problems, "; ")
}

// ProcessResponse parses and validates a raw model response. raw may be the
// response text (fenced or bare JSON), a byte slice, a decoded JSON object,
// or an already-decoded models.AgentDecision.
//
// When the response is unusable and fallback is enabled and fctx is non-nil,
// the deterministic fallback decision is returned instead of an error.
// Otherwise the error is an *InvalidDecisionError listing every problem.
func (e *Engine) ProcessResponse(raw any, fctx *FallbackContext) (*models.AgentDecisionResult, error) {
	var problems []string
	obj, err := decodeObject(raw)
	if err != nil {
		problems = []string{err.Error()}
	} else {
		report := e.validateObject(obj)
		if report.IsValid {
			return report.Sanitized, nil
		}
		problems = report.Errors
	}

	if e.cfg.FallbackEnabled && fctx != nil {
		fb := e.Fallback(fctx, strings.Join(problems, "; "))
		return fb.Decision, nil
	}
	return nil, &InvalidDecisionError{Problems: problems}
}

// ShouldAutoExecute reports whether a decision may run without a human:
// approval not required and confidence at or above the auto-execute
// threshold.
func (e *Engine) ShouldAutoExecute(d *models.AgentDecisionResult) bool {
	return !d.RequiresApproval && d.Confidence >= e.cfg.AutoExecuteThreshold
}

// NeedsApproval reports whether a decision must wait for a human: approval
// required and confidence still high enough to be worth acting on.
func (e *Engine) NeedsApproval(d *models.AgentDecisionResult) bool {
	return d.RequiresApproval && !e.ShouldReject(d)
}

// ShouldReject reports whether confidence is too low to act on at all.
func (e *Engine) ShouldReject(d *models.AgentDecisionResult) bool {
	return d.Confidence < e.cfg.RequireApprovalThreshold
}
