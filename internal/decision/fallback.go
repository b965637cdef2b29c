package decision

import (
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/taskpilot/pkg/models"
)

// FallbackContext carries what the deterministic fallback needs to route a
// task when the model response is unusable.
type FallbackContext struct {
	TaskID    string
	Content   string
	Pipelines []models.Pipeline
}

// FallbackDecision wraps a fallback result with why it was produced.
type FallbackDecision struct {
	Decision *models.AgentDecisionResult
	Reason   string
	// IsPartialFailure marks that the model was consulted and produced
	// something unusable, as opposed to never being called.
	IsPartialFailure bool
}

// contentClass is one keyword bucket: matching content takes its intent, and
// its hints steer pipeline selection.
type contentClass struct {
	intent   string
	keywords []string
	hints    []string
}

var contentClasses = []contentClass{
	{
		intent:   "route_defect",
		keywords: []string{"bug", "error", "broken", "crash", "regression", "defect", "failing"},
		hints:    []string{"bug", "defect", "incident", "triage"},
	},
	{
		intent:   "route_request",
		keywords: []string{"feature", "request", "enhancement", "improvement", "proposal"},
		hints:    []string{"feature", "request", "backlog", "planning"},
	},
	{
		intent:   "route_question",
		keywords: []string{"question", "how do", "how to", "clarification", "help"},
		hints:    []string{"support", "question", "help"},
	},
}

var defaultClass = contentClass{
	intent: "route_task",
	hints:  []string{"intake", "general", "default"},
}

var urgencyKeywords = []string{
	"urgent", "asap", "immediately", "critical", "emergency",
	"outage", "blocker", "sev1", "p0",
}

// Fallback produces a deterministic decision from task content alone. It
// classifies the content by keyword, routes to the best-guess pipeline, and
// escalates on urgent language. The result always requires approval and
// carries the configured fallback confidence; with no destination available
// it resolves to an explicit no-action marker.
func (e *Engine) Fallback(fctx *FallbackContext, reason string) *FallbackDecision {
	class, urgent := classifyContent(fctx.Content)

	var actions []models.Action
	if len(fctx.Pipelines) == 0 {
		actions = append(actions, models.NewNoAction("no routing destination available"))
	} else {
		if e.actionEnabled(models.ActionAssignPipeline) {
			assign := models.NewAssignPipelineAction(fctx.TaskID, e.selectPipeline(fctx.Pipelines, class.hints).ID)
			assign.AssignPipeline.Reason = reason
			actions = append(actions, assign)
		}
		if urgent && e.actionEnabled(models.ActionEscalate) {
			actions = append(actions, models.NewEscalateAction("urgent language in task content"))
		}
		if len(actions) == 0 {
			actions = append(actions, models.NewNoAction("routing and escalation are disabled"))
		}
	}

	decision := &models.AgentDecisionResult{
		ID:               uuid.NewString(),
		Intent:           class.intent,
		Confidence:       e.cfg.FallbackConfidence,
		Reasoning:        "fallback decision: " + reason,
		Actions:          actions,
		RequiresApproval: true,
		Warnings:         []string{"produced by the deterministic fallback, not the model"},
	}
	return &FallbackDecision{Decision: decision, Reason: reason, IsPartialFailure: true}
}

func classifyContent(content string) (contentClass, bool) {
	lowered := strings.ToLower(content)
	urgent := false
	for _, kw := range urgencyKeywords {
		if strings.Contains(lowered, kw) {
			urgent = true
			break
		}
	}
	for _, class := range contentClasses {
		for _, kw := range class.keywords {
			if strings.Contains(lowered, kw) {
				return class, urgent
			}
		}
	}
	return defaultClass, urgent
}

// selectPipeline picks the routing destination: the configured fallback
// pipeline when it exists, then a name match on the class hints, then a
// description match, then the first pipeline.
func (e *Engine) selectPipeline(pipelines []models.Pipeline, hints []string) models.Pipeline {
	if e.cfg.FallbackPipelineID != "" {
		for _, p := range pipelines {
			if p.ID == e.cfg.FallbackPipelineID {
				return p
			}
		}
	}
	for _, p := range pipelines {
		name := strings.ToLower(p.Name)
		for _, hint := range hints {
			if strings.Contains(name, hint) {
				return p
			}
		}
	}
	for _, p := range pipelines {
		desc := strings.ToLower(p.Description)
		for _, hint := range hints {
			if strings.Contains(desc, hint) {
				return p
			}
		}
	}
	return pipelines[0]
}
