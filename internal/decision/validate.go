package decision

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/taskpilot/pkg/models"
)

// ValidationReport collects every problem in a model decision instead of
// stopping at the first. Errors make the decision unusable; warnings travel
// on the sanitized result.
type ValidationReport struct {
	IsValid   bool
	Errors    []string
	Warnings  []string
	Sanitized *models.AgentDecisionResult
}

// actionParamSpecs lists required and optional parameters per action kind.
// Missing required parameters are errors; missing optional ones warnings.
var actionParamSpecs = map[models.ActionKind]struct {
	required []string
	optional []string
}{
	models.ActionAssignPipeline:   {required: []string{"task_id", "pipeline_id"}, optional: []string{"stage_id", "reason"}},
	models.ActionSendNotification: {required: []string{"recipients", "subject", "body"}, optional: []string{"channel"}},
	models.ActionCreateEvent:      {required: []string{"title", "start_time"}, optional: []string{"end_time", "attendees", "location", "description"}},
	models.ActionEscalate:         {required: []string{"reason"}, optional: []string{"target", "level"}},
	models.ActionUpdateStatus:     {required: []string{"task_id", "status"}, optional: []string{"comment"}},
	models.ActionNoAction:         {required: []string{"reason"}},
}

// Validate checks a raw model decision against the closed action set and the
// configured thresholds. Accepts the same payload shapes as ProcessResponse.
func (e *Engine) Validate(raw any) ValidationReport {
	obj, err := decodeObject(raw)
	if err != nil {
		return ValidationReport{Errors: []string{err.Error()}}
	}
	return e.validateObject(obj)
}

func (e *Engine) validateObject(obj map[string]any) ValidationReport {
	var report ValidationReport

	intent, _ := obj["intent"].(string)
	intent = strings.TrimSpace(intent)
	if intent == "" {
		report.fail("intent must be a non-empty string")
	}

	conf, confOK := toFloat(obj["confidence"])
	switch {
	case !confOK:
		report.fail("confidence must be a number")
	case conf < 0 || conf > 1:
		report.fail(fmt.Sprintf("confidence %v outside [0,1]", conf))
	case conf < e.cfg.MinConfidence:
		report.warn(fmt.Sprintf("confidence %.2f below minimum %.2f", conf, e.cfg.MinConfidence))
	}

	reasoning, _ := obj["reasoning"].(string)

	var actions []models.Action
	anyConfirm := false
	rawActions, listOK := obj["actions"].([]any)
	if !listOK || len(rawActions) == 0 {
		report.fail("actions must be a non-empty list")
	} else {
		for i, entry := range rawActions {
			am, ok := entry.(map[string]any)
			if !ok {
				report.fail(fmt.Sprintf("action %d: not an object", i))
				continue
			}
			act, ok := e.validateAction(i, am, &report)
			if !ok {
				continue
			}
			if act.RequiresConfirmation {
				anyConfirm = true
			}
			actions = append(actions, act)
		}
	}

	var decisionPriority *int
	if pv, exists := obj["priority"]; exists {
		if p, ok := toInt(pv); ok && p >= models.MinActionPriority && p <= models.MaxActionPriority {
			decisionPriority = &p
		} else {
			report.fail(fmt.Sprintf("priority must be an integer between %d and %d",
				models.MinActionPriority, models.MaxActionPriority))
		}
	}

	explicitApproval, hasExplicit := false, false
	if av, exists := obj["requires_approval"]; exists {
		if b, ok := av.(bool); ok {
			explicitApproval, hasExplicit = b, true
		} else {
			report.warn("requires_approval ignored: not a boolean")
		}
	}

	if len(report.Errors) > 0 {
		return report
	}

	result := &models.AgentDecisionResult{
		ID:           uuid.NewString(),
		Intent:       intent,
		Confidence:   conf,
		Reasoning:    reasoning,
		Actions:      actions,
		Priority:     decisionPriority,
		Alternatives: decodeAlternatives(obj["alternatives"]),
		Warnings:     report.Warnings,
	}

	// Approval precedence: the model's explicit flag wins, then any action
	// that demands confirmation, then the confidence gate.
	switch {
	case hasExplicit:
		result.RequiresApproval = explicitApproval
	case anyConfirm:
		result.RequiresApproval = true
	default:
		result.RequiresApproval = conf < e.cfg.AutoExecuteThreshold
	}

	report.IsValid = true
	report.Sanitized = result
	return report
}

// validateAction checks one raw action and, when clean, returns its typed
// form. Problems are appended to the report.
func (e *Engine) validateAction(i int, am map[string]any, report *ValidationReport) (models.Action, bool) {
	typ, _ := am["type"].(string)
	kind := models.ActionKind(strings.ToUpper(strings.TrimSpace(typ)))
	if kind == "" {
		report.fail(fmt.Sprintf("action %d: missing type", i))
		return models.Action{}, false
	}
	if !models.KnownActionKind(kind) {
		report.fail(fmt.Sprintf("action %d: unknown type %q", i, typ))
		return models.Action{}, false
	}
	if !e.actionEnabled(kind) {
		report.fail(fmt.Sprintf("action %d: type %s is not enabled", i, kind))
		return models.Action{}, false
	}

	params, _ := am["params"].(map[string]any)
	spec := actionParamSpecs[kind]
	missing := false
	for _, key := range spec.required {
		if !paramPresent(params, key) {
			report.fail(fmt.Sprintf("action %d (%s): missing required parameter %q", i, kind, key))
			missing = true
		}
	}
	for _, key := range spec.optional {
		if !paramPresent(params, key) {
			report.warn(fmt.Sprintf("action %d (%s): optional parameter %q not set", i, kind, key))
		}
	}

	act := models.Action{Kind: kind, Priority: models.DefaultActionPriority}
	if pv, exists := am["priority"]; exists {
		if p, ok := toInt(pv); ok && p >= models.MinActionPriority && p <= models.MaxActionPriority {
			act.Priority = p
		} else {
			report.fail(fmt.Sprintf("action %d: priority must be an integer between %d and %d",
				i, models.MinActionPriority, models.MaxActionPriority))
			missing = true
		}
	}
	if missing {
		return models.Action{}, false
	}

	if b, ok := am["requires_confirmation"].(bool); ok {
		act.RequiresConfirmation = b
	}
	if dv, exists := am["delay_ms"]; exists {
		if ms, ok := toFloat(dv); ok && ms >= 0 {
			act.Delay = time.Duration(ms) * time.Millisecond
		} else {
			report.warn(fmt.Sprintf("action %d: delay_ms ignored: not a non-negative number", i))
		}
	}
	if pc, ok := am["precondition"].(map[string]any); ok {
		pt, _ := pc["type"].(string)
		pp, _ := pc["params"].(map[string]any)
		if pt != "" {
			act.Precondition = &models.Precondition{Type: pt, Params: pp}
		}
	}

	switch kind {
	case models.ActionAssignPipeline:
		act.AssignPipeline = &models.AssignPipelinePayload{
			TaskID:     stringParam(params, "task_id"),
			PipelineID: stringParam(params, "pipeline_id"),
			StageID:    stringParam(params, "stage_id"),
			Reason:     stringParam(params, "reason"),
		}
	case models.ActionSendNotification:
		act.SendNotification = &models.SendNotificationPayload{
			Recipients: stringListParam(params, "recipients"),
			Subject:    stringParam(params, "subject"),
			Body:       stringParam(params, "body"),
			Channel:    stringParam(params, "channel"),
		}
	case models.ActionCreateEvent:
		act.CreateEvent = &models.CreateEventPayload{
			Title:       stringParam(params, "title"),
			StartTime:   stringParam(params, "start_time"),
			EndTime:     stringParam(params, "end_time"),
			Attendees:   stringListParam(params, "attendees"),
			Location:    stringParam(params, "location"),
			Description: stringParam(params, "description"),
		}
	case models.ActionEscalate:
		act.Escalate = &models.EscalatePayload{
			Reason: stringParam(params, "reason"),
			Target: stringParam(params, "target"),
			Level:  stringParam(params, "level"),
		}
	case models.ActionUpdateStatus:
		act.UpdateStatus = &models.UpdateStatusPayload{
			TaskID:  stringParam(params, "task_id"),
			Status:  stringParam(params, "status"),
			Comment: stringParam(params, "comment"),
		}
	case models.ActionNoAction:
		act.NoAction = &models.NoActionPayload{Reason: stringParam(params, "reason")}
	}
	return act, true
}

func (r *ValidationReport) fail(msg string) { r.Errors = append(r.Errors, msg) }
func (r *ValidationReport) warn(msg string) { r.Warnings = append(r.Warnings, msg) }

func decodeAlternatives(raw any) []models.Alternative {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var alts []models.Alternative
	for _, entry := range list {
		am, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		alt := models.Alternative{}
		alt.Intent, _ = am["intent"].(string)
		alt.Confidence, _ = toFloat(am["confidence"])
		alt.Reason, _ = am["reason"].(string)
		if alt.Intent != "" {
			alts = append(alts, alt)
		}
	}
	return alts
}

// paramPresent reports whether a parameter carries a usable value: a
// non-blank string, a non-empty list or object, or any number or boolean.
func paramPresent(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprintf("%v", v)
}

// stringListParam reads a list parameter, tolerating a single bare string.
func stringListParam(params map[string]any, key string) []string {
	v, ok := params[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []any:
		var out []string
		for _, item := range t {
			if s := strings.TrimSpace(fmt.Sprintf("%v", item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
