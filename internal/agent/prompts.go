package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/taskpilot/internal/llm"
	"github.com/haasonsaas/taskpilot/pkg/models"
)

// actionCatalog documents each action kind's parameter contract for the
// model. The decision engine enforces the same requirements on the way back.
var actionCatalog = map[models.ActionKind]string{
	models.ActionAssignPipeline:   "params: task_id, pipeline_id (required); stage_id, reason (optional)",
	models.ActionSendNotification: "params: recipients, subject, body (required); channel (optional)",
	models.ActionCreateEvent:      "params: title, start_time (required); end_time, attendees, location, description (optional)",
	models.ActionEscalate:         "params: reason (required); target, level (optional)",
	models.ActionUpdateStatus:     "params: task_id, status (required); comment (optional)",
	models.ActionNoAction:         "params: reason (required)",
}

// promptBuilder renders the system and user prompts for one decision
// request. The user prompt carries the task, the triggering event, and as
// much recent decision history as the token budget allows, dropping the
// oldest entries first.
type promptBuilder struct {
	budget    int
	enabled   []models.ActionKind
	estimator *llm.Estimator
}

func newPromptBuilder(budget int, enabled []models.ActionKind) *promptBuilder {
	return &promptBuilder{
		budget:    budget,
		enabled:   enabled,
		estimator: llm.NewEstimator(),
	}
}

// Build returns the system and user prompts. history must be ordered newest
// first, as the decision log store returns it.
func (p *promptBuilder) Build(template *models.TaskTemplate, task *models.Task, event *models.TaskEvent, history []*models.DecisionLogEntry) (string, string) {
	system := p.systemPrompt(template)
	base := p.userBase(task, event)

	lines := make([]string, 0, len(history))
	for _, entry := range history {
		lines = append(lines, historyLine(entry))
	}
	kept := p.fitHistory(system, base, lines)

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("## Recent decisions (most recent first)\n")
	if len(kept) == 0 {
		b.WriteString("none\n")
	} else {
		for _, line := range kept {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nDecide what to do next for this task.\n")
	return system, b.String()
}

func (p *promptBuilder) systemPrompt(template *models.TaskTemplate) string {
	var b strings.Builder
	if s := strings.TrimSpace(template.SystemPrompt); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	b.WriteString("Reply with a single JSON object and nothing else:\n")
	b.WriteString(`{"intent": "<what you are doing>", "confidence": <0.0-1.0>, "reasoning": "<why>", "actions": [{"type": "<TYPE>", "params": {<parameters>}, "priority": <1-5>}]}`)
	b.WriteString("\n\nAction types:\n")
	for _, kind := range p.enabled {
		fmt.Fprintf(&b, "- %s: %s\n", kind, actionCatalog[kind])
	}

	if len(template.Pipelines) > 0 {
		b.WriteString("\nPipelines:\n")
		for _, pl := range template.Pipelines {
			fmt.Fprintf(&b, "- %s: %s", pl.ID, pl.Name)
			if pl.Description != "" {
				fmt.Fprintf(&b, " (%s)", pl.Description)
			}
			b.WriteString("\n")
		}
	}
	if len(template.Stages) > 0 {
		b.WriteString("\nStages:\n")
		for _, st := range template.Stages {
			fmt.Fprintf(&b, "- %s: %s", st.ID, st.Name)
			if st.Description != "" {
				fmt.Fprintf(&b, " (%s)", st.Description)
			}
			b.WriteString("\n")
		}
	}
	if len(template.Rules) > 0 {
		b.WriteString("\nRules:\n")
		for _, rule := range template.Rules {
			fmt.Fprintf(&b, "- %s\n", rule)
		}
	}
	return b.String()
}

func (p *promptBuilder) userBase(task *models.Task, event *models.TaskEvent) string {
	var b strings.Builder
	b.WriteString("## Task\n")
	fmt.Fprintf(&b, "ID: %s\n", task.ID)
	fmt.Fprintf(&b, "Title: %s\n", task.Title)
	fmt.Fprintf(&b, "Status: %s\n", task.Status)
	if task.PipelineID != "" {
		fmt.Fprintf(&b, "Pipeline: %s\n", task.PipelineID)
	}
	if task.StageID != "" {
		fmt.Fprintf(&b, "Stage: %s\n", task.StageID)
	}
	if task.Priority != 0 {
		fmt.Fprintf(&b, "Priority: %d\n", task.Priority)
	}
	if task.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", task.Description)
	}

	b.WriteString("\n## Event\n")
	fmt.Fprintf(&b, "Name: %s\n", event.Name)
	if !event.OccurredAt.IsZero() {
		fmt.Fprintf(&b, "Occurred: %s\n", event.OccurredAt.UTC().Format(time.RFC3339))
	}
	if len(event.Payload) > 0 {
		if payload, err := json.Marshal(event.Payload); err == nil {
			fmt.Fprintf(&b, "Payload: %s\n", payload)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// fitHistory returns the newest prefix of lines that keeps the whole request
// inside the token budget. A non-positive budget keeps everything.
func (p *promptBuilder) fitHistory(system, base string, lines []string) []string {
	if p.budget <= 0 {
		return lines
	}
	remaining := p.budget - p.estimator.Estimate(system) - p.estimator.Estimate(base)
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		cost := p.estimator.Estimate(line)
		if cost > remaining {
			break
		}
		remaining -= cost
		kept = append(kept, line)
	}
	return kept
}

func historyLine(entry *models.DecisionLogEntry) string {
	ts := entry.CreatedAt.UTC().Format(time.RFC3339)
	if entry.Decision == nil {
		return fmt.Sprintf("- [%s] status=%s", ts, entry.Status)
	}
	return fmt.Sprintf("- [%s] intent=%s status=%s confidence=%.2f: %s",
		ts, entry.Decision.Intent, entry.Status, entry.Decision.Confidence, entry.Decision.Reasoning)
}
