package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/taskpilot/pkg/models"
)

func TestMemoryTaskStore(t *testing.T) {
	s := NewMemoryTaskStore()
	task := &models.Task{
		ID:        uuid.NewString(),
		TenantID:  "tenant-1",
		Title:     "Fix exporter crash",
		Status:    models.TaskStatusNew,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.PutTask(task); err != nil {
		t.Fatalf("PutTask() error = %v", err)
	}

	got, err := s.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.Title != task.Title {
		t.Fatalf("GetTask() title = %q", got.Title)
	}

	// The store hands out copies: mutating a result must not leak back.
	got.Title = "mutated"
	again, err := s.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetTask() repeat error = %v", err)
	}
	if again.Title != "Fix exporter crash" {
		t.Errorf("stored task mutated through a returned copy: %q", again.Title)
	}

	if _, err := s.GetTask(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryTaskStoreAgentState(t *testing.T) {
	s := NewMemoryTaskStore()
	task := &models.Task{ID: "tsk-1", Status: models.TaskStatusNew}
	if err := s.PutTask(task); err != nil {
		t.Fatalf("PutTask() error = %v", err)
	}

	if err := s.UpdateTaskAgentState(context.Background(), "tsk-1", "dec-1"); err != nil {
		t.Fatalf("UpdateTaskAgentState() error = %v", err)
	}
	if err := s.UpdateTaskAgentState(context.Background(), "tsk-1", "dec-2"); err != nil {
		t.Fatalf("UpdateTaskAgentState() repeat error = %v", err)
	}

	got, err := s.GetTask(context.Background(), "tsk-1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.AgentState == nil {
		t.Fatal("AgentState = nil after recording decisions")
	}
	if got.AgentState.LastDecisionID != "dec-2" {
		t.Errorf("LastDecisionID = %q, want dec-2", got.AgentState.LastDecisionID)
	}
	if len(got.AgentState.DecisionIDs) != 2 {
		t.Errorf("DecisionIDs = %v, want 2 entries", got.AgentState.DecisionIDs)
	}

	if err := s.UpdateTaskAgentState(context.Background(), "missing", "dec-3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTaskAgentState(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryTemplateStore(t *testing.T) {
	s := NewMemoryTemplateStore()
	tpl := &models.TaskTemplate{
		ID:           "tpl-1",
		Name:         "Defect intake",
		TaskType:     "defect",
		SystemPrompt: "You triage defects.",
	}
	if err := s.PutTemplate(tpl); err != nil {
		t.Fatalf("PutTemplate() error = %v", err)
	}

	got, err := s.GetTemplate(context.Background(), "tpl-1")
	if err != nil {
		t.Fatalf("GetTemplate() error = %v", err)
	}
	if got.TaskType != "defect" {
		t.Errorf("TaskType = %q", got.TaskType)
	}

	if _, err := s.GetTemplate(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTemplate(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryDecisionLogStoreLifecycle(t *testing.T) {
	s := NewMemoryDecisionLogStore()
	entry := &models.DecisionLogEntry{
		ID:       "log-1",
		TenantID: "tenant-1",
		TaskID:   "tsk-1",
		EventID:  "evt-1",
		Status:   models.DecisionPending,
	}

	if err := s.CreateDecisionLog(context.Background(), entry); err != nil {
		t.Fatalf("CreateDecisionLog() error = %v", err)
	}
	if err := s.CreateDecisionLog(context.Background(), entry); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("CreateDecisionLog(duplicate) error = %v, want ErrAlreadyExists", err)
	}

	completed := time.Now()
	update := &models.DecisionLogUpdate{
		Status: models.DecisionExecuted,
		ExecutionResults: []models.ActionResult{
			{Action: models.NewNoAction("done"), Success: true},
		},
		CompletedAt: &completed,
	}
	if err := s.UpdateDecisionLog(context.Background(), "log-1", update); err != nil {
		t.Fatalf("UpdateDecisionLog() error = %v", err)
	}

	got, err := s.RecentDecisions(context.Background(), "tsk-1", 10)
	if err != nil {
		t.Fatalf("RecentDecisions() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("RecentDecisions() len = %d, want 1", len(got))
	}
	if got[0].Status != models.DecisionExecuted {
		t.Errorf("Status = %q, want executed", got[0].Status)
	}
	if got[0].CompletedAt == nil {
		t.Error("CompletedAt = nil after update")
	}
	if len(got[0].ExecutionResults) != 1 {
		t.Errorf("ExecutionResults = %v", got[0].ExecutionResults)
	}

	if err := s.UpdateDecisionLog(context.Background(), "missing", update); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateDecisionLog(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryDecisionLogStoreRecentOrderAndLimit(t *testing.T) {
	s := NewMemoryDecisionLogStore()
	base := time.Now()
	for i := 0; i < 5; i++ {
		entry := &models.DecisionLogEntry{
			ID:        fmt.Sprintf("log-%d", i),
			TaskID:    "tsk-1",
			Status:    models.DecisionExecuted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreateDecisionLog(context.Background(), entry); err != nil {
			t.Fatalf("CreateDecisionLog(%d) error = %v", i, err)
		}
	}
	// A different task's entries must not bleed in.
	other := &models.DecisionLogEntry{ID: "log-other", TaskID: "tsk-2", CreatedAt: base}
	if err := s.CreateDecisionLog(context.Background(), other); err != nil {
		t.Fatalf("CreateDecisionLog(other) error = %v", err)
	}

	got, err := s.RecentDecisions(context.Background(), "tsk-1", 3)
	if err != nil {
		t.Fatalf("RecentDecisions() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("RecentDecisions() len = %d, want 3", len(got))
	}
	for i, want := range []string{"log-4", "log-3", "log-2"} {
		if got[i].ID != want {
			t.Errorf("RecentDecisions()[%d] = %s, want %s", i, got[i].ID, want)
		}
	}

	all, err := s.RecentDecisions(context.Background(), "tsk-1", 0)
	if err != nil {
		t.Fatalf("RecentDecisions(no limit) error = %v", err)
	}
	if len(all) != 5 {
		t.Errorf("RecentDecisions(no limit) len = %d, want 5", len(all))
	}
}

func TestNewMemorySet(t *testing.T) {
	set := NewMemorySet()
	if set.Tasks == nil || set.Templates == nil || set.Decisions == nil {
		t.Fatal("NewMemorySet() left a nil store")
	}
	if err := set.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
