package models

import (
	"fmt"
	"testing"
	"time"
)

func TestTaskStatus_Constants(t *testing.T) {
	tests := []struct {
		constant TaskStatus
		expected string
	}{
		{TaskStatusNew, "new"},
		{TaskStatusInProgress, "in_progress"},
		{TaskStatusBlocked, "blocked"},
		{TaskStatusDone, "done"},
		{TaskStatusArchived, "archived"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestTask_Overridden(t *testing.T) {
	var nilTask *Task
	if nilTask.Overridden() {
		t.Error("nil task reported overridden")
	}

	task := &Task{ID: "t1"}
	if task.Overridden() {
		t.Error("task without override block reported overridden")
	}

	task.Override = &TaskOverride{Overridden: false}
	if task.Overridden() {
		t.Error("override block with flag unset reported overridden")
	}

	task.Override = &TaskOverride{Overridden: true, By: "ops@x.io", At: time.Now()}
	if !task.Overridden() {
		t.Error("overridden task reported not overridden")
	}
}

func TestTaskAgentState_RecordDecision(t *testing.T) {
	state := &TaskAgentState{}
	now := time.Now()

	state.RecordDecision("d1", now)
	if state.LastDecisionID != "d1" {
		t.Errorf("LastDecisionID = %q, want %q", state.LastDecisionID, "d1")
	}
	if !state.LastDecisionAt.Equal(now) {
		t.Errorf("LastDecisionAt = %v, want %v", state.LastDecisionAt, now)
	}
	if len(state.DecisionIDs) != 1 {
		t.Fatalf("DecisionIDs length = %d, want 1", len(state.DecisionIDs))
	}
}

func TestTaskAgentState_RecordDecisionTrimsHistory(t *testing.T) {
	state := &TaskAgentState{}
	base := time.Now()

	for i := 0; i < maxDecisionHistory+10; i++ {
		state.RecordDecision(fmt.Sprintf("d%d", i), base.Add(time.Duration(i)*time.Second))
	}

	if len(state.DecisionIDs) != maxDecisionHistory {
		t.Fatalf("DecisionIDs length = %d, want %d", len(state.DecisionIDs), maxDecisionHistory)
	}
	// The oldest entries fall off; the newest survives at the tail.
	if state.DecisionIDs[0] != "d10" {
		t.Errorf("oldest retained = %q, want %q", state.DecisionIDs[0], "d10")
	}
	last := fmt.Sprintf("d%d", maxDecisionHistory+9)
	if state.DecisionIDs[len(state.DecisionIDs)-1] != last {
		t.Errorf("newest retained = %q, want %q", state.DecisionIDs[len(state.DecisionIDs)-1], last)
	}
	if state.LastDecisionID != last {
		t.Errorf("LastDecisionID = %q, want %q", state.LastDecisionID, last)
	}
}

func TestTask_Clone(t *testing.T) {
	now := time.Now()
	original := &Task{
		ID:       "t1",
		TenantID: "tenant-1",
		Title:    "Renew contract",
		Status:   TaskStatusInProgress,
		AgentState: &TaskAgentState{
			DecisionIDs:    []string{"d1", "d2"},
			LastDecisionID: "d2",
			LastDecisionAt: now,
		},
		Override: &TaskOverride{Overridden: true, By: "ops@x.io"},
		Metadata: map[string]any{"source": "crm"},
	}

	clone := original.Clone()
	if clone == original {
		t.Fatal("Clone returned the same pointer")
	}

	clone.AgentState.DecisionIDs[0] = "mutated"
	clone.AgentState.RecordDecision("d3", now)
	clone.Override.Overridden = false
	clone.Metadata["source"] = "mutated"

	if original.AgentState.DecisionIDs[0] != "d1" {
		t.Error("mutating the clone's decision history changed the original")
	}
	if len(original.AgentState.DecisionIDs) != 2 {
		t.Errorf("original history length = %d, want 2", len(original.AgentState.DecisionIDs))
	}
	if !original.Override.Overridden {
		t.Error("mutating the clone's override changed the original")
	}
	if original.Metadata["source"] != "crm" {
		t.Error("mutating the clone's metadata changed the original")
	}
}

func TestTaskEvent_EntityID(t *testing.T) {
	tests := []struct {
		name  string
		event TaskEvent
		want  string
	}{
		{
			name:  "direct task id",
			event: TaskEvent{TaskID: "t1"},
			want:  "t1",
		},
		{
			name:  "snake case payload fallback",
			event: TaskEvent{Payload: map[string]any{"task_id": "t2"}},
			want:  "t2",
		},
		{
			name:  "camel case payload fallback",
			event: TaskEvent{Payload: map[string]any{"taskId": "t3"}},
			want:  "t3",
		},
		{
			name:  "entity id payload fallback",
			event: TaskEvent{Payload: map[string]any{"entity_id": "t4"}},
			want:  "t4",
		},
		{
			name:  "direct id wins over payload",
			event: TaskEvent{TaskID: "t5", Payload: map[string]any{"task_id": "other"}},
			want:  "t5",
		},
		{
			name:  "nothing resolvable",
			event: TaskEvent{Payload: map[string]any{"note": "hi"}},
			want:  "",
		},
		{
			name:  "non-string payload value ignored",
			event: TaskEvent{Payload: map[string]any{"task_id": 42}},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.EntityID(); got != tt.want {
				t.Errorf("EntityID() = %q, want %q", got, tt.want)
			}
		})
	}
}
