// Package store defines the persistence surface the agent consumes and an
// in-memory implementation for tests and embedding. Persistent backends live
// outside this module and implement the same interfaces.
package store

import (
	"context"
	"errors"

	"github.com/haasonsaas/taskpilot/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// TaskStore reads tasks and records agent activity on them.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	// UpdateTaskAgentState appends a decision id to the task's agent state.
	// Read-then-write; last writer wins.
	UpdateTaskAgentState(ctx context.Context, taskID, decisionID string) error
}

// TemplateStore reads task templates. Templates are reference data; callers
// must not mutate what they get back.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (*models.TaskTemplate, error)
}

// DecisionLogStore persists the append-only decision trail.
type DecisionLogStore interface {
	// RecentDecisions returns a task's latest entries, newest first. A
	// non-positive limit means no cap.
	RecentDecisions(ctx context.Context, taskID string, limit int) ([]*models.DecisionLogEntry, error)
	CreateDecisionLog(ctx context.Context, entry *models.DecisionLogEntry) error
	// UpdateDecisionLog applies the single post-execution update. Zero-value
	// fields on the update are left untouched.
	UpdateDecisionLog(ctx context.Context, id string, update *models.DecisionLogUpdate) error
}

// Set groups the storage dependencies the agent needs.
type Set struct {
	Tasks     TaskStore
	Templates TemplateStore
	Decisions DecisionLogStore
	closer    func() error
}

// Close closes any underlying resources.
func (s Set) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
