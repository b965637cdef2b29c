package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/taskpilot/pkg/models"
)

// MemoryTaskStore provides an in-memory TaskStore.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
}

// NewMemoryTaskStore creates an in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]*models.Task)}
}

// PutTask inserts or replaces a task. Seeding helper; not part of TaskStore.
func (s *MemoryTaskStore) PutTask(task *models.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *MemoryTaskStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return task.Clone(), nil
}

func (s *MemoryTaskStore) UpdateTaskAgentState(ctx context.Context, taskID, decisionID string) error {
	if taskID == "" || decisionID == "" {
		return fmt.Errorf("task id and decision id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if task.AgentState == nil {
		task.AgentState = &models.TaskAgentState{}
	}
	now := time.Now()
	task.AgentState.RecordDecision(decisionID, now)
	task.UpdatedAt = now
	return nil
}

// MemoryTemplateStore provides an in-memory TemplateStore.
type MemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*models.TaskTemplate
}

// NewMemoryTemplateStore creates an in-memory template store.
func NewMemoryTemplateStore() *MemoryTemplateStore {
	return &MemoryTemplateStore{templates: make(map[string]*models.TaskTemplate)}
}

// PutTemplate inserts or replaces a template. Seeding helper.
func (s *MemoryTemplateStore) PutTemplate(tpl *models.TaskTemplate) error {
	if tpl == nil || tpl.ID == "" {
		return fmt.Errorf("template is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[tpl.ID] = tpl
	return nil
}

func (s *MemoryTemplateStore) GetTemplate(ctx context.Context, id string) (*models.TaskTemplate, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return tpl, nil
}

// MemoryDecisionLogStore provides an in-memory DecisionLogStore.
type MemoryDecisionLogStore struct {
	mu      sync.RWMutex
	entries map[string]*models.DecisionLogEntry
	byTask  map[string][]string
}

// NewMemoryDecisionLogStore creates an in-memory decision log store.
func NewMemoryDecisionLogStore() *MemoryDecisionLogStore {
	return &MemoryDecisionLogStore{
		entries: make(map[string]*models.DecisionLogEntry),
		byTask:  make(map[string][]string),
	}
}

func (s *MemoryDecisionLogStore) CreateDecisionLog(ctx context.Context, entry *models.DecisionLogEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("entry is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[entry.ID]; exists {
		return ErrAlreadyExists
	}
	stored := entry.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.entries[stored.ID] = stored
	s.byTask[stored.TaskID] = append(s.byTask[stored.TaskID], stored.ID)
	return nil
}

func (s *MemoryDecisionLogStore) UpdateDecisionLog(ctx context.Context, id string, update *models.DecisionLogUpdate) error {
	if id == "" {
		return ErrNotFound
	}
	if update == nil {
		return fmt.Errorf("update is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	if update.Status != "" {
		entry.Status = update.Status
	}
	if update.ExecutionResults != nil {
		entry.ExecutionResults = append([]models.ActionResult(nil), update.ExecutionResults...)
	}
	if update.Error != "" {
		entry.Error = update.Error
	}
	if update.CompletedAt != nil {
		at := *update.CompletedAt
		entry.CompletedAt = &at
	}
	return nil
}

func (s *MemoryDecisionLogStore) RecentDecisions(ctx context.Context, taskID string, limit int) ([]*models.DecisionLogEntry, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byTask[taskID]
	entries := make([]*models.DecisionLogEntry, 0, len(ids))
	for _, id := range ids {
		if entry, ok := s.entries[id]; ok {
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]*models.DecisionLogEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry.Clone()
	}
	return out, nil
}

// NewMemorySet constructs a Set backed by memory.
func NewMemorySet() Set {
	return Set{
		Tasks:     NewMemoryTaskStore(),
		Templates: NewMemoryTemplateStore(),
		Decisions: NewMemoryDecisionLogStore(),
	}
}
