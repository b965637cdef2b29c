// Package executor defines the action execution surface the agent dispatches
// validated decisions to, plus a registry dispatcher for embedding and tests.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/haasonsaas/taskpilot/pkg/models"
)

// Request carries the execution context for one decision's actions.
type Request struct {
	TaskID        string
	TenantID      string
	CorrelationID string
	// DryRun reports success for every action without invoking handlers.
	DryRun bool
}

// ActionExecutor executes a decision's actions. Implementations must return
// one result per attempted action, in action order.
type ActionExecutor interface {
	ExecuteActions(ctx context.Context, actions []models.Action, req Request) ([]models.ActionResult, error)
}

// HandlerFunc executes one action. Returned data is attached to the result.
type HandlerFunc func(ctx context.Context, action models.Action, req Request) (map[string]any, error)

// Registry dispatches actions to per-kind handlers, sequentially in action
// order. Each action is timed, handler panics become failed results, and
// execution stops after the first failure. Action delays are carried as data;
// scheduling them is the handler's concern.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.ActionKind]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.ActionKind]HandlerFunc)}
}

// Register installs the handler for an action kind, replacing any previous
// one.
func (r *Registry) Register(kind models.ActionKind, h HandlerFunc) error {
	if !models.KnownActionKind(kind) {
		return fmt.Errorf("unknown action kind %q", kind)
	}
	if h == nil {
		return fmt.Errorf("handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
	return nil
}

func (r *Registry) handler(kind models.ActionKind) HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[kind]
}

// ExecuteActions runs the actions in order and stops after the first failure.
// The returned slice covers only attempted actions. The error is non-nil only
// when the context ended before all actions were attempted.
func (r *Registry) ExecuteActions(ctx context.Context, actions []models.Action, req Request) ([]models.ActionResult, error) {
	results := make([]models.ActionResult, 0, len(actions))
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result := r.executeOne(ctx, action, req)
		results = append(results, result)
		if !result.Success {
			break
		}
	}
	return results, nil
}

func (r *Registry) executeOne(ctx context.Context, action models.Action, req Request) models.ActionResult {
	result := models.ActionResult{Action: action}

	if req.DryRun {
		result.Success = true
		result.Data = map[string]any{"dry_run": true}
		return result
	}
	if action.IsNoAction() {
		// The marker needs no handler.
		result.Success = true
		return result
	}

	h := r.handler(action.Kind)
	if h == nil {
		result.Error = fmt.Sprintf("no handler registered for %s", action.Kind)
		return result
	}

	start := time.Now()
	data, err := invoke(ctx, h, action, req)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.Data = data
	return result
}

// invoke runs a handler, converting panics into errors.
func invoke(ctx context.Context, h HandlerFunc, action models.Action, req Request) (data map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return h(ctx, action, req)
}
