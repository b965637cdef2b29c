package executor

import (
	"context"
	"sync"

	"github.com/haasonsaas/taskpilot/pkg/models"
)

// RecordedCall is one ExecuteActions invocation seen by a RecordingExecutor.
type RecordedCall struct {
	Actions []models.Action
	Request Request
}

// RecordingExecutor is an ActionExecutor test double: it records every call
// and reports success unless told otherwise.
type RecordingExecutor struct {
	mu    sync.Mutex
	calls []RecordedCall

	// Err, when set, is returned from ExecuteActions with no results.
	Err error
	// FailKind, when set, produces a failed result for the first action of
	// that kind and stops there, like the registry dispatcher would.
	FailKind models.ActionKind
}

// NewRecordingExecutor creates an executor that succeeds at everything.
func NewRecordingExecutor() *RecordingExecutor {
	return &RecordingExecutor{}
}

func (r *RecordingExecutor) ExecuteActions(ctx context.Context, actions []models.Action, req Request) ([]models.ActionResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, RecordedCall{
		Actions: append([]models.Action(nil), actions...),
		Request: req,
	})
	r.mu.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}

	results := make([]models.ActionResult, 0, len(actions))
	for _, action := range actions {
		if r.FailKind != "" && action.Kind == r.FailKind {
			results = append(results, models.ActionResult{
				Action: action,
				Error:  "forced failure",
			})
			break
		}
		results = append(results, models.ActionResult{Action: action, Success: true})
	}
	return results, nil
}

// Calls returns a snapshot of the recorded invocations.
func (r *RecordingExecutor) Calls() []RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedCall(nil), r.calls...)
}

// CallCount reports how many times ExecuteActions ran.
func (r *RecordingExecutor) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
