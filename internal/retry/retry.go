// Package retry drives attempt loops for operations that fail transiently.
// Delay shaping lives in the backoff package; retry decides whether and how
// long to keep going.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/taskpilot/internal/backoff"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int
	// Policy shapes the delay between attempts.
	Policy backoff.Policy
	// Retryable decides whether a failure is worth another attempt. When nil,
	// every non-permanent error is retried.
	Retryable func(error) bool
	// RetryAfter extracts a server-supplied wait hint from a failure. A
	// positive hint replaces the computed delay, clamped to Policy.Max.
	RetryAfter func(error) (time.Duration, bool)
}

// DefaultConfig returns the configuration used for model calls: one initial
// attempt plus three retries on a 1s/2s/4s schedule.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 4,
		Policy:      backoff.ModelCallPolicy(),
	}
}

// Result contains the outcome of a retry operation.
type Result struct {
	// Attempts is the number of attempts made.
	Attempts int
	// Err is the last error (nil if successful).
	Err error
	// Duration is the total time spent retrying.
	Duration time.Duration
}

// Do executes the operation with retries. The operation receives the current
// attempt number (1-indexed). Context cancellation is checked before each
// attempt and during backoff sleeps.
func Do(ctx context.Context, config Config, op func(attempt int) error) Result {
	start := time.Now()
	result := Result{}

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.Policy.Initial <= 0 {
		config.Policy.Initial = time.Second
	}
	if config.Policy.Max <= 0 {
		config.Policy.Max = 60 * time.Second
	}
	if config.Policy.Factor <= 0 {
		config.Policy.Factor = 2.0
	}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if ctx.Err() != nil {
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		}

		err := op(attempt)
		if err == nil {
			result.Err = nil
			result.Duration = time.Since(start)
			return result
		}
		result.Err = err

		retryable := !IsPermanent(err)
		if config.Retryable != nil {
			retryable = config.Retryable(err)
		}
		if !retryable {
			result.Duration = time.Since(start)
			return result
		}

		if attempt >= config.MaxAttempts {
			break
		}

		delay := backoff.Compute(config.Policy, attempt)
		if config.RetryAfter != nil {
			if hint, ok := config.RetryAfter(err); ok && hint > 0 {
				delay = hint
				if delay > config.Policy.Max {
					delay = config.Policy.Max
				}
			}
		}
		if err := backoff.SleepWithContext(ctx, delay); err != nil {
			result.Err = err
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Duration = time.Since(start)
	return result
}

// DoWithValue executes an operation that returns a value with retries.
func DoWithValue[T any](ctx context.Context, config Config, op func(attempt int) (T, error)) (T, Result) {
	var value T
	result := Do(ctx, config, func(attempt int) error {
		var err error
		value, err = op(attempt)
		return err
	})
	return value, result
}

// PermanentError is an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps an error to indicate it should not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is permanent (shouldn't retry).
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// IsRetryable checks if an error is retryable (not permanent and not nil).
func IsRetryable(err error) bool {
	return err != nil && !IsPermanent(err)
}
