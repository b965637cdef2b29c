package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorKind categorizes a model-client failure.
// The kind drives retry decisions and how the agent reports the failure.
type ErrorKind string

const (
	// KindValidation indicates malformed input: empty messages, schema
	// mismatch, or an unusable decision structure. Never retried.
	KindValidation ErrorKind = "validation"

	// KindRateLimit indicates the provider or the internal window rejected
	// the request (HTTP 429). Retryable, honors a provider retry-after.
	KindRateLimit ErrorKind = "rate_limit"

	// KindTimeout indicates the attempt exceeded its deadline.
	KindTimeout ErrorKind = "timeout"

	// KindAuthentication indicates credential failure (HTTP 401, 403).
	// Fatal to the call.
	KindAuthentication ErrorKind = "authentication"

	// KindAPIKey indicates a missing or invalid API key. Fatal to the call.
	KindAPIKey ErrorKind = "api_key"

	// KindContentFilter indicates the provider blocked the request or
	// response on safety grounds.
	KindContentFilter ErrorKind = "content_filter"

	// KindModelOverloaded indicates the provider is at capacity (HTTP 503,
	// 529). Marked retryable when classified from a response.
	KindModelOverloaded ErrorKind = "model_overloaded"

	// KindLLM is the catch-all for provider failures that fit no other kind.
	KindLLM ErrorKind = "llm"
)

// Retryable returns true if errors of this kind are retried by default.
// Individual errors can widen this via MarkRetryable; see Error.Retryable.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindTimeout:
		return true
	default:
		return false
	}
}

// Fatal returns true if the kind ends the call outright: no retry will help
// and the caller should surface the error immediately.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindAuthentication, KindAPIKey:
		return true
	default:
		return false
	}
}

// Error represents a structured error from the model client or a provider.
// It captures the context needed for retry logic and debugging.
type Error struct {
	// Kind categorizes the error for retry decisions
	Kind ErrorKind

	// Provider is the name of the provider (e.g., "anthropic", "openai")
	Provider string

	// Model is the model that was requested
	Model string

	// Status is the HTTP status code, if applicable
	Status int

	// Code is the provider-specific error code
	Code string

	// Message is the human-readable error message
	Message string

	// RequestID is the provider's request ID for debugging
	RequestID string

	// RetryAfter is the provider-supplied wait hint, zero when absent
	RetryAfter time.Duration

	// Retryable records whether this specific error may be retried.
	// Kinds that are not retryable by default can still be marked
	// retryable here (an overloaded provider, a transient 5xx).
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))

	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}

	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}

	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error for the given provider and model, classifying
// the kind and retryability from the cause's message.
func NewError(provider, model string, cause error) *Error {
	err := &Error{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Kind:     KindLLM,
	}

	if cause != nil {
		err.Message = cause.Error()
		err.Kind, err.Retryable = classifyMessage(cause.Error())
		if !err.Retryable && isNetworkError(cause) {
			err.Retryable = true
		}
	}

	return err
}

// NewValidationError creates a validation error. Validation errors carry no
// provider context and are never retried.
func NewValidationError(message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
	}
}

// NewTimeoutError creates a timeout error for an attempt that exceeded its
// deadline.
func NewTimeoutError(provider, model string, cause error) *Error {
	return &Error{
		Kind:      KindTimeout,
		Provider:  provider,
		Model:     model,
		Message:   "request timed out",
		Retryable: true,
		Cause:     cause,
	}
}

// WithStatus adds the HTTP status to the error and reclassifies from it.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	e.Kind, e.Retryable = classifyStatus(status)
	return e
}

// WithCode adds a provider-specific error code, reclassifying when the code
// is recognized.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	if kind, retryable, ok := classifyCode(code); ok {
		e.Kind = kind
		e.Retryable = retryable
	}
	return e
}

// WithMessage sets the error message.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// WithRequestID adds the provider's request ID.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// WithRetryAfter records a provider-supplied wait hint. The hint implies the
// request is worth repeating.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	if d > 0 {
		e.RetryAfter = d
		e.Retryable = true
	}
	return e
}

// MarkRetryable overrides the kind's default and flags this error as
// retryable.
func (e *Error) MarkRetryable() *Error {
	e.Retryable = true
	return e
}

// Classify returns the error's kind. Structured errors carry theirs; raw
// errors are classified from their message. Unrecognized errors fall through
// to KindLLM.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindLLM
	}
	if clientErr, ok := GetError(err); ok {
		return clientErr.Kind
	}
	kind, _ := classifyMessage(err.Error())
	return kind
}

func classifyMessage(msg string) (ErrorKind, bool) {
	s := strings.ToLower(msg)

	if strings.Contains(s, "timeout") ||
		strings.Contains(s, "deadline exceeded") ||
		strings.Contains(s, "context deadline") ||
		strings.Contains(s, "etimedout") {
		return KindTimeout, true
	}

	if strings.Contains(s, "rate limit") ||
		strings.Contains(s, "rate_limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "429") {
		return KindRateLimit, true
	}

	// API key before authentication: "invalid api key" is the more specific
	// failure and gets its own kind.
	if strings.Contains(s, "api key") ||
		strings.Contains(s, "api_key") {
		return KindAPIKey, false
	}

	if strings.Contains(s, "unauthorized") ||
		strings.Contains(s, "authentication") ||
		strings.Contains(s, "forbidden") ||
		strings.Contains(s, "401") ||
		strings.Contains(s, "403") {
		return KindAuthentication, false
	}

	if strings.Contains(s, "content_filter") ||
		strings.Contains(s, "content policy") ||
		strings.Contains(s, "safety") ||
		strings.Contains(s, "blocked") {
		return KindContentFilter, false
	}

	if strings.Contains(s, "overloaded") ||
		strings.Contains(s, "at capacity") ||
		strings.Contains(s, "service unavailable") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "529") {
		return KindModelOverloaded, true
	}

	if strings.Contains(s, "internal server") ||
		strings.Contains(s, "server error") ||
		strings.Contains(s, "500") ||
		strings.Contains(s, "502") ||
		strings.Contains(s, "504") {
		return KindLLM, true
	}

	if strings.Contains(s, "invalid request") ||
		strings.Contains(s, "invalid_request") ||
		strings.Contains(s, "malformed") {
		return KindValidation, false
	}

	return KindLLM, false
}

func classifyStatus(status int) (ErrorKind, bool) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthentication, false
	case status == http.StatusTooManyRequests:
		return KindRateLimit, true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout, true
	case status == http.StatusServiceUnavailable || status == 529:
		return KindModelOverloaded, true
	case status >= 500:
		return KindLLM, true
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation, false
	default:
		return KindLLM, false
	}
}

func classifyCode(code string) (ErrorKind, bool, bool) {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded",
		"throttlingexception", "toomanyrequestsexception":
		return KindRateLimit, true, true
	case "authentication_error", "permission_error",
		"accessdeniedexception", "unauthorizedexception":
		return KindAuthentication, false, true
	case "invalid_api_key", "api_key_invalid":
		return KindAPIKey, false, true
	case "content_policy_violation", "content_filter":
		return KindContentFilter, false, true
	case "overloaded_error", "model_overloaded", "serviceunavailableexception":
		return KindModelOverloaded, true, true
	case "timeout", "timeout_error", "modeltimeoutexception":
		return KindTimeout, true, true
	case "invalid_request_error", "validationexception":
		return KindValidation, false, true
	case "server_error", "internal_error", "api_error",
		"internalserverexception", "modelnotreadyexception":
		return KindLLM, true, true
	default:
		return "", false, false
	}
}

// IsClientError checks if an error is an *Error from this package.
func IsClientError(err error) bool {
	var clientErr *Error
	return errors.As(err, &clientErr)
}

// GetError extracts an *Error from an error chain.
func GetError(err error) (*Error, bool) {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr, true
	}
	return nil, false
}

// IsKind reports whether the error chain contains an *Error of the given
// kind.
func IsKind(err error, kind ErrorKind) bool {
	if clientErr, ok := GetError(err); ok {
		return clientErr.Kind == kind
	}
	return false
}

// IsRetryable checks if an error should be retried. Structured errors carry
// their own flag; raw errors fall back to message classification plus a
// network heuristic for transport failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if clientErr, ok := GetError(err); ok {
		return clientErr.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if _, retryable := classifyMessage(err.Error()); retryable {
		return true
	}
	return isNetworkError(err)
}

// RetryAfterHint returns the provider-supplied wait hint from the error
// chain, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	if clientErr, ok := GetError(err); ok && clientErr.RetryAfter > 0 {
		return clientErr.RetryAfter, true
	}
	return 0, false
}

func isNetworkError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "no such host") ||
		strings.Contains(s, "network is unreachable") ||
		strings.Contains(s, "unexpected eof") ||
		strings.Contains(s, "tls handshake")
}
