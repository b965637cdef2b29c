package llm

import (
	"context"
	"time"

	"github.com/haasonsaas/taskpilot/internal/ratelimit"
)

// Role identifies who authored a chat message.
type Role string

const (
	// RoleSystem sets the assistant's behavior. At most one system message
	// leads the conversation.
	RoleSystem Role = "system"

	// RoleUser carries the caller's request.
	RoleUser Role = "user"

	// RoleAssistant carries a prior model reply, used for history.
	RoleAssistant Role = "assistant"
)

// KnownRole returns true if r is one of the recognized roles.
func KnownRole(r Role) bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// ChatMessage is a single message in a conversation. Order is semantically
// meaningful: the system message, when present, comes first.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// Usage contains token counts for one completed request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelResponse is the normalized result of one model call.
// It is immutable once returned.
type ModelResponse struct {
	// Content is the model's text output
	Content string `json:"content"`

	// Provider is the backend that served the request
	Provider string `json:"provider"`

	// Model is the model that produced the response
	Model string `json:"model"`

	// FinishReason is the provider's stop reason, normalized to a string
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage contains token counts reported by the provider
	Usage Usage `json:"usage"`

	// LatencyMs is the measured wall-clock duration of the successful
	// attempt, in milliseconds
	LatencyMs int64 `json:"latency_ms"`
}

// CompletionOptions overrides per-request generation parameters.
// Zero values defer to the client's configuration.
type CompletionOptions struct {
	// Model overrides the configured model for this request
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature controls sampling randomness (0 = deterministic)
	Temperature float64
}

// Provider is the backend-specific completion surface the client drives.
//
// Implementations must be safe for concurrent use. The request's Messages
// may include system-role entries; adapters map them onto whatever system
// mechanism their API exposes.
type Provider interface {
	// Name returns the provider name (e.g., "anthropic").
	Name() string

	// Ready returns true iff required credentials/config are present.
	Ready() bool

	// Complete performs one chat completion attempt.
	Complete(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)
}

// ProviderRequest contains the parameters for one provider attempt.
type ProviderRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ProviderResponse is a provider's raw reply before client normalization.
type ProviderResponse struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

// Config controls the model client's resilience behavior.
type Config struct {
	// Model is the default model identifier; empty uses the provider default
	Model string `yaml:"model"`

	// MaxTokens is the default response-length cap
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the default sampling temperature
	Temperature float64 `yaml:"temperature"`

	// Timeout bounds each individual attempt
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int `yaml:"max_retries"`

	// RateLimit configures the fixed request/token window
	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

// DefaultConfig returns the client defaults: 60s per attempt, three retries
// on the 1s/2s/4s backoff schedule, and the standard request/token window.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   4096,
		Temperature: 0.2,
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		RateLimit:   ratelimit.DefaultConfig(),
	}
}
