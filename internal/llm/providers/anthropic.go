package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/taskpilot/internal/llm"
)

// AnthropicProvider implements the llm.Provider interface for Anthropic's
// Claude API.
//
// The provider handles several responsibilities:
//   - Converting the neutral chat-message format to Anthropic's API format
//   - Lifting system-role messages into the request's dedicated system slot
//   - Extracting text content, stop reason, and token usage from responses
//   - Normalizing API failures into the llm error taxonomy with status,
//     provider error code, and request ID attached
//
// Retry policy, timeouts, and rate limiting live in llm.Client; the provider
// performs exactly one API call per Complete invocation.
//
// Thread Safety:
// AnthropicProvider is safe for concurrent use across multiple goroutines.
//
// Example:
//
//	provider := NewAnthropicProvider(AnthropicConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	})
//
//	resp, err := provider.Complete(ctx, &llm.ProviderRequest{
//	    Messages: []llm.ChatMessage{
//	        llm.SystemMessage("You route support tasks."),
//	        llm.UserMessage("Task T-1 has stalled in intake."),
//	    },
//	    MaxTokens: 1024,
//	})
type AnthropicProvider struct {
	// client is the underlying Anthropic SDK client used for API calls.
	client anthropic.Client

	// apiKey stores the Anthropic API key for authentication.
	// Format: sk-ant-api03-...
	apiKey string

	// defaultModel is used when ProviderRequest.Model is empty.
	// Default: "claude-sonnet-4-20250514"
	defaultModel string
}

var _ llm.Provider = (*AnthropicProvider)(nil)

// AnthropicConfig holds configuration parameters for creating an
// AnthropicProvider.
//
// All fields are optional. An empty APIKey produces a provider whose Ready()
// reports false and whose Complete() fails with an api_key error, which lets
// the agent start before credentials arrive.
//
// Example:
//
//	config := AnthropicConfig{
//	    APIKey:       os.Getenv("ANTHROPIC_API_KEY"),
//	    DefaultModel: "claude-opus-4-20250514", // Optional: default sonnet-4
//	}
type AnthropicConfig struct {
	// APIKey is the Anthropic API authentication key.
	// Obtain from: https://console.anthropic.com/
	APIKey string

	// BaseURL overrides the default Anthropic API base URL.
	// Example: "https://api.anthropic.com/"
	BaseURL string

	// DefaultModel sets the model to use when a request doesn't specify one.
	// Default: "claude-sonnet-4-20250514"
	DefaultModel string
}

// NewAnthropicProvider creates an Anthropic provider instance with the given
// configuration. The returned provider is never nil; credential presence is
// reported through Ready().
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(options...),
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
	}
}

// Name returns the provider identifier used for routing, metrics, and
// logging. Always "anthropic".
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Ready reports whether an API key is configured.
func (p *AnthropicProvider) Ready() bool {
	return p.apiKey != ""
}

// Complete sends a completion request to Claude and returns the full
// response.
//
// System-role messages are concatenated into the request's system slot;
// remaining messages map to Anthropic's user/assistant turns. Text content
// blocks are joined into the response content. Failures come back as llm
// errors carrying the HTTP status, Anthropic's error type as the code, and
// the request ID when the API supplied one.
func (p *AnthropicProvider) Complete(ctx context.Context, req *llm.ProviderRequest) (*llm.ProviderResponse, error) {
	if !p.Ready() {
		return nil, llm.NewError("anthropic", req.Model, errors.New("api key not configured"))
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  p.convertMessages(req.Messages),
		MaxTokens: int64(req.MaxTokens),
	}

	if system := joinSystemMessages(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: system,
			},
		}
	}

	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &llm.ProviderResponse{
		Content:      content.String(),
		Model:        string(msg.Model),
		FinishReason: string(msg.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

// convertMessages maps non-system messages to Anthropic's format. System
// messages are skipped here; they travel in params.System.
func (p *AnthropicProvider) convertMessages(messages []llm.ChatMessage) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			continue
		}
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == llm.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(block))
		} else {
			result = append(result, anthropic.NewUserMessage(block))
		}
	}
	return result
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if llm.IsClientError(err) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		wrapped := llm.NewError("anthropic", model, err).WithStatus(apiErr.StatusCode)

		message := ""
		code := ""
		requestID := apiErr.RequestID

		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil {
				message = payload.Error.Message
				code = payload.Error.Type
				if payload.RequestID != "" {
					requestID = payload.RequestID
				}
			}
		}

		if message != "" {
			wrapped = wrapped.WithMessage(message)
		}
		if code != "" {
			wrapped = wrapped.WithCode(code)
		}
		if requestID != "" {
			wrapped = wrapped.WithRequestID(requestID)
		}
		return wrapped
	}

	return llm.NewError("anthropic", model, err)
}

// joinSystemMessages concatenates the content of every system-role message,
// preserving order.
func joinSystemMessages(messages []llm.ChatMessage) string {
	var parts []string
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
