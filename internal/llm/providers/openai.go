package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/taskpilot/internal/llm"
)

// OpenAIProvider implements the llm.Provider interface for OpenAI's chat
// completion API. A custom base URL routes the same adapter to any
// OpenAI-compatible gateway.
//
// Thread Safety:
// OpenAIProvider is safe for concurrent use across multiple goroutines.
type OpenAIProvider struct {
	client       *openai.Client
	apiKey       string
	defaultModel string
}

var _ llm.Provider = (*OpenAIProvider)(nil)

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. An empty key defers readiness; see
	// Ready().
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible gateways.
	// Example: "https://openrouter.ai/api/v1"
	BaseURL string

	// DefaultModel is used when a request doesn't specify one.
	// Default: "gpt-4o"
	DefaultModel string
}

// NewOpenAIProvider creates an OpenAI provider instance. The returned
// provider is never nil; credential presence is reported through Ready().
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientConfig.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
	}
}

// Name returns the provider identifier. Always "openai".
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Ready reports whether an API key is configured.
func (p *OpenAIProvider) Ready() bool {
	return p.apiKey != ""
}

// Complete sends a chat completion request and returns the full response.
// OpenAI accepts system messages inline, so the conversation maps directly.
func (p *OpenAIProvider) Complete(ctx context.Context, req *llm.ProviderRequest) (*llm.ProviderResponse, error) {
	if !p.Ready() {
		return nil, llm.NewError("openai", req.Model, errors.New("api key not configured"))
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: p.convertMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err, model)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewError("openai", model, errors.New("response contained no choices"))
	}

	choice := resp.Choices[0]
	return &llm.ProviderResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (p *OpenAIProvider) convertMessages(messages []llm.ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case llm.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case llm.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		result = append(result, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return result
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if llm.IsClientError(err) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		wrapped := llm.NewError("openai", model, err).
			WithStatus(apiErr.HTTPStatusCode).
			WithMessage(apiErr.Message)
		// The code field is more specific than the type field: an invalid
		// key arrives as type invalid_request_error, code invalid_api_key.
		if apiErr.Code != nil {
			wrapped = wrapped.WithCode(fmt.Sprintf("%v", apiErr.Code))
		} else if apiErr.Type != "" {
			wrapped = wrapped.WithCode(apiErr.Type)
		}
		return wrapped
	}

	return llm.NewError("openai", model, err)
}
