package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/haasonsaas/taskpilot/internal/llm"
)

// GoogleProvider implements the llm.Provider interface for Google's Gemini
// API using the Google Gen AI Go SDK.
//
// The provider handles several responsibilities:
//   - Converting the neutral chat-message format to Gemini's content format
//   - Lifting system-role messages into the system instruction
//   - Extracting text parts, finish reason, and usage metadata from responses
//   - Normalizing API failures into the llm error taxonomy; Gemini reports
//     its condition in the message text ("resource exhausted", "permission
//     denied"), so the status is recovered from there
//
// Thread Safety:
// GoogleProvider is safe for concurrent use across multiple goroutines.
type GoogleProvider struct {
	// client is the underlying Google Gen AI SDK client used for API calls.
	client *genai.Client

	// apiKey stores the Google API key for authentication.
	apiKey string

	// defaultModel is used when ProviderRequest.Model is empty.
	// Default: "gemini-2.0-flash"
	defaultModel string
}

var _ llm.Provider = (*GoogleProvider)(nil)

// GoogleConfig holds configuration parameters for creating a GoogleProvider.
type GoogleConfig struct {
	// APIKey is the Google AI API authentication key.
	// Obtain from: https://aistudio.google.com/apikey
	APIKey string

	// DefaultModel sets the model to use when a request doesn't specify one.
	// Default: "gemini-2.0-flash"
	DefaultModel string
}

// NewGoogleProvider creates a Google Gemini provider instance.
//
// With an empty APIKey the SDK client is not constructed; the provider is
// returned with Ready() false and Complete() failing with an api_key error,
// so configuration can arrive later.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}

	p := &GoogleProvider{
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
	}
	if cfg.APIKey == "" {
		return p, nil
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}
	p.client = client
	return p, nil
}

// Name returns the provider identifier. Always "google".
func (p *GoogleProvider) Name() string {
	return "google"
}

// Ready reports whether an API key is configured.
func (p *GoogleProvider) Ready() bool {
	return p.apiKey != "" && p.client != nil
}

// Complete sends a generation request to Gemini and returns the full
// response. System-role messages become the system instruction; user and
// assistant messages map to Gemini's user/model roles.
func (p *GoogleProvider) Complete(ctx context.Context, req *llm.ProviderRequest) (*llm.ProviderResponse, error) {
	if !p.Ready() {
		return nil, llm.NewError("google", req.Model, errors.New("api key not configured"))
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	contents := p.convertMessages(req.Messages)
	config := p.buildConfig(req)

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, p.wrapError(err, model)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, llm.NewError("google", model, errors.New("response contained no candidates"))
	}

	candidate := resp.Candidates[0]
	var content strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				content.WriteString(part.Text)
			}
		}
	}

	out := &llm.ProviderResponse{
		Content:      content.String(),
		Model:        model,
		FinishReason: string(candidate.FinishReason),
	}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// convertMessages maps non-system messages to Gemini content. Assistant
// turns use Gemini's "model" role.
func (p *GoogleProvider) convertMessages(messages []llm.ChatMessage) []*genai.Content {
	result := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			continue
		}
		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		result = append(result, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return result
}

func (p *GoogleProvider) buildConfig(req *llm.ProviderRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if system := joinSystemMessages(req.Messages); system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: system},
			},
		}
	}

	if req.MaxTokens > 0 {
		maxTokens := min(req.MaxTokens, math.MaxInt32)
		// #nosec G115 -- bounded by min above
		config.MaxOutputTokens = int32(maxTokens)
	}

	if req.Temperature > 0 {
		t := float32(req.Temperature)
		config.Temperature = &t
	}

	return config
}

// wrapError recovers the HTTP status from the error message; the Gen AI SDK
// reports conditions as text rather than typed errors.
func (p *GoogleProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if llm.IsClientError(err) {
		return err
	}

	wrapped := llm.NewError("google", model, err)
	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "401") || strings.Contains(errMsg, "unauthenticated") {
		wrapped = wrapped.WithStatus(http.StatusUnauthorized)
	} else if strings.Contains(errMsg, "403") || strings.Contains(errMsg, "permission denied") {
		wrapped = wrapped.WithStatus(http.StatusForbidden)
	} else if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") {
		wrapped = wrapped.WithStatus(http.StatusTooManyRequests)
	} else if strings.Contains(errMsg, "500") {
		wrapped = wrapped.WithStatus(http.StatusInternalServerError)
	} else if strings.Contains(errMsg, "503") {
		wrapped = wrapped.WithStatus(http.StatusServiceUnavailable)
	}

	return wrapped
}
