// Package providers implements the model backends behind the llm.Provider
// interface.
//
// Five backends are supported: Anthropic's Claude API, OpenAI's chat API
// (including OpenAI-compatible gateways via a custom base URL), AWS Bedrock's
// Converse API, Google's Gemini API, and a local Ollama daemon. Each adapter
// maps the neutral chat-message format to its SDK, extracts system-role
// messages into the backend's native system slot, and normalizes failures
// into the llm error taxonomy so the client's retry logic treats every
// backend the same way.
//
// Adapters are non-streaming: a completion call returns the full response
// with token usage and a finish reason. Credential checks are deferred to
// Ready() so a provider can be constructed before its key is available.
//
// Example:
//
//	provider, err := providers.New(providers.Config{
//	    Name:   "anthropic",
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	})
//	if err != nil {
//	    return err
//	}
//	client := llm.NewClient(provider, llm.DefaultConfig(), logger, metrics)
package providers

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/taskpilot/internal/llm"
)

// Config selects and configures a model backend.
type Config struct {
	// Name selects the backend: "anthropic", "openai", "bedrock", "google",
	// or "ollama".
	Name string `yaml:"name"`

	// APIKey authenticates against anthropic, openai, and google.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend endpoint. Used for OpenAI-compatible
	// gateways, Anthropic proxies, and non-local Ollama hosts.
	BaseURL string `yaml:"base_url"`

	// Model is the default model when a request does not name one.
	Model string `yaml:"model"`

	// Region is the AWS region for bedrock. Default: us-east-1
	Region string `yaml:"region"`

	// AccessKeyID and SecretAccessKey are explicit AWS credentials for
	// bedrock. When empty the default credential chain is used.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// SessionToken is the optional AWS session token for temporary
	// credentials.
	SessionToken string `yaml:"session_token"`

	// Timeout bounds individual HTTP requests for backends that manage
	// their own transport (ollama).
	Timeout time.Duration `yaml:"timeout"`
}

// New creates the provider named by cfg.Name.
func New(cfg Config) (llm.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
		}), nil
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
		}), nil
	case "bedrock":
		return NewBedrockProvider(BedrockConfig{
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
			DefaultModel:    cfg.Model,
		})
	case "google":
		return NewGoogleProvider(GoogleConfig{
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.Model,
		})
	case "ollama":
		return NewOllamaProvider(OllamaConfig{
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (expected anthropic, openai, bedrock, google, or ollama)", cfg.Name)
	}
}
