package providers

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/haasonsaas/taskpilot/internal/llm"
)

// BedrockProvider implements the llm.Provider interface for AWS Bedrock.
// It provides access to foundation models hosted on AWS including Anthropic
// Claude, Amazon Titan, and Meta Llama via the Converse API.
//
// Authentication is handled via AWS credentials: explicit keys when
// configured, otherwise the default chain (environment, shared config, IAM
// role).
//
// Thread Safety:
// BedrockProvider is safe for concurrent use across multiple goroutines.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
	region       string
}

var _ llm.Provider = (*BedrockProvider)(nil)

// BedrockConfig holds configuration for the Bedrock provider.
type BedrockConfig struct {
	// Region is the AWS region (default: us-east-1)
	Region string

	// AccessKeyID for explicit credentials (optional, uses default chain if empty)
	AccessKeyID string

	// SecretAccessKey for explicit credentials (optional)
	SecretAccessKey string

	// SessionToken for temporary credentials (optional)
	SessionToken string

	// DefaultModel is the model to use when not specified
	// (default: anthropic.claude-3-sonnet-20240229-v1:0)
	DefaultModel string
}

// NewBedrockProvider creates an AWS Bedrock provider instance.
//
// Example with default credentials:
//
//	provider, err := NewBedrockProvider(BedrockConfig{
//	    Region: "us-east-1",
//	})
//
// Example with explicit credentials:
//
//	provider, err := NewBedrockProvider(BedrockConfig{
//	    Region:          "us-west-2",
//	    AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
//	    SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
//	})
func NewBedrockProvider(cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var awsCfg aws.Config
	var err error

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(context.Background(),
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(context.Background(),
			config.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		region:       cfg.Region,
	}, nil
}

// Name returns the provider identifier. Always "bedrock".
func (p *BedrockProvider) Name() string {
	return "bedrock"
}

// Ready reports whether the AWS client was configured. Credential validity
// is only known once a call is made; the default chain resolves lazily.
func (p *BedrockProvider) Ready() bool {
	return p.client != nil
}

// Complete sends a Converse request to Bedrock and returns the full
// response. System-role messages travel in the request's system block;
// the rest map to Converse user/assistant turns.
func (p *BedrockProvider) Complete(ctx context.Context, req *llm.ProviderRequest) (*llm.ProviderResponse, error) {
	if !p.Ready() {
		return nil, llm.NewError("bedrock", req.Model, errors.New("aws client not configured"))
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: p.convertMessages(req.Messages),
	}

	if system := joinSystemMessages(req.Messages); system != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}

	inference := &types.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		maxTokens := min(req.MaxTokens, math.MaxInt32)
		// #nosec G115 -- bounded by min above
		inference.MaxTokens = aws.Int32(int32(maxTokens))
	}
	if req.Temperature > 0 {
		inference.Temperature = aws.Float32(float32(req.Temperature))
	}
	if inference.MaxTokens != nil || inference.Temperature != nil {
		input.InferenceConfig = inference
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	resp := &llm.ProviderResponse{
		Model:        model,
		FinishReason: string(out.StopReason),
	}

	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		resp.Content = extractBedrockText(msg.Value)
	}

	if out.Usage != nil {
		resp.Usage = llm.Usage{
			PromptTokens:     int(aws.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}

	return resp, nil
}

// convertMessages converts the neutral format to Bedrock Converse messages.
// System messages are skipped here; they travel in the system block.
func (p *BedrockProvider) convertMessages(messages []llm.ChatMessage) []types.Message {
	result := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == llm.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{
			Role: role,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: msg.Content},
			},
		})
	}
	return result
}

func extractBedrockText(msg types.Message) string {
	text := ""
	for _, block := range msg.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text += t.Value
		}
	}
	return text
}

func (p *BedrockProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if llm.IsClientError(err) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return llm.NewError("bedrock", model, err).
			WithCode(apiErr.ErrorCode()).
			WithMessage(apiErr.ErrorMessage())
	}

	return llm.NewError("bedrock", model, err)
}
