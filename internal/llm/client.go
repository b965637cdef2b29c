package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/taskpilot/internal/backoff"
	"github.com/haasonsaas/taskpilot/internal/observability"
	"github.com/haasonsaas/taskpilot/internal/ratelimit"
	"github.com/haasonsaas/taskpilot/internal/retry"
)

// Client provides uniform, resilient access to a language-model backend.
//
// The client owns the request/token rate-limit window, per-attempt timeouts,
// and classification-aware retry with exponential backoff. Provider-specific
// failures are normalized into this package's error taxonomy before being
// retried or surfaced.
//
// A Client is safe for concurrent use.
//
// Usage:
//
//	client := llm.NewClient(provider, llm.DefaultConfig(), logger, metrics)
//	resp, err := client.Complete(ctx, []llm.ChatMessage{
//	    llm.SystemMessage("You route support tasks."),
//	    llm.UserMessage("Task T-1 has stalled in intake."),
//	})
type Client struct {
	provider Provider
	cfg      Config
	window   *ratelimit.Window
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewClient creates a model client over the given provider. A nil logger
// falls back to a JSON logger at info level; metrics may be nil.
func NewClient(provider Provider, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Client {
	def := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = observability.MustNewLogger(observability.LogConfig{Level: "info", Format: "json"})
	}

	return &Client{
		provider: provider,
		cfg:      cfg,
		window:   ratelimit.NewWindow(cfg.RateLimit),
		logger:   logger,
		metrics:  metrics,
	}
}

// Complete sends a conversation to the model and returns the normalized
// response.
//
// Preconditions: messages non-empty, every message with a recognized role and
// non-empty content; violations fail with a validation error before any
// provider traffic. The call blocks while the rate-limit window is saturated,
// then retries retryable failures up to the configured maximum with the
// standard backoff schedule. A provider-supplied retry-after overrides the
// computed delay.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage, opts ...CompletionOptions) (*ModelResponse, error) {
	if err := validateMessages(messages); err != nil {
		return nil, err
	}

	req := c.buildRequest(messages, opts...)

	if c.metrics != nil && c.window.Status().Limited {
		c.metrics.RecordRateLimited("model_window")
	}
	waitStart := time.Now()
	if err := c.window.Acquire(ctx); err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.ObserveRateLimitWait("model_window", time.Since(waitStart).Seconds())
	}

	retryCfg := retry.Config{
		MaxAttempts: c.cfg.MaxRetries + 1,
		Policy:      backoff.ModelCallPolicy(),
		Retryable:   IsRetryable,
		RetryAfter:  RetryAfterHint,
	}

	var attemptLatency time.Duration
	resp, result := retry.DoWithValue(ctx, retryCfg, func(attempt int) (*ProviderResponse, error) {
		if attempt > 1 && c.metrics != nil {
			c.metrics.RecordLLMRetry(c.provider.Name())
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		attemptStart := time.Now()
		r, err := c.provider.Complete(attemptCtx, req)
		attemptLatency = time.Since(attemptStart)

		if err != nil {
			err = c.normalizeError(ctx, attemptCtx, req.Model, err)
			c.recordRequest(req.Model, "error", attemptLatency, Usage{})
			c.logger.Warn(ctx, "model attempt failed",
				"provider", c.provider.Name(),
				"model", req.Model,
				"attempt", attempt,
				"retryable", IsRetryable(err),
				"error", err,
			)
			return nil, err
		}
		return r, nil
	})

	if result.Err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("llm", string(Classify(result.Err)))
		}
		return nil, result.Err
	}

	c.window.RecordUsage(resp.Usage.TotalTokens)
	c.recordRequest(req.Model, "success", attemptLatency, resp.Usage)

	model := resp.Model
	if model == "" {
		model = req.Model
	}

	c.logger.Debug(ctx, "model call completed",
		"provider", c.provider.Name(),
		"model", model,
		"attempts", result.Attempts,
		"latency_ms", attemptLatency.Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens,
	)

	return &ModelResponse{
		Content:      resp.Content,
		Provider:     c.provider.Name(),
		Model:        model,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		LatencyMs:    attemptLatency.Milliseconds(),
	}, nil
}

// Ready returns true iff the underlying provider has the credentials and
// configuration it needs.
func (c *Client) Ready() bool {
	return c.provider.Ready()
}

// ProviderName returns the name of the underlying provider.
func (c *Client) ProviderName() string {
	return c.provider.Name()
}

// RateLimitStatus returns a snapshot of the request/token window.
func (c *Client) RateLimitStatus() ratelimit.Status {
	return c.window.Status()
}

func (c *Client) buildRequest(messages []ChatMessage, opts ...CompletionOptions) *ProviderRequest {
	req := &ProviderRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	if len(opts) > 0 {
		o := opts[0]
		if o.Model != "" {
			req.Model = o.Model
		}
		if o.MaxTokens > 0 {
			req.MaxTokens = o.MaxTokens
		}
		if o.Temperature > 0 {
			req.Temperature = o.Temperature
		}
	}
	return req
}

// normalizeError converts a provider failure into the client taxonomy.
// An attempt that ran out its own deadline becomes a retryable timeout;
// everything else keeps its classification or is classified from its message.
func (c *Client) normalizeError(ctx, attemptCtx context.Context, model string, err error) error {
	if IsClientError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && attemptCtx.Err() != nil {
		return NewTimeoutError(c.provider.Name(), model, err)
	}
	if ctx.Err() != nil {
		return err
	}
	return NewError(c.provider.Name(), model, err)
}

func (c *Client) recordRequest(model, status string, latency time.Duration, usage Usage) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordLLMRequest(
		c.provider.Name(), model, status,
		latency.Seconds(),
		usage.PromptTokens, usage.CompletionTokens,
	)
}

func validateMessages(messages []ChatMessage) error {
	if len(messages) == 0 {
		return NewValidationError("messages must not be empty")
	}
	for i, m := range messages {
		if !KnownRole(m.Role) {
			return NewValidationError(fmt.Sprintf("message %d has unrecognized role %q", i, m.Role))
		}
		if m.Content == "" {
			return NewValidationError(fmt.Sprintf("message %d has empty content", i))
		}
	}
	return nil
}
