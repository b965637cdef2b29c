// Package observability provides comprehensive monitoring and debugging capabilities
// for the TaskPilot agent through metrics, structured logging, and distributed tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Architecture
//
// The package is designed to be:
//   - Low-overhead: Minimal performance impact on production systems
//   - Type-safe: Strongly-typed APIs reduce configuration errors
//   - Production-ready: Built-in security (redaction) and reliability features
//   - Standards-based: Uses Prometheus, OpenTelemetry, and slog
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Task events flowing through the agent (processed, skipped, dropped)
//   - LLM API request latency and token usage
//   - Decision outcomes and latency by task type
//   - Action execution performance
//   - Error rates by component and type
//   - Active agent counts
//   - Rate limiter saturation
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	// Track event handling
//	metrics.RecordEvent("task:stalled", "processed")
//
//	// Track LLM requests
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-sonnet-4", "success",
//	    time.Since(start).Seconds(), promptTokens, completionTokens)
//
//	// Track action execution
//	start = time.Now()
//	// ... execute action ...
//	metrics.RecordActionExecution("ASSIGN_PIPELINE", "success", time.Since(start).Seconds())
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic correlation ID extraction from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	// Add context IDs for correlation
//	ctx := observability.AddCorrelationID(ctx, event.ID)
//	ctx = observability.AddTaskID(ctx, task.ID)
//
//	// Structured logging with automatic context correlation
//	logger.Info(ctx, "Processing event",
//	    "event", event.Name,
//	    "tenant_id", event.TenantID,
//	)
//
//	// Error logging with automatic redaction
//	logger.Error(ctx, "LLM request failed",
//	    "error", err,
//	    "provider", "anthropic",
//	    "api_key", apiKey, // Automatically redacted
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track one event through the
// decision pipeline:
//   - End-to-end event visualization
//   - Performance bottleneck identification
//   - Error correlation across components
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "taskpilot",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    Endpoint:       "localhost:4317", // OTLP collector
//	    SamplingRate:   0.1,              // Sample 10% of traces
//	})
//	defer shutdown(context.Background())
//
//	// Trace event processing
//	ctx, span := tracer.TraceEventProcessing(ctx, event.Name, task.ID)
//	defer span.End()
//
//	// Trace LLM requests
//	ctx, llmSpan := tracer.TraceLLMRequest(ctx, "anthropic", "claude-sonnet-4")
//	defer llmSpan.End()
//	tracer.SetAttributes(llmSpan, "prompt_tokens", 100, "completion_tokens", 500)
//
//	// Trace action execution
//	ctx, actionSpan := tracer.TraceActionExecution(ctx, "ESCALATE")
//	defer actionSpan.End()
//	if err != nil {
//	    tracer.RecordError(actionSpan, err)
//	}
//
// # Context Propagation
//
// All three components integrate with Go's context for automatic correlation:
//
//	// Add IDs to context
//	ctx = observability.AddCorrelationID(ctx, "evt-123")
//	ctx = observability.AddTenantID(ctx, "tenant-456")
//	ctx = observability.AddTaskID(ctx, "task-789")
//	ctx = observability.AddEventName(ctx, "task:stalled")
//
//	// IDs automatically appear in logs
//	logger.Info(ctx, "Processing") // Includes correlation_id, tenant_id, etc.
//
//	// Spans inherit context
//	ctx, span := tracer.Start(ctx, "operation")
//	// Trace context propagates to child spans
//
// # Integration Example
//
// Complete example integrating all three components:
//
//	func HandleEvent(ctx context.Context, event *models.TaskEvent) error {
//	    // Add correlation IDs
//	    ctx = observability.AddCorrelationID(ctx, event.ID)
//	    ctx = observability.AddTenantID(ctx, event.TenantID)
//	    ctx = observability.AddEventName(ctx, event.Name)
//
//	    // Start tracing
//	    ctx, span := tracer.TraceEventProcessing(ctx, event.Name, event.TaskID)
//	    defer span.End()
//
//	    // Structured logging
//	    logger.Info(ctx, "Processing event", "task_id", event.TaskID)
//
//	    // LLM request with full observability
//	    llmStart := time.Now()
//	    ctx, llmSpan := tracer.TraceLLMRequest(ctx, "anthropic", "claude-sonnet-4")
//	    defer llmSpan.End()
//
//	    response, err := client.Complete(ctx, messages)
//	    llmDuration := time.Since(llmStart).Seconds()
//
//	    if err != nil {
//	        metrics.RecordError("llm", "request_failed")
//	        tracer.RecordError(llmSpan, err)
//	        logger.Error(ctx, "LLM request failed", "error", err)
//	        metrics.RecordLLMRequest("anthropic", "claude-sonnet-4", "error", llmDuration, 0, 0)
//	        return err
//	    }
//
//	    metrics.RecordLLMRequest("anthropic", "claude-sonnet-4", "success",
//	        llmDuration, response.Usage.PromptTokens, response.Usage.CompletionTokens)
//	    logger.Info(ctx, "LLM request completed",
//	        "duration_ms", llmDuration*1000,
//	        "tokens", response.Usage.TotalTokens)
//
//	    return nil
//	}
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, AWS, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Performance
//
// The observability system is designed for minimal overhead:
//   - Metrics use lock-free counters where possible
//   - Logging with slog is highly efficient
//   - Tracing supports sampling to reduce overhead
//   - Context propagation is zero-allocation in most cases
//
// # Configuration
//
// All components support configuration via structs:
//
//	// Metrics - no configuration needed, auto-registered
//	metrics := observability.NewMetrics()
//
//	// Logging - configurable output, level, format
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:          os.Getenv("LOG_LEVEL"),
//	    Format:         "json",
//	    AddSource:      true,
//	    RedactPatterns: []string{`custom-secret-\d+`},
//	})
//
//	// Tracing - configurable sampling, endpoint, attributes
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "taskpilot",
//	    ServiceVersion: version,
//	    Environment:    env,
//	    Endpoint:       os.Getenv("OTEL_ENDPOINT"),
//	    SamplingRate:   0.1,
//	    Attributes: map[string]string{
//	        "deployment.region": region,
//	    },
//	})
//	defer shutdown(context.Background())
//
// # Testing
//
// All components provide testable interfaces:
//   - Metrics accept a custom registry via NewMetricsWithRegistry and can be
//     verified using prometheus/testutil
//   - Logging can write to bytes.Buffer for assertions
//   - Tracing works with no-op exporters in tests
//
// # Best Practices
//
//  1. Always propagate context to enable correlation
//  2. Use defer for span.End() to ensure spans are closed
//  3. Record errors on both metrics and traces
//  4. Use structured logging with key-value pairs
//  5. Set appropriate sampling rates for high-traffic systems
//  6. Use typed metric labels (avoid high-cardinality values)
//  7. Call shutdown() on tracer during graceful shutdown
//
// # Monitoring Dashboard
//
// The metrics exposed can be used to build dashboards:
//
//	# Event throughput
//	rate(taskpilot_agent_events_total[5m])
//
//	# LLM request latency (95th percentile)
//	histogram_quantile(0.95, rate(taskpilot_llm_request_duration_seconds_bucket[5m]))
//
//	# Error rate
//	rate(taskpilot_errors_total[5m])
//
//	# Active agents
//	taskpilot_active_agents
//
//	# Decision latency
//	rate(taskpilot_decision_duration_seconds_sum[5m]) /
//	rate(taskpilot_decision_duration_seconds_count[5m])
//
// # Alerting
//
// Recommended alerts based on metrics:
//   - High error rate: taskpilot_errors_total > threshold
//   - High LLM latency: p95 latency > 10s
//   - Dropped events: rate(taskpilot_agent_events_total{result="dropped"}) > 0
//   - Rate limiter saturation: taskpilot_rate_limited_total growing steadily
//
// # Further Reading
//
//   - Prometheus best practices: https://prometheus.io/docs/practices/naming/
//   - OpenTelemetry specification: https://opentelemetry.io/docs/specs/otel/
//   - slog documentation: https://pkg.go.dev/log/slog
package observability
