package llm

import (
	"context"
	"strings"
	"testing"
)

type routingResult struct {
	PipelineID string  `json:"pipeline_id"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no fence", `{"a": 1}`, `{"a": 1}`},
		{"no fence with whitespace", "  {\"a\": 1}\n", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"json tag", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"uppercase tag", "```JSON\n{\"a\": 1}\n```", `{"a": 1}`},
		{"one line fence", "```{\"a\": 1}```", `{"a": 1}`},
		{"payload on opening line", "```{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  ```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
		{"multiline payload", "```json\n{\n  \"a\": 1\n}\n```", "{\n  \"a\": 1\n}"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.input); got != tt.expected {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestWithSchemaInstruction_AppendsToSystemMessage(t *testing.T) {
	messages := []ChatMessage{
		SystemMessage("You route support tasks."),
		UserMessage("Task T-1 stalled."),
	}

	out := withSchemaInstruction(messages, `{"type":"object"}`)

	if len(out) != 2 {
		t.Fatalf("message count = %d, want 2", len(out))
	}
	if !strings.HasPrefix(out[0].Content, "You route support tasks.") {
		t.Error("system message should keep its original content")
	}
	if !strings.Contains(out[0].Content, `{"type":"object"}`) {
		t.Error("system message should carry the schema")
	}
	if out[1].Content != "Task T-1 stalled." {
		t.Error("user message should be untouched")
	}

	// Input is never mutated
	if messages[0].Content != "You route support tasks." {
		t.Error("input slice was mutated")
	}
}

func TestWithSchemaInstruction_CreatesSystemMessage(t *testing.T) {
	messages := []ChatMessage{UserMessage("Task T-1 stalled.")}

	out := withSchemaInstruction(messages, `{"type":"object"}`)

	if len(out) != 2 {
		t.Fatalf("message count = %d, want 2", len(out))
	}
	if out[0].Role != RoleSystem {
		t.Errorf("first role = %q, want system", out[0].Role)
	}
	if !strings.Contains(out[0].Content, `{"type":"object"}`) {
		t.Error("created system message should carry the schema")
	}
	if out[1].Content != "Task T-1 stalled." {
		t.Error("user message should follow the created system message")
	}
}

func TestSchemaFor(t *testing.T) {
	ts, err := schemaFor[routingResult]()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.raw == "" {
		t.Fatal("schema text is empty")
	}
	if !strings.Contains(ts.raw, "pipeline_id") {
		t.Errorf("schema should use JSON field names, got %s", ts.raw)
	}
	if ts.compiled == nil {
		t.Fatal("schema was not compiled")
	}

	// Second call is served from the cache
	again, err := schemaFor[routingResult]()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != ts {
		t.Error("schemaFor should cache per type")
	}
}

func TestCompleteStructured(t *testing.T) {
	provider := &stubProvider{ready: true}
	provider.complete = func(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
		return &ProviderResponse{
			Content: "```json\n{\"pipeline_id\": \"onboarding\", \"reason\": \"stalled in intake\", \"confidence\": 0.82}\n```",
			Usage:   Usage{TotalTokens: 20},
		}, nil
	}
	client := testClient(t, provider, testConfig())

	result, err := CompleteStructured[routingResult](context.Background(), client,
		[]ChatMessage{UserMessage("Route task T-1.")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.PipelineID != "onboarding" {
		t.Errorf("PipelineID = %q, want onboarding", result.PipelineID)
	}
	if result.Reason != "stalled in intake" {
		t.Errorf("Reason = %q, want stalled in intake", result.Reason)
	}
	if result.Confidence != 0.82 {
		t.Errorf("Confidence = %v, want 0.82", result.Confidence)
	}

	// The provider saw the schema instruction in a system message
	req := provider.lastReq
	if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem {
		t.Fatal("expected an injected system message")
	}
	if !strings.Contains(req.Messages[0].Content, "JSON schema") {
		t.Error("system message should carry the schema instruction")
	}
	if !strings.Contains(req.Messages[0].Content, "pipeline_id") {
		t.Error("system message should embed the derived schema")
	}
}

func TestCompleteStructured_InvalidJSON(t *testing.T) {
	provider := &stubProvider{ready: true}
	provider.complete = func(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
		return &ProviderResponse{Content: "I could not decide."}, nil
	}
	client := testClient(t, provider, testConfig())

	_, err := CompleteStructured[routingResult](context.Background(), client,
		[]ChatMessage{UserMessage("Route task T-1.")})
	if err == nil {
		t.Fatal("expected error for non-JSON response")
	}
	if !IsKind(err, KindValidation) {
		t.Errorf("error kind = %v, want validation", Classify(err))
	}
	if !strings.Contains(err.Error(), "not valid JSON") {
		t.Errorf("error = %v, want JSON parse detail", err)
	}
}

func TestCompleteStructured_SchemaMismatch(t *testing.T) {
	provider := &stubProvider{ready: true}
	provider.complete = func(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
		return &ProviderResponse{Content: `{"pipeline_id": 42, "reason": "stalled", "confidence": 0.8}`}, nil
	}
	client := testClient(t, provider, testConfig())

	_, err := CompleteStructured[routingResult](context.Background(), client,
		[]ChatMessage{UserMessage("Route task T-1.")})
	if err == nil {
		t.Fatal("expected error for schema mismatch")
	}
	if !IsKind(err, KindValidation) {
		t.Errorf("error kind = %v, want validation", Classify(err))
	}
	if !strings.Contains(err.Error(), "does not match schema") {
		t.Errorf("error = %v, want schema detail", err)
	}
}

func TestCompleteStructured_ProviderErrorPassesThrough(t *testing.T) {
	provider := &stubProvider{ready: true}
	provider.complete = func(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
		return nil, NewError("stub", req.Model, nil).WithStatus(401)
	}
	client := testClient(t, provider, testConfig())

	_, err := CompleteStructured[routingResult](context.Background(), client,
		[]ChatMessage{UserMessage("Route task T-1.")})
	if !IsKind(err, KindAuthentication) {
		t.Errorf("error kind = %v, want authentication", Classify(err))
	}
}
