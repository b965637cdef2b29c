package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// CompleteStructured sends the conversation with a schema instruction
// appended to the system message (creating one if absent) and parses the
// reply into T. The reply is stripped of a surrounding code fence, validated
// against T's derived JSON schema, and decoded. Parse and schema failures
// surface as validation errors.
//
// Example:
//
//	type routing struct {
//	    PipelineID string `json:"pipeline_id"`
//	    Reason     string `json:"reason"`
//	}
//	r, err := llm.CompleteStructured[routing](ctx, client, messages)
func CompleteStructured[T any](ctx context.Context, c *Client, messages []ChatMessage, opts ...CompletionOptions) (T, error) {
	var zero T

	ts, err := schemaFor[T]()
	if err != nil {
		return zero, NewValidationError(err.Error())
	}

	resp, err := c.Complete(ctx, withSchemaInstruction(messages, ts.raw), opts...)
	if err != nil {
		return zero, err
	}

	payload := stripCodeFence(resp.Content)

	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return zero, NewValidationError(fmt.Sprintf("structured response is not valid JSON: %v", err))
	}
	if err := ts.compiled.Validate(decoded); err != nil {
		return zero, NewValidationError(fmt.Sprintf("structured response does not match schema: %v", err))
	}

	var out T
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return zero, NewValidationError(fmt.Sprintf("decode structured response: %v", err))
	}
	return out, nil
}

// withSchemaInstruction appends the machine-readable output instruction to
// the conversation's system message, creating one if it has none. The input
// slice is never mutated.
func withSchemaInstruction(messages []ChatMessage, schema string) []ChatMessage {
	instruction := "Respond with a single JSON object matching this JSON schema, and nothing else:\n" + schema

	out := make([]ChatMessage, len(messages))
	copy(out, messages)
	for i := range out {
		if out[i].Role == RoleSystem {
			out[i].Content = out[i].Content + "\n\n" + instruction
			return out
		}
	}
	return append([]ChatMessage{SystemMessage(instruction)}, out...)
}

// stripCodeFence removes a surrounding markdown code fence, tolerating a
// language tag on the opening line. Content without a fence is returned
// trimmed.
func stripCodeFence(s string) string {
	out := strings.TrimSpace(s)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```")

	if idx := strings.IndexByte(out, '\n'); idx >= 0 {
		tag := strings.TrimSpace(out[:idx])
		if tag == "" || isLanguageTag(tag) {
			out = out[idx+1:]
		}
	}

	out = strings.TrimSpace(out)
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}

func isLanguageTag(s string) bool {
	if len(s) > 16 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
