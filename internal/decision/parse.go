package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/taskpilot/pkg/models"
)

// decodeObject normalizes the payload shapes a model response arrives in.
// Text payloads may wrap the JSON in a markdown code fence or surround it
// with prose; both are tolerated.
func decodeObject(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("decision payload is nil")
	case map[string]any:
		return v, nil
	case string:
		return decodeText(v)
	case []byte:
		return decodeText(string(v))
	case *models.AgentDecision:
		if v == nil {
			return nil, fmt.Errorf("decision payload is nil")
		}
		return decodeStruct(*v)
	case models.AgentDecision:
		return decodeStruct(v)
	default:
		return nil, fmt.Errorf("unsupported decision payload type %T", raw)
	}
}

func decodeText(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(stripFence(text))
	if trimmed == "" {
		return nil, fmt.Errorf("empty model response")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return obj, nil
	}

	// Some models preface the JSON with commentary. Retry on the outermost
	// object literal before giving up.
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &obj); err == nil {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("response is not a JSON object")
}

func decodeStruct(d models.AgentDecision) (map[string]any, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode decision: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	return obj, nil
}

// stripFence removes a surrounding markdown code fence. Payload text on the
// opening fence line, as in "```json{...}", is preserved.
func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	for _, lang := range []string{"json5", "json", "jsonc"} {
		if strings.HasPrefix(strings.ToLower(trimmed), lang) {
			trimmed = trimmed[len(lang):]
			break
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
