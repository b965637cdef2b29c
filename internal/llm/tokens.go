package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// perMessageOverhead approximates the framing tokens each chat message adds.
const perMessageOverhead = 4

// Estimator approximates token counts for prompt budgeting. It uses the
// cl100k_base encoding when available and falls back to a character-count
// heuristic when the encoding cannot be loaded.
//
// Estimates size prompts for history trimming and logging; billing-grade
// counts come from the provider's reported usage.
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewEstimator creates an estimator. The encoding loads lazily on first use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate returns the approximate token count of s.
func (e *Estimator) Estimate(s string) int {
	if s == "" {
		return 0
	}
	e.once.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			e.enc = enc
		}
	})
	if e.enc != nil {
		return len(e.enc.Encode(s, nil, nil))
	}
	// Roughly four characters per token for English text.
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateMessages sums the estimate across a conversation, including a
// small per-message overhead.
func (e *Estimator) EstimateMessages(messages []ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += e.Estimate(m.Content) + perMessageOverhead
	}
	return total
}
