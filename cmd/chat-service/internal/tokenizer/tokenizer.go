// Package tokenizer provides the token counting adapter used for all budget
// arithmetic. The counter must be deterministic and stable for the lifetime
// of the process so that transcript totals remain consistent.
package tokenizer

import "unicode/utf8"

// Counter counts tokens for a piece of text under a fixed tokenizer.
type Counter interface {
	CountTokens(text string) int
}

// CharCounter estimates tokens using a runes-per-token ratio. A rough
// approximation, but deterministic and side-effect free; swap in a subword
// tokenizer implementation behind the same interface for exact counts.
type CharCounter struct {
	RunesPerToken int // defaults to 4 if zero
}

// NewCharCounter creates a counter with the default ratio.
func NewCharCounter() *CharCounter {
	return &CharCounter{RunesPerToken: 4}
}

func (c *CharCounter) ratio() int {
	if c.RunesPerToken <= 0 {
		return 4
	}
	return c.RunesPerToken
}

// CountTokens returns the estimated token count for text. Non-empty text
// always counts as at least one token.
func (c *CharCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / c.ratio()
	if n == 0 {
		return 1
	}
	return n
}
