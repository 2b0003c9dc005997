package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCharCounter_Deterministic(t *testing.T) {
	counter := NewCharCounter()

	first := counter.CountTokens("the quick brown fox jumps over the lazy dog")
	second := counter.CountTokens("the quick brown fox jumps over the lazy dog")

	assert.Equal(t, first, second)
	assert.Equal(t, 10, first) // 43 runes / 4
}

func TestCharCounter_Empty(t *testing.T) {
	counter := NewCharCounter()
	assert.Equal(t, 0, counter.CountTokens(""))
}

func TestCharCounter_ShortTextCountsAsOne(t *testing.T) {
	counter := NewCharCounter()
	assert.Equal(t, 1, counter.CountTokens("hi"))
}

func TestCharCounter_MultibyteRunes(t *testing.T) {
	counter := &CharCounter{RunesPerToken: 2}
	// 6 runes, not 18 bytes
	assert.Equal(t, 3, counter.CountTokens("你好世界啊呀"))
}
