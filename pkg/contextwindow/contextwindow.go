// Package contextwindow packs ranked chunks into a token-bounded window.
package contextwindow

import (
	"unicode/utf8"

	"github.com/xhad/askdocs/internal/models"
)

// CharsPerToken is the fixed heuristic used instead of a real tokenizer.
const CharsPerToken = 4

type Window struct {
	Chunks     []models.Chunk
	TokenCount int
}

func (w Window) Empty() bool {
	return len(w.Chunks) == 0
}

// EstimateTokens approximates the token count of text as rune length / 4,
// rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Build walks chunks in the given order and keeps each one while the running
// total stays within budget. It stops at the first chunk that would overflow.
func Build(chunks []models.Chunk, budget int) Window {
	w := Window{Chunks: []models.Chunk{}}
	if budget <= 0 {
		return w
	}

	for _, c := range chunks {
		cost := EstimateTokens(c.Content)
		if w.TokenCount+cost > budget {
			break
		}
		w.Chunks = append(w.Chunks, c)
		w.TokenCount += cost
	}
	return w
}
