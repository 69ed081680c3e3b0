// Package budget estimates prompt sizes and trims retrieved context to fit a
// model's input window. Backends use different tokenizers, so estimation
// uses a conservative character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"github.com/54b3r/ragbot-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input budget in tokens. It fits
	// 8k-context models while leaving room for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// TrimContext drops the lowest-ranked documents from the end of docs until
// fixedTokens plus the estimated size of the remaining documents, each
// followed by separator, fits within maxTokens. docs must be ordered best
// first. It returns the kept prefix and the number of documents dropped.
// maxTokens <= 0 disables trimming.
func TrimContext(docs []rag.Document, separator string, fixedTokens, maxTokens int) ([]rag.Document, int) {
	if maxTokens <= 0 || len(docs) == 0 {
		return docs, 0
	}

	sepTokens := Estimate(separator)
	total := fixedTokens
	for i, d := range docs {
		total += Estimate(d.Content) + sepTokens
		if total > maxTokens {
			return docs[:i], len(docs) - i
		}
	}
	return docs, 0
}
