package rag

import (
	"math"
	"unicode/utf8"
)

const (
	// runesPerToken approximates subword tokenizers on English prose.
	runesPerToken = 4.0
	// blockOverheadTokens covers role markers and separators per block.
	blockOverheadTokens = 4
)

// EstimateTokens approximates the token count of text. It never undercounts
// by more than a subword tokenizer would on typical prose.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / runesPerToken))
}

func blockTokens(text string) int {
	return EstimateTokens(text) + blockOverheadTokens
}
