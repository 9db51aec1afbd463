package chunker

import (
	"strings"
	"unicode"
)

// EstimateTokens guesses a tokenizer count without loading a vocabulary:
// about four tokens per three words, plus one per Han, Hiragana or Katakana
// character since those scripts are not space separated.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	var ideographs int
	for _, r := range text {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			ideographs++
		}
	}
	n := len(strings.Fields(text))*4/3 + ideographs
	return max(n, 1)
}
