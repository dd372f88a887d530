// Package tokens estimates language-model token counts.
package tokens

import "unicode/utf8"

// CharsPerToken is the fixed approximation used across the engine.
const CharsPerToken = 4

// Estimate returns the approximate token count of s, rounding up so that
// any non-empty string costs at least one token.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Chars converts a token budget into a character budget.
func Chars(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return tokens * CharsPerToken
}
