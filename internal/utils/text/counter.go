// Package text provides rune-aware helpers for measuring and cutting note text.
// Notes mix scripts (Latin, kana, hanzi, emoji), so every limit is counted in runes.
package text

import "unicode/utf8"

// CountRunes counts the number of Unicode characters (runes) in the given text.
//
// Examples:
//
//	CountRunes("hello")   // returns 5
//	CountRunes("こんにちは") // returns 5
//	CountRunes("")        // returns 0
func CountRunes(text string) int {
	return utf8.RuneCountInString(text)
}

// Truncate cuts s to at most limit runes, suffix included. When limit is too
// small to hold the suffix, s is cut without one.
//
//	Truncate("漢字の勉強", 4, "…") // "漢字の…"
func Truncate(s string, limit int, suffix string) string {
	if limit < 0 {
		limit = 0
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	keep := limit - utf8.RuneCountInString(suffix)
	if keep <= 0 {
		return string(runes[:limit])
	}
	return string(runes[:keep]) + suffix
}
