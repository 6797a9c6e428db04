package textutil

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Truncate returns at most maxChars runes of text, never splitting a
// multi-byte character.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i]
		}
		n++
	}
	return text
}

// CollapseSpace folds every run of whitespace into a single space.
func CollapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// SanitizeUTF8 drops invalid byte sequences and composes characters to
// NFC, so "Go\u0308del" from a PDF and "Gödel" from an API compare equal.
func SanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return norm.NFC.String(s)
}
