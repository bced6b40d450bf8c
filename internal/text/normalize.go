package text

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// Normalize prepares raw narration text for synthesis and fingerprinting.
// Scene authors tend to write narration as indented multi-line string
// literals, so runs of whitespace (including line breaks) collapse to a
// single space. Empty or whitespace-only input is rejected.
func Normalize(s string) (string, error) {
	s = strings.Join(strings.Fields(s), " ")

	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}

// NormalizedOffset maps a rune offset in s to the corresponding rune offset
// in the Normalize'd form of s. An offset inside a collapsed whitespace run
// maps to the position of the word that follows it.
func NormalizedOffset(s string, offset int) int {
	runes := []rune(s)
	if offset < 0 {
		offset = 0
	}
	if offset > len(runes) {
		offset = len(runes)
	}
	prefix := string(runes[:offset])

	n := utf8.RuneCountInString(strings.Join(strings.Fields(prefix), " "))
	if n > 0 {
		if last, _ := utf8.DecodeLastRuneInString(prefix); unicode.IsSpace(last) {
			n++
		}
	}
	return n
}
