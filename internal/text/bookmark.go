package text

import (
	"regexp"
	"unicode/utf8"
)

// Bookmark tags let scene authors mark positions inside narration text, e.g.
//
//	"The circle <bookmark mark='red'/> turns red."
//
// Tags are stripped before the text reaches a vendor; their positions survive
// as rune offsets into the stripped text so trackers can map them to audio
// timestamps.

var bookmarkRe = regexp.MustCompile(`<bookmark\s+mark\s*=\s*(?:'([^']*)'|"([^"]*)")\s*/>`)

// Mark is a named position in stripped narration text.
type Mark struct {
	Name   string
	Offset int // rune offset into the stripped text
}

// StripBookmarks removes all bookmark tags from s.
func StripBookmarks(s string) string {
	return bookmarkRe.ReplaceAllString(s, "")
}

// ExtractBookmarks removes bookmark tags from s and returns the stripped
// text together with the marks found, in order of appearance. Duplicate
// names are kept; callers decide how to handle them.
func ExtractBookmarks(s string) (string, []Mark) {
	matches := bookmarkRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var (
		stripped []byte
		marks    []Mark
		prev     int
	)
	for _, m := range matches {
		stripped = append(stripped, s[prev:m[0]]...)

		name := ""
		if m[2] >= 0 {
			name = s[m[2]:m[3]]
		} else if m[4] >= 0 {
			name = s[m[4]:m[5]]
		}
		marks = append(marks, Mark{
			Name:   name,
			Offset: utf8.RuneCount(stripped),
		})
		prev = m[1]
	}
	stripped = append(stripped, s[prev:]...)

	return string(stripped), marks
}
