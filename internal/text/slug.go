package text

import "strings"

// Slug converts narration text into a filesystem-friendly prefix for cached
// audio file names. ASCII letters and digits are lowercased; every other run
// of characters becomes a single hyphen. The result is truncated to at most
// maxLen characters, cutting at a hyphen when possible so words stay intact.
func Slug(s string, maxLen int) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if maxLen <= 0 || len(slug) <= maxLen {
		return slug
	}

	cut := slug[:maxLen]
	if i := strings.LastIndexByte(cut, '-'); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, "-")
}
