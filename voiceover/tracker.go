package voiceover

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/voiceoverkit/go-voiceover/internal/text"
	"github.com/voiceoverkit/go-voiceover/speech"
)

// Tracker exposes the timing of one narration clip to animation code. It is
// returned by Session.Voiceover and stays valid after later clips are added.
type Tracker struct {
	narration *speech.Narration
	start     time.Duration
	marks     []text.Mark
}

func newTracker(n *speech.Narration, start time.Duration) *Tracker {
	stripped, marks := text.ExtractBookmarks(n.InputText)
	// Mark offsets are remapped into the whitespace-normalized text, the
	// coordinate space word boundaries and StrippedText use.
	for i := range marks {
		marks[i].Offset = text.NormalizedOffset(stripped, marks[i].Offset)
	}
	return &Tracker{narration: n, start: start, marks: marks}
}

// Duration returns the final clip length, the value animation timing runs
// on.
func (t *Tracker) Duration() time.Duration { return t.narration.Duration }

// AudioPath returns the absolute path of the final audio file.
func (t *Tracker) AudioPath() string { return t.narration.AudioPath }

// StartTime returns the session clock at the moment the clip started.
func (t *Tracker) StartTime() time.Duration { return t.start }

// Narration returns the underlying narration record.
func (t *Tracker) Narration() *speech.Narration { return t.narration }

// BookmarkTime returns the clip-relative offset of a named bookmark. With
// word boundaries available it is the start of the first aligned word at or
// after the bookmark; otherwise the offset is interpolated linearly over
// the clip.
func (t *Tracker) BookmarkTime(name string) (time.Duration, error) {
	mark, ok := t.findMark(name)
	if !ok {
		return 0, fmt.Errorf("unknown bookmark %q", name)
	}

	for _, b := range t.narration.WordBoundaries {
		if b.TextOffset < 0 {
			continue
		}
		if b.TextOffset >= mark.Offset {
			return b.Start, nil
		}
	}
	if hasAlignedBoundary(t.narration.WordBoundaries) {
		// Bookmark sits after the last aligned word.
		return t.narration.Duration, nil
	}

	return t.interpolate(mark.Offset), nil
}

// TimeUntilBookmark returns the remaining time from elapsed (clip-relative)
// to the named bookmark, clamped at zero once the bookmark has passed.
func (t *Tracker) TimeUntilBookmark(name string, elapsed time.Duration) (time.Duration, error) {
	at, err := t.BookmarkTime(name)
	if err != nil {
		return 0, err
	}
	if remaining := at - elapsed; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

func (t *Tracker) findMark(name string) (text.Mark, bool) {
	for _, m := range t.marks {
		if m.Name == name {
			return m, true
		}
	}
	return text.Mark{}, false
}

func (t *Tracker) interpolate(runeOffset int) time.Duration {
	total := utf8.RuneCountInString(t.narration.StrippedText)
	if runeOffset > total {
		runeOffset = total
	}
	return proportional(runeOffset, total, t.narration.Duration)
}

func hasAlignedBoundary(boundaries []speech.WordBoundary) bool {
	for _, b := range boundaries {
		if b.TextOffset >= 0 {
			return true
		}
	}
	return false
}
