package voiceover

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/voiceoverkit/go-voiceover/internal/text"
	"github.com/voiceoverkit/go-voiceover/speech"
)

// captionWidth is the column limit for subtitle lines.
const captionWidth = 42

type caption struct {
	start time.Duration
	end   time.Duration
	text  string
}

// WriteSRT renders the recorded timeline as SubRip subtitles. Clips with
// word timings split into sentence captions; the rest become one caption
// spanning the whole clip.
func (s *Session) WriteSRT(w io.Writer) error {
	s.mu.Lock()
	segments := make([]segment, len(s.segments))
	copy(segments, s.segments)
	s.mu.Unlock()

	var captions []caption
	for _, seg := range segments {
		captions = append(captions, s.segmentCaptions(seg)...)
	}

	idx := 0
	for _, c := range captions {
		lines := text.WrapCaption(c.text, captionWidth)
		if len(lines) == 0 {
			continue
		}
		idx++
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			idx,
			formatTimestamp(c.start),
			formatTimestamp(c.end),
			strings.Join(lines, "\n"),
		); err != nil {
			return fmt.Errorf("writing srt: %w", err)
		}
	}
	return nil
}

// ExportSRT writes the subtitles to path.
func (s *Session) ExportSRT(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating srt file: %w", err)
	}
	if err := s.WriteSRT(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Session) segmentCaptions(seg segment) []caption {
	n := seg.narration
	if !s.opts.subcaptions || !hasAlignedBoundary(n.WordBoundaries) {
		return []caption{{start: seg.start, end: seg.start + n.Duration, text: n.StrippedText}}
	}

	total := utf8.RuneCountInString(n.StrippedText)
	var captions []caption
	for _, span := range sentenceSpans(n.StrippedText) {
		start, end, ok := spanTiming(n.WordBoundaries, span)
		if !ok {
			start = proportional(span.start, total, n.Duration)
			end = proportional(span.end, total, n.Duration)
		}
		if end < start {
			end = start
		}
		captions = append(captions, caption{
			start: seg.start + start,
			end:   seg.start + end,
			text:  span.text,
		})
	}
	return captions
}

// sentenceSpan is one sentence of stripped narration text with its rune
// offsets.
type sentenceSpan struct {
	text  string
	start int
	end   int
}

func sentenceSpans(stripped string) []sentenceSpan {
	sentences := text.SplitSentences(stripped)
	spans := make([]sentenceSpan, 0, len(sentences))
	cursor := 0
	for _, sentence := range sentences {
		idx := strings.Index(stripped[cursor:], sentence)
		if idx < 0 {
			idx = 0
		}
		startByte := cursor + idx
		startRune := utf8.RuneCountInString(stripped[:startByte])
		spans = append(spans, sentenceSpan{
			text:  sentence,
			start: startRune,
			end:   startRune + utf8.RuneCountInString(sentence),
		})
		cursor = startByte + len(sentence)
	}
	return spans
}

// spanTiming derives a sentence's clip-relative timing from the first and
// last aligned word inside its rune range.
func spanTiming(boundaries []speech.WordBoundary, span sentenceSpan) (time.Duration, time.Duration, bool) {
	var start, end time.Duration
	found := false
	for _, b := range boundaries {
		if b.TextOffset < 0 || b.TextOffset < span.start || b.TextOffset >= span.end {
			continue
		}
		if !found || b.Start < start {
			start = b.Start
		}
		if !found || b.End > end {
			end = b.End
		}
		found = true
	}
	return start, end, found
}

func proportional(runeOffset, total int, d time.Duration) time.Duration {
	if total == 0 {
		return 0
	}
	return time.Duration(float64(d) * float64(runeOffset) / float64(total))
}

// formatTimestamp renders a duration in the SubRip HH:MM:SS,mmm form.
func formatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	d -= sec * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, sec, ms)
}
