// Package speech defines the vendor adapter contract for narration
// synthesis and the cache-aware pipeline that drives it. A vendor adapter
// turns one narration request into one speech-synthesis API call; the
// Synthesizer wraps an adapter with disk caching, duration probing,
// optional playback-speed adjustment, and optional transcription so that
// repeated renders of unchanged narration never call a vendor twice.
package speech

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voiceoverkit/go-voiceover/internal/text"
)

// ErrEmptyText is returned when narration text is empty after bookmark
// stripping and whitespace normalization.
var ErrEmptyText = text.ErrEmptyText

// Format identifies the audio container produced by a vendor.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

// Extension returns the file extension for the format, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMP3:
		return ".mp3"
	case FormatWAV:
		return ".wav"
	default:
		return ""
	}
}

// Request is one narration request handed to a vendor adapter. Text holds
// the bookmark-stripped, whitespace-normalized narration text. Overrides
// optionally carries the adapter's own per-request override struct; nil
// means instance defaults apply.
//
// Config is the effective payload a prior ConfigPayload call produced for
// this request. The synthesis pipeline sets it before calling Synthesize so
// adapters that advance per-request state while building the payload do not
// compute it twice. Adapters must tolerate a nil Config and build their own.
type Request struct {
	Text      string
	Overrides any
	Config    any
}

// Audio is the result of one vendor synthesis call. SampleRate and Duration
// may be zero when the vendor does not report them; the pipeline fills them
// in by probing Data.
type Audio struct {
	Data       []byte
	Format     Format
	SampleRate int
	Duration   time.Duration
}

// Voice describes one voice offered by a vendor. Vendors fill the subset of
// fields they know.
type Voice struct {
	ID          string
	Name        string
	Language    string
	Gender      string
	Description string
}

// Service is implemented by vendor adapters.
//
// ConfigPayload returns the JSON-marshalable effective configuration for
// the request (instance defaults merged with per-request overrides). It is
// called before every synthesis and contributes to the cache fingerprint;
// it may perform memoized vendor calls such as voice resolution.
//
// Synthesize performs exactly one outbound vendor call and returns the
// encoded audio. Failures surface as *VendorError and are never retried.
type Service interface {
	Name() string
	ConfigPayload(ctx context.Context, req Request) (any, error)
	Synthesize(ctx context.Context, req Request) (*Audio, error)
}

// VoiceLister is implemented by adapters that can enumerate their vendor's
// voices.
type VoiceLister interface {
	Voices(ctx context.Context) ([]Voice, error)
}

// Transcriber produces word-level timestamps for a synthesized clip.
// Implementations live outside this package; see speech/whisper.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Transcript, error)
}

// Transcript is the output of a Transcriber.
type Transcript struct {
	Text  string
	Words []TranscriptWord
}

// TranscriptWord is one recognized word with clip-relative timestamps.
type TranscriptWord struct {
	Word  string
	Start time.Duration
	End   time.Duration
}

// WordBoundary ties a transcribed word to its position in the clip and in
// the stripped narration text. TextOffset is a rune offset, or -1 when the
// word could not be aligned.
type WordBoundary struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	TextOffset int
}

// Narration is a synthesized, cached narration clip. Its Duration is the
// value animation timing runs on: the final clip's length after any global
// speed adjustment.
type Narration struct {
	Hash         string
	Service      string
	InputText    string // as passed by the author, bookmark tags included
	StrippedText string
	InputData    json.RawMessage // canonical fingerprint payload

	AudioPath    string // final clip (speed-adjusted when applicable)
	OriginalPath string // clip as returned by the vendor
	Duration     time.Duration
	SampleRate   int

	Transcript     string
	WordBoundaries []WordBoundary

	Cached    bool // served from cache, no vendor call made
	CreatedAt time.Time
}
