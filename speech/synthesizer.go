package speech

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/voiceoverkit/go-voiceover/internal/audio"
	"github.com/voiceoverkit/go-voiceover/internal/cache"
	"github.com/voiceoverkit/go-voiceover/internal/text"
)

// DefaultCacheDir is where narration clips land unless configured
// otherwise, relative to the working directory of the render.
const DefaultCacheDir = "media/voiceovers"

type synthOptions struct {
	cacheDir    string
	globalSpeed float64
	cacheLimit  int64
	transcriber Transcriber
	logger      *slog.Logger
}

// SynthOption configures a Synthesizer.
type SynthOption func(*synthOptions)

// WithCacheDir sets the cache directory. Default: media/voiceovers.
func WithCacheDir(dir string) SynthOption {
	return func(o *synthOptions) { o.cacheDir = dir }
}

// WithGlobalSpeed sets a playback speed multiple applied to every clip.
// Valid range is 0.5 to 2.0; 1.0 leaves clips untouched.
func WithGlobalSpeed(speed float64) SynthOption {
	return func(o *synthOptions) { o.globalSpeed = speed }
}

// WithCacheLimit caps the cache size in bytes. Least recently used entries
// are evicted before a new clip is stored. Zero means unlimited.
func WithCacheLimit(limit int64) SynthOption {
	return func(o *synthOptions) { o.cacheLimit = limit }
}

// WithTranscriber enables word-level timing via the given transcriber.
// Transcription failures are logged and degrade bookmark timing to linear
// interpolation; they never fail a synthesis.
func WithTranscriber(tr Transcriber) SynthOption {
	return func(o *synthOptions) { o.transcriber = tr }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) SynthOption {
	return func(o *synthOptions) { o.logger = l }
}

// Synthesizer wraps one vendor adapter with the disk cache and audio
// post-processing. It is safe for concurrent use.
type Synthesizer struct {
	svc         Service
	store       *cache.Store
	transcriber Transcriber
	globalSpeed float64
	cacheLimit  int64
	log         *slog.Logger
}

// NewSynthesizer builds the pipeline around a vendor adapter and opens the
// cache directory.
func NewSynthesizer(svc Service, opts ...SynthOption) (*Synthesizer, error) {
	if svc == nil {
		return nil, fmt.Errorf("nil speech service")
	}

	o := synthOptions{
		cacheDir:    DefaultCacheDir,
		globalSpeed: 1.0,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.globalSpeed < 0.5 || o.globalSpeed > 2.0 {
		return nil, fmt.Errorf("global speed %v out of range [0.5, 2.0]", o.globalSpeed)
	}

	store, err := cache.Open(o.cacheDir)
	if err != nil {
		return nil, fmt.Errorf("opening narration cache: %w", err)
	}

	return &Synthesizer{
		svc:         svc,
		store:       store,
		transcriber: o.transcriber,
		globalSpeed: o.globalSpeed,
		cacheLimit:  o.cacheLimit,
		log:         o.logger,
	}, nil
}

// Service returns the wrapped vendor adapter.
func (s *Synthesizer) Service() Service { return s.svc }

// CacheDir returns the cache directory.
func (s *Synthesizer) CacheDir() string { return s.store.Dir() }

// Cached returns the narration stored under hash, if any. No vendor call.
func (s *Synthesizer) Cached(hash string) (*Narration, bool) {
	e, ok := s.store.Lookup(hash)
	if !ok {
		return nil, false
	}
	n := s.narrationFromEntry(e)
	n.Cached = true
	return n, true
}

// Synthesize turns narration text into a cached clip. Bookmark tags are
// stripped before the text reaches the vendor. overrides optionally carries
// the adapter's per-request override struct.
//
// A cache hit returns the stored narration without any vendor call. A miss
// makes exactly one vendor call; vendor errors propagate unmodified.
func (s *Synthesizer) Synthesize(ctx context.Context, rawText string, overrides any) (*Narration, error) {
	stripped, err := text.Normalize(text.StripBookmarks(rawText))
	if err != nil {
		return nil, err
	}

	req := Request{Text: stripped, Overrides: overrides}

	// The payload is built before the cache check on purpose: adapters with
	// request-context state (consecutive text tracking) must advance it
	// identically whether or not the clip is cached.
	cfg, err := s.svc.ConfigPayload(ctx, req)
	if err != nil {
		return nil, err
	}

	hash, payload, err := Fingerprint(stripped, s.svc.Name(), cfg)
	if err != nil {
		return nil, err
	}

	if e, ok := s.store.Lookup(hash); ok {
		s.log.Debug("narration cache hit", "service", s.svc.Name(), "hash", hash)
		n := s.narrationFromEntry(e)
		n.Cached = true
		return n, nil
	}

	start := time.Now()
	req.Config = cfg
	out, err := s.svc.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Data) == 0 {
		return nil, NewVendorError(s.svc.Name(), "synthesize", 0, "vendor returned no audio", nil)
	}

	format, sampleRate, duration, err := s.describe(out)
	if err != nil {
		return nil, err
	}

	basename := AudioBasename(stripped, hash) + format.Extension()
	if err := s.store.WriteAudio(basename, out.Data); err != nil {
		return nil, err
	}

	finalName, finalDuration := basename, duration
	if s.globalSpeed != 1.0 {
		stem := strings.TrimSuffix(basename, format.Extension())
		adjusted := stem + "_adjusted.wav"
		d, err := audio.AdjustSpeed(s.store.AudioPath(basename), s.store.AudioPath(adjusted), s.globalSpeed)
		if err != nil {
			return nil, fmt.Errorf("adjusting playback speed: %w", err)
		}
		finalName, finalDuration = adjusted, d
	}

	transcript, boundaries := s.transcribe(ctx, stripped, s.store.AudioPath(basename))

	entry := cache.Entry{
		Hash:           hash,
		Service:        s.svc.Name(),
		InputText:      rawText,
		StrippedText:   stripped,
		InputData:      payload,
		OriginalAudio:  basename,
		FinalAudio:     finalName,
		DurationMS:     finalDuration.Milliseconds(),
		SampleRate:     sampleRate,
		Transcript:     transcript,
		WordBoundaries: boundariesToCache(boundaries),
		CreatedAt:      time.Now().UTC(),
	}

	if s.cacheLimit > 0 {
		if freed, err := s.store.Prune(s.cacheLimit); err == nil && freed > 0 {
			s.log.Debug("narration cache pruned", "freed_bytes", freed)
		}
	}
	if err := s.store.Store(entry); err != nil {
		return nil, fmt.Errorf("storing narration: %w", err)
	}

	s.log.Info("narration synthesized",
		"service", s.svc.Name(),
		"hash", hash,
		"chars", utf8.RuneCountInString(stripped),
		"duration", finalDuration.Round(time.Millisecond),
		"took", time.Since(start).Round(time.Millisecond),
	)

	n := s.narrationFromEntry(entry)
	n.Duration = finalDuration // keep sub-millisecond precision on the fresh path
	return n, nil
}

// describe fills in container format, sample rate, and duration, keeping
// any values the vendor reported and probing the bytes for the rest.
func (s *Synthesizer) describe(out *Audio) (Format, int, time.Duration, error) {
	format := out.Format
	sampleRate := out.SampleRate
	duration := out.Duration

	if format == "" || sampleRate == 0 || duration == 0 {
		info, err := audio.ProbeBytes(out.Data)
		if err != nil {
			if format == "" || duration == 0 {
				return "", 0, 0, fmt.Errorf("probing synthesized audio: %w", err)
			}
		} else {
			if format == "" {
				format = Format(info.Format)
			}
			if sampleRate == 0 {
				sampleRate = info.SampleRate
			}
			if duration == 0 {
				duration = info.Duration
			}
		}
	}

	return format, sampleRate, duration, nil
}

// transcribe runs the optional transcriber and aligns its words to rune
// offsets in the stripped text. Failures degrade to no word boundaries.
func (s *Synthesizer) transcribe(ctx context.Context, stripped, audioPath string) (string, []WordBoundary) {
	if s.transcriber == nil {
		return "", nil
	}

	tr, err := s.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		s.log.Warn("transcription failed; bookmark timing falls back to interpolation", "error", err)
		return "", nil
	}

	boundaries := alignWords(stripped, tr.Words)
	if s.globalSpeed != 1.0 {
		for i := range boundaries {
			boundaries[i].Start = time.Duration(float64(boundaries[i].Start) / s.globalSpeed)
			boundaries[i].End = time.Duration(float64(boundaries[i].End) / s.globalSpeed)
		}
	}
	return tr.Text, boundaries
}

// alignWords maps transcript words to rune offsets in the stripped text by
// scanning left to right. Words the scan cannot place get offset -1.
func alignWords(stripped string, words []TranscriptWord) []WordBoundary {
	lower := strings.ToLower(stripped)
	cursor := 0

	boundaries := make([]WordBoundary, 0, len(words))
	for _, w := range words {
		needle := strings.ToLower(strings.Trim(w.Word, " \t.,!?;:\"()"))
		offset := -1
		if needle != "" && cursor < len(lower) {
			if j := strings.Index(lower[cursor:], needle); j >= 0 {
				byteOff := cursor + j
				offset = utf8.RuneCountInString(stripped[:byteOff])
				cursor = byteOff + len(needle)
			}
		}
		boundaries = append(boundaries, WordBoundary{
			Word:       w.Word,
			Start:      w.Start,
			End:        w.End,
			TextOffset: offset,
		})
	}

	return boundaries
}

func (s *Synthesizer) narrationFromEntry(e cache.Entry) *Narration {
	return &Narration{
		Hash:           e.Hash,
		Service:        e.Service,
		InputText:      e.InputText,
		StrippedText:   e.StrippedText,
		InputData:      e.InputData,
		AudioPath:      s.store.AudioPath(e.FinalAudio),
		OriginalPath:   s.store.AudioPath(e.OriginalAudio),
		Duration:       time.Duration(e.DurationMS) * time.Millisecond,
		SampleRate:     e.SampleRate,
		Transcript:     e.Transcript,
		WordBoundaries: boundariesFromCache(e.WordBoundaries),
		CreatedAt:      e.CreatedAt,
	}
}

func boundariesToCache(in []WordBoundary) []cache.WordBoundary {
	if len(in) == 0 {
		return nil
	}
	out := make([]cache.WordBoundary, len(in))
	for i, b := range in {
		out[i] = cache.WordBoundary{
			Word:       b.Word,
			StartMS:    b.Start.Milliseconds(),
			EndMS:      b.End.Milliseconds(),
			TextOffset: b.TextOffset,
		}
	}
	return out
}

func boundariesFromCache(in []cache.WordBoundary) []WordBoundary {
	if len(in) == 0 {
		return nil
	}
	out := make([]WordBoundary, len(in))
	for i, b := range in {
		out[i] = WordBoundary{
			Word:       b.Word,
			Start:      time.Duration(b.StartMS) * time.Millisecond,
			End:        time.Duration(b.EndMS) * time.Millisecond,
			TextOffset: b.TextOffset,
		}
	}
	return out
}
