// Package voiceover tracks narration clips on a session timeline so that
// animation code can time itself against the synthesized audio and export
// subtitles for the finished piece.
package voiceover

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voiceoverkit/go-voiceover/speech"
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

type sessionOptions struct {
	subcaptions bool
	logger      *slog.Logger
}

func defaultSessionOptions() sessionOptions {
	return sessionOptions{
		subcaptions: true,
		logger:      slog.Default(),
	}
}

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

// WithSubcaptions controls whether SRT export splits clips into
// sentence-level captions when word timings are available. Disabled, every
// clip becomes a single caption.
func WithSubcaptions(enabled bool) SessionOption {
	return func(o *sessionOptions) { o.subcaptions = enabled }
}

// WithLogger sets the slog.Logger used by the session.
func WithLogger(l *slog.Logger) SessionOption {
	return func(o *sessionOptions) { o.logger = l }
}

type voiceoverOptions struct {
	overrides any
}

// VoiceoverOption configures a single Voiceover call.
type VoiceoverOption func(*voiceoverOptions)

// WithOverrides passes a vendor-specific per-request parameter struct, for
// example elevenlabs.Overrides, through to the service.
func WithOverrides(v any) VoiceoverOption {
	return func(o *voiceoverOptions) { o.overrides = v }
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// segment is one narration clip placed on the session timeline.
type segment struct {
	start     time.Duration
	narration *speech.Narration
}

// Session runs narrations through a synthesizer and keeps a running clock
// so consecutive clips line up on a shared timeline. Safe for concurrent
// use, though clips are placed in call order.
type Session struct {
	synth *speech.Synthesizer
	opts  sessionOptions
	log   *slog.Logger

	mu       sync.Mutex
	clock    time.Duration
	segments []segment
}

// NewSession wraps a synthesizer in a fresh timeline.
func NewSession(synth *speech.Synthesizer, optFns ...SessionOption) *Session {
	opts := defaultSessionOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Session{synth: synth, opts: opts, log: opts.logger}
}

// Voiceover synthesizes one narration, places it at the current clock, and
// advances the clock by the clip's final duration. Vendor errors propagate
// unchanged.
func (s *Session) Voiceover(ctx context.Context, narrationText string, optFns ...VoiceoverOption) (*Tracker, error) {
	var vo voiceoverOptions
	for _, fn := range optFns {
		fn(&vo)
	}

	n, err := s.synth.Synthesize(ctx, narrationText, vo.overrides)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	start := s.clock
	s.clock += n.Duration
	s.segments = append(s.segments, segment{start: start, narration: n})
	s.mu.Unlock()

	s.log.Debug("narration placed",
		"hash", n.Hash,
		"start", start,
		"duration", n.Duration,
		"cached", n.Cached,
	)

	return newTracker(n, start), nil
}

// Wait advances the clock without narration, mirroring a pause in the
// animation. Non-positive durations are ignored.
func (s *Session) Wait(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.clock += d
	s.mu.Unlock()
}

// Elapsed returns the current session clock.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}
