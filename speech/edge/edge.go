// Package edge adapts Microsoft Edge's free text-to-speech endpoint to the
// speech.Service interface using edge-tts-go. No API key is required; the
// trade-off is that only voice selection is supported and the service may
// throttle heavy use.
package edge

import (
	"bytes"
	"context"
	"log/slog"

	edgetts "github.com/pp-group/edge-tts-go/biz/service/tts/edge"
	"github.com/voiceoverkit/go-voiceover/speech"
)

const (
	// ServiceName is the identifier recorded in cache entries.
	ServiceName = "edge"

	// DefaultVoice is used when no voice is configured.
	DefaultVoice = "en-US-ChristopherNeural"
)

// Overrides carries per-request parameters.
type Overrides struct {
	Voice string `json:"voice"`
}

// Config is the effective parameter set for one synthesis request and the
// cache fingerprint payload.
type Config struct {
	Voice string `json:"voice"`
}

type options struct {
	voice  string
	logger *slog.Logger
}

func defaultOptions() options {
	return options{
		voice:  DefaultVoice,
		logger: slog.Default(),
	}
}

// Option configures the Edge service.
type Option func(*options)

// WithVoice sets the neural voice name, for example "de-DE-KillianNeural".
func WithVoice(voice string) Option {
	return func(o *options) { o.voice = voice }
}

// WithLogger sets the slog.Logger used by the service.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Service synthesizes speech through the Edge TTS websocket endpoint.
type Service struct {
	opts options
	log  *slog.Logger
}

var _ speech.Service = (*Service)(nil)

// New builds an Edge service.
func New(optFns ...Option) *Service {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{opts: opts, log: opts.logger}
}

// Name implements speech.Service.
func (s *Service) Name() string { return ServiceName }

func overridesFrom(v any) (Overrides, error) {
	switch ov := v.(type) {
	case nil:
		return Overrides{}, nil
	case Overrides:
		return ov, nil
	case *Overrides:
		if ov == nil {
			return Overrides{}, nil
		}
		return *ov, nil
	default:
		return Overrides{}, speech.InvalidParamf(ServiceName, "unsupported overrides type %T", v)
	}
}

// ConfigPayload implements speech.Service.
func (s *Service) ConfigPayload(_ context.Context, req speech.Request) (any, error) {
	ov, err := overridesFrom(req.Overrides)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Voice: s.opts.voice}
	if ov.Voice != "" {
		cfg.Voice = ov.Voice
	}
	return cfg, nil
}

// Synthesize implements speech.Service. The endpoint streams MP3 chunks over
// a websocket; they are concatenated into one clip.
func (s *Service) Synthesize(ctx context.Context, req speech.Request) (*speech.Audio, error) {
	cfg, ok := req.Config.(*Config)
	if !ok || cfg == nil {
		built, err := s.ConfigPayload(ctx, req)
		if err != nil {
			return nil, err
		}
		cfg = built.(*Config)
	}

	s.log.Debug("requesting synthesis",
		"service", ServiceName,
		"voice", cfg.Voice,
		"chars", len(req.Text),
	)

	comm, err := edgetts.NewCommunicate(req.Text, edgetts.WithVoice(cfg.Voice))
	if err != nil {
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, "creating session", err)
	}

	stream, err := comm.Stream()
	if err != nil {
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, "opening stream", err)
	}

	var buf bytes.Buffer
	for msg := range stream {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				buf.Write(data)
			}
		}
	}

	if buf.Len() == 0 {
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, "no audio received from stream", nil)
	}

	return &speech.Audio{Data: buf.Bytes(), Format: speech.FormatMP3}, nil
}
