// Package openai adapts the OpenAI speech endpoint (tts-1, tts-1-hd,
// gpt-4o-mini-tts) to the speech.Service interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/voiceoverkit/go-voiceover/speech"
)

const (
	// ServiceName is the identifier recorded in cache entries.
	ServiceName = "openai"

	// EnvAPIKey is the environment variable consulted for the API key when
	// WithAPIKey is not used.
	EnvAPIKey = "OPENAI_API_KEY"

	// DefaultVoice and DefaultModel are used when not configured.
	DefaultVoice = "alloy"
	DefaultModel = "tts-1"

	// DefaultOutputFormat is the audio format requested from the vendor.
	DefaultOutputFormat = "mp3"
)

// voiceNames is the fixed voice lineup of the speech endpoint; the API has
// no listing call.
var voiceNames = []string{
	"alloy", "ash", "ballad", "coral", "echo", "fable",
	"onyx", "nova", "sage", "shimmer",
}

// Overrides carries per-request parameters. Zero fields fall back to the
// Service's configured defaults.
type Overrides struct {
	Voice        string   `json:"voice"`
	Speed        *float64 `json:"speed"`
	Instructions *string  `json:"instructions"`
}

// Config is the effective parameter set for one synthesis request and the
// cache fingerprint payload. Unset optionals serialize as null.
type Config struct {
	Model        string   `json:"model"`
	Voice        string   `json:"voice"`
	Speed        *float64 `json:"speed"`
	Instructions *string  `json:"instructions"`
	OutputFormat string   `json:"output_format"`
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	apiKey       string
	baseURL      string
	voice        string
	model        string
	speed        *float64
	instructions *string
	outputFormat string
	httpClient   *http.Client
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		apiKey:       os.Getenv(EnvAPIKey),
		voice:        DefaultVoice,
		model:        DefaultModel,
		outputFormat: DefaultOutputFormat,
		logger:       slog.Default(),
	}
}

// Option configures the OpenAI service.
type Option func(*options)

// WithAPIKey sets the API key, overriding OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the client at a different API endpoint, for example an
// Azure OpenAI deployment or a local proxy.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithVoice sets the voice, for example "nova".
func WithVoice(voice string) Option {
	return func(o *options) { o.voice = voice }
}

// WithModel sets the model: "tts-1", "tts-1-hd", or "gpt-4o-mini-tts".
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithSpeed sets the default speaking speed, 0.25 to 4.0.
func WithSpeed(speed float64) Option {
	return func(o *options) { o.speed = &speed }
}

// WithInstructions sets default delivery instructions. Only the
// gpt-4o-mini-tts model honors them.
func WithInstructions(instructions string) Option {
	return func(o *options) { o.instructions = &instructions }
}

// WithOutputFormat sets the response format: "mp3", "wav", "opus", "aac",
// "flac", or "pcm".
func WithOutputFormat(format string) Option {
	return func(o *options) { o.outputFormat = format }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the slog.Logger used by the service.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service synthesizes speech through the OpenAI API.
type Service struct {
	opts   options
	client *goopenai.Client
	log    *slog.Logger
}

var (
	_ speech.Service     = (*Service)(nil)
	_ speech.VoiceLister = (*Service)(nil)
)

// New builds an OpenAI service.
func New(optFns ...Option) (*Service, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.apiKey == "" {
		return nil, fmt.Errorf("openai: missing API key (set %s or use WithAPIKey)", EnvAPIKey)
	}
	if opts.speed != nil && (*opts.speed < 0.25 || *opts.speed > 4.0) {
		return nil, fmt.Errorf("openai: speed %v out of range [0.25, 4.0]", *opts.speed)
	}

	cfg := goopenai.DefaultConfig(opts.apiKey)
	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}
	if opts.httpClient != nil {
		cfg.HTTPClient = opts.httpClient
	}

	return &Service{
		opts:   opts,
		client: goopenai.NewClientWithConfig(cfg),
		log:    opts.logger,
	}, nil
}

// Name implements speech.Service.
func (s *Service) Name() string { return ServiceName }

// Voices implements speech.VoiceLister with the endpoint's fixed lineup.
func (s *Service) Voices(_ context.Context) ([]speech.Voice, error) {
	out := make([]speech.Voice, len(voiceNames))
	for i, name := range voiceNames {
		out[i] = speech.Voice{ID: name, Name: name}
	}
	return out, nil
}

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

	cfg := &Config{
		Model:        s.opts.model,
		Voice:        s.opts.voice,
		Speed:        s.opts.speed,
		Instructions: s.opts.instructions,
		OutputFormat: s.opts.outputFormat,
	}
	if ov.Voice != "" {
		cfg.Voice = ov.Voice
	}
	if ov.Speed != nil {
		if *ov.Speed < 0.25 || *ov.Speed > 4.0 {
			return nil, speech.InvalidParamf(ServiceName, "speed %v out of range [0.25, 4.0]", *ov.Speed)
		}
		cfg.Speed = ov.Speed
	}
	if ov.Instructions != nil {
		cfg.Instructions = ov.Instructions
	}

	return cfg, nil
}

// Synthesize implements speech.Service.
func (s *Service) Synthesize(ctx context.Context, req speech.Request) (*speech.Audio, error) {
	cfg, ok := req.Config.(*Config)
	if !ok || cfg == nil {
		built, err := s.ConfigPayload(ctx, req)
		if err != nil {
			return nil, err
		}
		cfg = built.(*Config)
	}

	speechReq := goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(cfg.Model),
		Input:          req.Text,
		Voice:          goopenai.SpeechVoice(cfg.Voice),
		ResponseFormat: goopenai.SpeechResponseFormat(cfg.OutputFormat),
	}
	if cfg.Speed != nil {
		speechReq.Speed = *cfg.Speed
	}
	if cfg.Instructions != nil {
		speechReq.Instructions = *cfg.Instructions
	}

	s.log.Debug("requesting synthesis",
		"service", ServiceName,
		"voice", cfg.Voice,
		"model", cfg.Model,
		"chars", len(req.Text),
	)

	resp, err := s.client.CreateSpeech(ctx, speechReq)
	if err != nil {
		return nil, vendorError("synthesize", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, "reading audio stream", err)
	}

	out := &speech.Audio{Data: data}
	switch cfg.OutputFormat {
	case "mp3":
		out.Format = speech.FormatMP3
	case "wav":
		out.Format = speech.FormatWAV
	}
	return out, nil
}

// vendorError maps go-openai error types onto VendorError so status-based
// classification keeps working.
func vendorError(op string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return speech.NewVendorError(ServiceName, op, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return speech.NewVendorError(ServiceName, op, reqErr.HTTPStatusCode, "", err)
	}

	return speech.NewVendorError(ServiceName, op, 0, "", err)
}
