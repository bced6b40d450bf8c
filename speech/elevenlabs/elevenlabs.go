// Package elevenlabs adapts the ElevenLabs text-to-speech API to the
// speech.Service interface.
//
// The adapter resolves the configured voice against GET /v1/voices on first
// use, synthesizes through POST /v1/text-to-speech/{voice_id}, and supports
// the request-stitching parameters (previous_text, next_text, request id
// chains) the API offers for seamless narration across clips. Passing a
// TextID override threads consecutive requests together automatically: each
// request's previous_text becomes the concatenation of everything already
// synthesized under that id.
package elevenlabs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/voiceoverkit/go-voiceover/internal/audio"
	"github.com/voiceoverkit/go-voiceover/speech"
	"golang.org/x/time/rate"
)

const (
	// ServiceName is the identifier recorded in cache entries.
	ServiceName = "elevenlabs"

	// EnvAPIKey is the environment variable consulted for the API key when
	// WithAPIKey is not used.
	EnvAPIKey = "ELEVEN_API_KEY"

	// DefaultModel is used when no model is configured.
	DefaultModel = "eleven_multilingual_v2"

	// DefaultOutputFormat is the audio output requested from the vendor.
	DefaultOutputFormat = "mp3_44100_128"
)

// languageCodeModels lists the models that accept a language_code override.
var languageCodeModels = map[string]bool{
	"eleven_turbo_v2_5": true,
	"eleven_flash_v2_5": true,
}

// VoiceSettings tunes the delivery of a voice. Nil fields keep the voice's
// stored defaults.
type VoiceSettings struct {
	Stability       *float64 `json:"stability"`
	SimilarityBoost *float64 `json:"similarity_boost"`
	Style           *float64 `json:"style"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost"`
	Speed           *float64 `json:"speed"`
}

// Overrides carries per-request parameters. Zero fields fall back to the
// Service's configured defaults.
//
// TextID opts the request into consecutive text tracking: requests sharing a
// TextID are treated as one continuous narration, and previous_text is
// filled from the accumulated transcript unless set explicitly here.
type Overrides struct {
	TextID                         string         `json:"text_id"`
	VoiceSettings                  *VoiceSettings `json:"voice_settings"`
	EnableLogging                  *bool          `json:"enable_logging"`
	OptimizeStreamingLatency       *int           `json:"optimize_streaming_latency"`
	LanguageCode                   string         `json:"language_code"`
	Seed                           *int           `json:"seed"`
	PreviousText                   *string        `json:"previous_text"`
	NextText                       *string        `json:"next_text"`
	PreviousRequestIDs             []string       `json:"previous_request_ids"`
	NextRequestIDs                 []string       `json:"next_request_ids"`
	ApplyTextNormalization         string         `json:"apply_text_normalization"`
	ApplyLanguageTextNormalization *bool          `json:"apply_language_text_normalization"`
}

// Config is the effective parameter set for one synthesis request. It doubles
// as the cache fingerprint payload, so every field is serialized whether set
// or not; unset optionals appear as null.
type Config struct {
	Model                          string         `json:"model"`
	VoiceID                        string         `json:"voice_id"`
	VoiceName                      string         `json:"voice_name"`
	VoiceSettings                  *VoiceSettings `json:"voice_settings"`
	OutputFormat                   string         `json:"output_format"`
	EnableLogging                  *bool          `json:"enable_logging"`
	OptimizeStreamingLatency       *int           `json:"optimize_streaming_latency"`
	LanguageCode                   *string        `json:"language_code"`
	Seed                           *int           `json:"seed"`
	PreviousText                   *string        `json:"previous_text"`
	NextText                       *string        `json:"next_text"`
	PreviousRequestIDs             []string       `json:"previous_request_ids"`
	NextRequestIDs                 []string       `json:"next_request_ids"`
	ApplyTextNormalization         *string        `json:"apply_text_normalization"`
	ApplyLanguageTextNormalization *bool          `json:"apply_language_text_normalization"`
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	apiKey                         string
	baseURL                        string
	voiceName                      string
	voiceID                        string
	model                          string
	voiceSettings                  *VoiceSettings
	outputFormat                   string
	enableLogging                  *bool
	optimizeStreamingLatency       *int
	languageCode                   string
	applyTextNormalization         string
	applyLanguageTextNormalization *bool
	httpClient                     *http.Client
	limiter                        *rate.Limiter
	logger                         *slog.Logger
}

func defaultOptions() options {
	return options{
		apiKey:       os.Getenv(EnvAPIKey),
		baseURL:      defaultBaseURL,
		model:        DefaultModel,
		outputFormat: DefaultOutputFormat,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       slog.Default(),
	}
}

// Option configures the ElevenLabs service.
type Option func(*options)

// WithAPIKey sets the API key, overriding the ELEVEN_API_KEY environment
// variable.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(u, "/") }
}

// WithVoiceName selects a voice by its display name. It takes precedence
// over WithVoiceID when both are given.
func WithVoiceName(name string) Option {
	return func(o *options) { o.voiceName = name }
}

// WithVoiceID selects a voice by its vendor id.
func WithVoiceID(id string) Option {
	return func(o *options) { o.voiceID = id }
}

// WithModel sets the synthesis model.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithVoiceSettings sets default voice settings for every request.
func WithVoiceSettings(vs VoiceSettings) Option {
	return func(o *options) { o.voiceSettings = &vs }
}

// WithOutputFormat sets the requested audio output format, for example
// "mp3_44100_128" or "pcm_24000".
func WithOutputFormat(format string) Option {
	return func(o *options) { o.outputFormat = format }
}

// WithEnableLogging controls the vendor's request logging. Setting it to
// false requests zero retention mode.
func WithEnableLogging(on bool) Option {
	return func(o *options) { o.enableLogging = &on }
}

// WithOptimizeStreamingLatency turns on vendor-side latency optimizations,
// level 0 to 4, at some cost of quality.
func WithOptimizeStreamingLatency(level int) Option {
	return func(o *options) { o.optimizeStreamingLatency = &level }
}

// WithLanguageCode enforces an ISO 639-1 language. Only the Turbo v2.5 and
// Flash v2.5 models support it.
func WithLanguageCode(code string) Option {
	return func(o *options) { o.languageCode = code }
}

// WithTextNormalization sets the text normalization mode: "auto", "on", or
// "off".
func WithTextNormalization(mode string) Option {
	return func(o *options) { o.applyTextNormalization = mode }
}

// WithLanguageTextNormalization toggles language-specific text
// normalization. It can heavily increase latency.
func WithLanguageTextNormalization(on bool) Option {
	return func(o *options) { o.applyLanguageTextNormalization = &on }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRequestsPerMinute caps outgoing API calls. Zero disables the limit.
func WithRequestsPerMinute(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		} else {
			o.limiter = nil
		}
	}
}

// WithLogger sets the slog.Logger used by the service.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service synthesizes speech through the ElevenLabs API.
type Service struct {
	opts options
	api  *client
	log  *slog.Logger

	voiceMu   sync.Mutex
	resolved  bool
	voiceID   string
	voiceName string

	textMu      sync.Mutex
	consecutive map[string]string
}

var (
	_ speech.Service     = (*Service)(nil)
	_ speech.VoiceLister = (*Service)(nil)
)

// New builds an ElevenLabs service. The configured voice is resolved against
// the vendor's voice list on first use, not here.
func New(optFns ...Option) (*Service, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: missing API key (set %s or use WithAPIKey)", EnvAPIKey)
	}
	if opts.languageCode != "" && !languageCodeModels[opts.model] {
		return nil, fmt.Errorf("elevenlabs: language code %q requires model eleven_turbo_v2_5 or eleven_flash_v2_5, got %q",
			opts.languageCode, opts.model)
	}
	if l := opts.optimizeStreamingLatency; l != nil && (*l < 0 || *l > 4) {
		return nil, fmt.Errorf("elevenlabs: optimize_streaming_latency %d out of range [0, 4]", *l)
	}
	switch opts.applyTextNormalization {
	case "", "auto", "on", "off":
	default:
		return nil, fmt.Errorf("elevenlabs: text normalization mode %q (expected auto, on, or off)", opts.applyTextNormalization)
	}

	if opts.voiceName == "" && opts.voiceID == "" {
		opts.logger.Warn("no voice name or id configured, the first available voice will be used")
	}

	return &Service{
		opts: opts,
		api: &client{
			baseURL: opts.baseURL,
			apiKey:  opts.apiKey,
			http:    opts.httpClient,
		},
		log:         opts.logger,
		consecutive: make(map[string]string),
	}, nil
}

// Name implements speech.Service.
func (s *Service) Name() string { return ServiceName }

// Voices implements speech.VoiceLister.
func (s *Service) Voices(ctx context.Context) ([]speech.Voice, error) {
	vs, err := s.api.voices(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]speech.Voice, len(vs))
	for i, v := range vs {
		out[i] = speech.Voice{
			ID:          v.VoiceID,
			Name:        v.Name,
			Language:    v.Labels["language"],
			Gender:      v.Labels["gender"],
			Description: v.Description,
		}
	}
	return out, nil
}

// resolveVoice maps the configured voice name or id to a concrete voice,
// fetching the vendor's voice list once. A name match is tried first; an id
// match only when no name was configured. When nothing matches, the first
// available voice is used.
func (s *Service) resolveVoice(ctx context.Context) (id, name string, err error) {
	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()

	if s.resolved {
		return s.voiceID, s.voiceName, nil
	}

	voices, err := s.api.voices(ctx)
	if err != nil {
		return "", "", err
	}
	if len(voices) == 0 {
		return "", "", speech.NewVendorError(ServiceName, "voices", 0, "no voices available", nil)
	}

	var match *apiVoice
	switch {
	case s.opts.voiceName != "":
		for i := range voices {
			if voices[i].Name == s.opts.voiceName {
				match = &voices[i]
				break
			}
		}
	case s.opts.voiceID != "":
		for i := range voices {
			if voices[i].VoiceID == s.opts.voiceID {
				match = &voices[i]
				break
			}
		}
	}

	if match == nil {
		if s.opts.voiceName != "" || s.opts.voiceID != "" {
			s.log.Warn("configured voice not found, falling back to the first available",
				"voice_name", s.opts.voiceName,
				"voice_id", s.opts.voiceID,
				"fallback", voices[0].Name,
			)
		}
		match = &voices[0]
	}

	s.voiceID = match.VoiceID
	s.voiceName = match.Name
	s.resolved = true

	return s.voiceID, s.voiceName, nil
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

func trimTrailingSpace(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

// buildConfig merges instance defaults with per-request overrides and
// advances the consecutive text state for the request's TextID. It must run
// exactly once per narration request.
func (s *Service) buildConfig(ctx context.Context, req speech.Request) (*Config, error) {
	ov, err := overridesFrom(req.Overrides)
	if err != nil {
		return nil, err
	}

	voiceID, voiceName, err := s.resolveVoice(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Model:                          s.opts.model,
		VoiceID:                        voiceID,
		VoiceName:                      voiceName,
		VoiceSettings:                  s.opts.voiceSettings,
		OutputFormat:                   s.opts.outputFormat,
		EnableLogging:                  s.opts.enableLogging,
		OptimizeStreamingLatency:       s.opts.optimizeStreamingLatency,
		Seed:                           ov.Seed,
		NextText:                       ov.NextText,
		PreviousRequestIDs:             ov.PreviousRequestIDs,
		NextRequestIDs:                 ov.NextRequestIDs,
		ApplyLanguageTextNormalization: s.opts.applyLanguageTextNormalization,
	}

	if ov.VoiceSettings != nil {
		cfg.VoiceSettings = ov.VoiceSettings
	}
	if ov.EnableLogging != nil {
		cfg.EnableLogging = ov.EnableLogging
	}
	if ov.OptimizeStreamingLatency != nil {
		cfg.OptimizeStreamingLatency = ov.OptimizeStreamingLatency
	}
	if ov.ApplyLanguageTextNormalization != nil {
		cfg.ApplyLanguageTextNormalization = ov.ApplyLanguageTextNormalization
	}

	languageCode := ov.LanguageCode
	if languageCode == "" {
		languageCode = s.opts.languageCode
	}
	if languageCode != "" {
		if !languageCodeModels[s.opts.model] {
			return nil, speech.InvalidParamf(ServiceName,
				"language code %q requires model eleven_turbo_v2_5 or eleven_flash_v2_5, got %q",
				languageCode, s.opts.model)
		}
		cfg.LanguageCode = &languageCode
	}

	if mode := ov.ApplyTextNormalization; mode != "" {
		cfg.ApplyTextNormalization = &mode
	} else if mode := s.opts.applyTextNormalization; mode != "" {
		cfg.ApplyTextNormalization = &mode
	}

	previousText := ov.PreviousText
	if ov.TextID != "" {
		s.textMu.Lock()
		if stored, ok := s.consecutive[ov.TextID]; ok {
			if previousText == nil {
				prev := stored
				previousText = &prev
			}
			s.consecutive[ov.TextID] = trimTrailingSpace(trimTrailingSpace(stored)+" "+req.Text) + " "
		} else {
			s.consecutive[ov.TextID] = trimTrailingSpace(req.Text) + " "
		}
		s.textMu.Unlock()
	}
	cfg.PreviousText = previousText

	return cfg, nil
}

// ConfigPayload implements speech.Service. Calling it advances the
// consecutive text state for the request's TextID, so call it once per
// narration request.
func (s *Service) ConfigPayload(ctx context.Context, req speech.Request) (any, error) {
	return s.buildConfig(ctx, req)
}

// Synthesize implements speech.Service. When req.Config carries the *Config
// from a prior ConfigPayload call it is used as-is; otherwise the config is
// built here.
func (s *Service) Synthesize(ctx context.Context, req speech.Request) (*speech.Audio, error) {
	cfg, ok := req.Config.(*Config)
	if !ok || cfg == nil {
		var err error
		cfg, err = s.buildConfig(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	if s.opts.limiter != nil {
		if err := s.opts.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	query := url.Values{}
	query.Set("output_format", cfg.OutputFormat)
	if cfg.EnableLogging != nil {
		query.Set("enable_logging", strconv.FormatBool(*cfg.EnableLogging))
	}
	if cfg.OptimizeStreamingLatency != nil {
		query.Set("optimize_streaming_latency", strconv.Itoa(*cfg.OptimizeStreamingLatency))
	}

	body := ttsRequest{
		Text:                           req.Text,
		ModelID:                        cfg.Model,
		LanguageCode:                   cfg.LanguageCode,
		VoiceSettings:                  cfg.VoiceSettings,
		Seed:                           cfg.Seed,
		PreviousText:                   cfg.PreviousText,
		NextText:                       cfg.NextText,
		PreviousRequestIDs:             cfg.PreviousRequestIDs,
		NextRequestIDs:                 cfg.NextRequestIDs,
		ApplyTextNormalization:         cfg.ApplyTextNormalization,
		ApplyLanguageTextNormalization: cfg.ApplyLanguageTextNormalization,
	}

	s.log.Debug("requesting synthesis",
		"service", ServiceName,
		"voice", cfg.VoiceName,
		"model", cfg.Model,
		"chars", len(req.Text),
	)

	data, err := s.api.textToSpeech(ctx, cfg.VoiceID, query, body)
	if err != nil {
		return nil, err
	}

	return buildAudio(data, cfg.OutputFormat)
}

// buildAudio labels the returned bytes with format and sample rate derived
// from the requested output format. Raw PCM outputs are wrapped into a WAV
// container so the rest of the pipeline can probe and process them.
func buildAudio(data []byte, outputFormat string) (*speech.Audio, error) {
	codec, rateStr, _ := strings.Cut(outputFormat, "_")
	sampleRate := 0
	if rateStr != "" {
		head, _, _ := strings.Cut(rateStr, "_")
		if n, err := strconv.Atoi(head); err == nil {
			sampleRate = n
		}
	}

	out := &speech.Audio{Data: data, SampleRate: sampleRate}

	switch codec {
	case "mp3":
		out.Format = speech.FormatMP3
	case "pcm":
		if sampleRate <= 0 {
			return nil, speech.InvalidParamf(ServiceName, "output format %q has no sample rate", outputFormat)
		}
		samples := audio.DecodePCM16(data)
		wavData, err := audio.EncodeWAV(samples, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("wrapping pcm output: %w", err)
		}
		out.Data = wavData
		out.Format = speech.FormatWAV
		out.Duration = time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)
	}

	return out, nil
}
