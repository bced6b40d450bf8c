// Package azure adapts the Azure Cognitive Services text-to-speech REST API
// to the speech.Service interface. Requests are rendered as SSML, so voice
// styles (mstts:express-as) and prosody rate/pitch adjustments are supported.
package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/voiceoverkit/go-voiceover/speech"
)

const (
	// ServiceName is the identifier recorded in cache entries.
	ServiceName = "azure"

	// EnvAPIKey and EnvRegion are consulted when the corresponding options
	// are not used.
	EnvAPIKey = "AZURE_SUBSCRIPTION_KEY"
	EnvRegion = "AZURE_SERVICE_REGION"

	// DefaultVoice is used when no voice is configured.
	DefaultVoice = "en-US-AriaNeural"

	// DefaultOutputFormat is the audio format requested from the vendor.
	DefaultOutputFormat = "audio-48khz-192kbitrate-mono-mp3"

	userAgent = "go-voiceover"
)

// Overrides carries per-request parameters. Nil fields fall back to the
// Service's configured defaults.
type Overrides struct {
	Style       *string  `json:"style"`
	StyleDegree *float64 `json:"style_degree"`
	Rate        *string  `json:"rate"`
	Pitch       *string  `json:"pitch"`
}

// Config is the effective parameter set for one synthesis request and the
// cache fingerprint payload. Unset optionals serialize as null.
type Config struct {
	Voice        string   `json:"voice"`
	Style        *string  `json:"style"`
	StyleDegree  *float64 `json:"style_degree"`
	Rate         *string  `json:"rate"`
	Pitch        *string  `json:"pitch"`
	OutputFormat string   `json:"output_format"`
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	apiKey       string
	region       string
	baseURL      string
	voice        string
	style        *string
	styleDegree  *float64
	rate         *string
	pitch        *string
	outputFormat string
	httpClient   *http.Client
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		apiKey:       os.Getenv(EnvAPIKey),
		region:       os.Getenv(EnvRegion),
		voice:        DefaultVoice,
		outputFormat: DefaultOutputFormat,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       slog.Default(),
	}
}

// Option configures the Azure service.
type Option func(*options)

// WithAPIKey sets the subscription key, overriding AZURE_SUBSCRIPTION_KEY.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithRegion sets the service region, for example "eastus", overriding
// AZURE_SERVICE_REGION.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithBaseURL replaces the region-derived endpoint entirely.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(u, "/") }
}

// WithVoice sets the neural voice name, for example "en-US-GuyNeural".
func WithVoice(voice string) Option {
	return func(o *options) { o.voice = voice }
}

// WithStyle sets a default speaking style such as "newscast" or "cheerful".
// Only some voices support styles.
func WithStyle(style string) Option {
	return func(o *options) { o.style = &style }
}

// WithStyleDegree scales the style intensity, 0.01 to 2.
func WithStyleDegree(degree float64) Option {
	return func(o *options) { o.styleDegree = &degree }
}

// WithRate sets the default prosody rate, for example "+15.00%".
func WithRate(rateStr string) Option {
	return func(o *options) { o.rate = &rateStr }
}

// WithPitch sets the default prosody pitch, for example "-5Hz".
func WithPitch(pitch string) Option {
	return func(o *options) { o.pitch = &pitch }
}

// WithOutputFormat sets the X-Microsoft-OutputFormat value, for example
// "riff-24khz-16bit-mono-pcm".
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

// Service synthesizes speech through the Azure TTS REST API.
type Service struct {
	opts options
	log  *slog.Logger
}

var (
	_ speech.Service     = (*Service)(nil)
	_ speech.VoiceLister = (*Service)(nil)
)

// New builds an Azure service.
func New(optFns ...Option) (*Service, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.apiKey == "" {
		return nil, fmt.Errorf("azure: missing subscription key (set %s or use WithAPIKey)", EnvAPIKey)
	}
	if opts.region == "" && opts.baseURL == "" {
		return nil, fmt.Errorf("azure: missing region (set %s or use WithRegion)", EnvRegion)
	}

	return &Service{opts: opts, log: opts.logger}, nil
}

// Name implements speech.Service.
func (s *Service) Name() string { return ServiceName }

func (s *Service) endpoint() string {
	if s.opts.baseURL != "" {
		return s.opts.baseURL
	}
	return fmt.Sprintf("https://%s.tts.speech.microsoft.com", s.opts.region)
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
		Voice:        s.opts.voice,
		Style:        s.opts.style,
		StyleDegree:  s.opts.styleDegree,
		Rate:         s.opts.rate,
		Pitch:        s.opts.pitch,
		OutputFormat: s.opts.outputFormat,
	}
	if ov.Style != nil {
		cfg.Style = ov.Style
	}
	if ov.StyleDegree != nil {
		cfg.StyleDegree = ov.StyleDegree
	}
	if ov.Rate != nil {
		cfg.Rate = ov.Rate
	}
	if ov.Pitch != nil {
		cfg.Pitch = ov.Pitch
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

	ssml := buildSSML(req.Text, cfg)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.endpoint()+"/cognitiveservices/v1", strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("building synthesis request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", s.opts.apiKey)
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", cfg.OutputFormat)
	httpReq.Header.Set("User-Agent", userAgent)

	s.log.Debug("requesting synthesis",
		"service", ServiceName,
		"voice", cfg.Voice,
		"chars", len(req.Text),
	)

	resp, err := s.opts.httpClient.Do(httpReq)
	if err != nil {
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return nil, speech.NewVendorError(ServiceName, "synthesize", resp.StatusCode, msg, nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, "reading audio stream", err)
	}

	format, sampleRate := parseOutputFormat(cfg.OutputFormat)
	return &speech.Audio{Data: data, Format: format, SampleRate: sampleRate}, nil
}

// azureVoice is one entry of the voices/list response.
type azureVoice struct {
	Name        string   `json:"Name"`
	DisplayName string   `json:"DisplayName"`
	ShortName   string   `json:"ShortName"`
	Gender      string   `json:"Gender"`
	Locale      string   `json:"Locale"`
	StyleList   []string `json:"StyleList"`
}

// Voices implements speech.VoiceLister.
func (s *Service) Voices(ctx context.Context) ([]speech.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.endpoint()+"/cognitiveservices/voices/list", nil)
	if err != nil {
		return nil, fmt.Errorf("building voices request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.opts.apiKey)
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.opts.httpClient.Do(req)
	if err != nil {
		return nil, speech.NewVendorError(ServiceName, "voices", 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, speech.NewVendorError(ServiceName, "voices", resp.StatusCode, resp.Status, nil)
	}

	var list []azureVoice
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, speech.NewVendorError(ServiceName, "voices", 0, "decoding voice list", err)
	}

	out := make([]speech.Voice, len(list))
	for i, v := range list {
		desc := ""
		if len(v.StyleList) > 0 {
			desc = "styles: " + strings.Join(v.StyleList, ", ")
		}
		out[i] = speech.Voice{
			ID:          v.ShortName,
			Name:        v.DisplayName,
			Language:    v.Locale,
			Gender:      v.Gender,
			Description: desc,
		}
	}
	return out, nil
}

// parseOutputFormat derives container format and sample rate from an Azure
// output format name such as "audio-48khz-192kbitrate-mono-mp3" or
// "riff-24khz-16bit-mono-pcm".
func parseOutputFormat(name string) (speech.Format, int) {
	var format speech.Format
	switch {
	case strings.HasSuffix(name, "mp3"):
		format = speech.FormatMP3
	case strings.HasPrefix(name, "riff"):
		format = speech.FormatWAV
	}

	sampleRate := 0
	for _, part := range strings.Split(name, "-") {
		if rate, ok := strings.CutSuffix(part, "khz"); ok {
			if n, err := strconv.Atoi(rate); err == nil {
				sampleRate = n * 1000
			}
		}
	}
	return format, sampleRate
}
