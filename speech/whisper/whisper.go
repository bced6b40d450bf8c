// Package whisper produces word-level timestamps for synthesized clips
// through OpenAI's transcription API.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/voiceoverkit/go-voiceover/speech"
)

const (
	// ServiceName identifies the transcriber in logs and errors.
	ServiceName = "whisper"

	// EnvAPIKey is consulted when WithAPIKey is not used.
	EnvAPIKey = "OPENAI_API_KEY"

	// DefaultModel is the transcription model.
	DefaultModel = "whisper-1"
)

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	prompt     string
	httpClient *http.Client
	logger     *slog.Logger
}

func defaultOptions() options {
	return options{
		apiKey: os.Getenv(EnvAPIKey),
		model:  DefaultModel,
		logger: slog.Default(),
	}
}

// Option configures the transcriber.
type Option func(*options)

// WithAPIKey sets the API key, overriding the OPENAI_API_KEY environment
// variable.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the transcriber at a different API host.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithModel selects the transcription model.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithLanguage hints the audio language as an ISO-639-1 code.
func WithLanguage(lang string) Option {
	return func(o *options) { o.language = lang }
}

// WithPrompt supplies context text that biases recognition, useful for
// technical vocabulary the narration is known to contain.
func WithPrompt(prompt string) Option {
	return func(o *options) { o.prompt = prompt }
}

// WithHTTPClient sets the http.Client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the slog.Logger used by the transcriber.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// Transcriber
// ---------------------------------------------------------------------------

// Transcriber implements speech.Transcriber with word timestamp
// granularity.
type Transcriber struct {
	opts   options
	client *goopenai.Client
	log    *slog.Logger
}

var _ speech.Transcriber = (*Transcriber)(nil)

// New builds a Whisper transcriber.
func New(optFns ...Option) (*Transcriber, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.apiKey == "" {
		return nil, fmt.Errorf("whisper: missing API key (set %s or use WithAPIKey)", EnvAPIKey)
	}

	cfg := goopenai.DefaultConfig(opts.apiKey)
	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}
	if opts.httpClient != nil {
		cfg.HTTPClient = opts.httpClient
	}

	return &Transcriber{
		opts:   opts,
		client: goopenai.NewClientWithConfig(cfg),
		log:    opts.logger,
	}, nil
}

// Transcribe implements speech.Transcriber. The clip at audioPath is
// uploaded whole; narration clips are short enough that chunking is not
// worth the loss of cross-chunk context.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (*speech.Transcript, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	t.log.Debug("requesting transcription",
		"service", ServiceName,
		"model", t.opts.model,
		"file", audioPath,
	)

	resp, err := t.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    t.opts.model,
		FilePath: audioPath,
		Language: t.opts.language,
		Prompt:   t.opts.prompt,
		Format:   goopenai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []goopenai.TranscriptionTimestampGranularity{
			goopenai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, vendorError("transcribe", err)
	}

	out := &speech.Transcript{
		Text:  resp.Text,
		Words: make([]speech.TranscriptWord, 0, len(resp.Words)),
	}
	for _, w := range resp.Words {
		out.Words = append(out.Words, speech.TranscriptWord{
			Word:  w.Word,
			Start: secondsToDuration(w.Start),
			End:   secondsToDuration(w.End),
		})
	}

	return out, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

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
