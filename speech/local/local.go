// Package local runs a user-configured command line tool (espeak-ng, say,
// piper) that writes a WAV file, for fully offline synthesis.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/voiceoverkit/go-voiceover/internal/audio"
	"github.com/voiceoverkit/go-voiceover/speech"
)

const (
	// ServiceName is the identifier recorded in cache entries.
	ServiceName = "local"

	// TextPlaceholder and OutPlaceholder are replaced in the command
	// template with the narration text and the output file path.
	TextPlaceholder = "{text}"
	OutPlaceholder  = "{out}"
)

// DefaultCommand synthesizes with espeak-ng, which is widely packaged and
// writes WAV directly.
var DefaultCommand = []string{"espeak-ng", "-w", OutPlaceholder, TextPlaceholder}

// runCommand executes the expanded command and returns captured stderr.
// Tests replace it to synthesize without a real binary.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// Config is the effective parameter set for one synthesis request and the
// cache fingerprint payload.
type Config struct {
	Command []string `json:"command"`
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	command []string
	logger  *slog.Logger
}

func defaultOptions() options {
	return options{
		command: DefaultCommand,
		logger:  slog.Default(),
	}
}

// Option configures the local service.
type Option func(*options)

// WithCommand sets the command template. Arguments may contain the {text}
// and {out} placeholders.
func WithCommand(argv ...string) Option {
	return func(o *options) { o.command = argv }
}

// WithLogger sets the slog.Logger used by the service.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service synthesizes speech by invoking an external command.
type Service struct {
	opts options
	log  *slog.Logger
}

var _ speech.Service = (*Service)(nil)

// New builds a local service.
func New(optFns ...Option) (*Service, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if len(opts.command) == 0 {
		return nil, errors.New("local: empty command template")
	}
	if !containsPlaceholder(opts.command, OutPlaceholder) {
		return nil, fmt.Errorf("local: command template is missing the %s placeholder", OutPlaceholder)
	}

	return &Service{opts: opts, log: opts.logger}, nil
}

func containsPlaceholder(argv []string, placeholder string) bool {
	for _, arg := range argv {
		if strings.Contains(arg, placeholder) {
			return true
		}
	}
	return false
}

// Name implements speech.Service.
func (s *Service) Name() string { return ServiceName }

// ConfigPayload implements speech.Service. The command template has no
// per-request overrides.
func (s *Service) ConfigPayload(_ context.Context, req speech.Request) (any, error) {
	if req.Overrides != nil {
		return nil, speech.InvalidParamf(ServiceName, "unsupported overrides type %T", req.Overrides)
	}
	return &Config{Command: s.opts.command}, nil
}

// Synthesize implements speech.Service. It expands the command template,
// runs it, and reads the WAV file it wrote.
func (s *Service) Synthesize(ctx context.Context, req speech.Request) (*speech.Audio, error) {
	cfg, ok := req.Config.(*Config)
	if !ok || cfg == nil {
		built, err := s.ConfigPayload(ctx, req)
		if err != nil {
			return nil, err
		}
		cfg = built.(*Config)
	}

	tmp, err := os.CreateTemp("", "voiceover-local-*.wav")
	if err != nil {
		return nil, fmt.Errorf("local: creating output file: %w", err)
	}
	outPath := tmp.Name()
	tmp.Close()
	defer os.Remove(outPath)

	argv := expandTemplate(cfg.Command, req.Text, outPath)

	s.log.Debug("running synthesis command",
		"service", ServiceName,
		"command", argv[0],
		"chars", len(req.Text),
	)

	stderr, err := runCommand(ctx, argv[0], argv[1:]...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, speech.NewVendorError(ServiceName, "synthesize", 0,
				fmt.Sprintf("command %q not found", argv[0]), err)
		}
		msg := strings.TrimSpace(string(stderr))
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, msg, err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, "reading command output", err)
	}
	if len(data) == 0 {
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, "command produced no audio", nil)
	}
	if audio.DetectFormat(data) != audio.FormatWAV {
		return nil, speech.NewVendorError(ServiceName, "synthesize", 0, "command output is not a wav file", nil)
	}

	return &speech.Audio{Data: data, Format: speech.FormatWAV}, nil
}

// expandTemplate substitutes the placeholders in every argument. The text
// travels as a single argument regardless of spaces.
func expandTemplate(argv []string, text, outPath string) []string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		arg = strings.ReplaceAll(arg, TextPlaceholder, text)
		arg = strings.ReplaceAll(arg, OutPlaceholder, outPath)
		out[i] = arg
	}
	return out
}
