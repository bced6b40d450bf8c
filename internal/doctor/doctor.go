// Package doctor provides environment preflight checks for voiceover.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/voiceoverkit/go-voiceover/speech"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// liveProbeTimeout bounds the optional vendor voices call.
const liveProbeTimeout = 15 * time.Second

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// CacheDir is verified to exist (created when missing) and be writable.
	CacheDir string
	// BuildService constructs the configured speech service. Construction
	// errors name any missing credential, so they read well in the report.
	BuildService func() (speech.Service, error)
	// LocalCommand is the binary name of the local engine command, when the
	// local service is configured. Empty skips the check.
	LocalCommand string
	// LookPath resolves LocalCommand on PATH. Defaults to exec.LookPath.
	LookPath func(string) (string, error)
	// TranscriptionEnabled reports whether word-boundary transcription is on.
	TranscriptionEnabled bool
	// TranscriptionEnv is the environment variable holding the transcription
	// API key.
	TranscriptionEnv string
	// Live enables one voices call against the vendor.
	Live bool
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(ctx context.Context, cfg Config, w io.Writer) Result {
	var res Result

	// ---- cache directory --------------------------------------------------
	if err := checkCacheDir(cfg.CacheDir); err != nil {
		res.fail(fmt.Sprintf("cache dir %q: %v", cfg.CacheDir, err))
		fmt.Fprintf(w, "%s cache dir %s: %v\n", FailMark, cfg.CacheDir, err)
	} else {
		fmt.Fprintf(w, "%s cache dir: %s\n", PassMark, cfg.CacheDir)
	}

	// ---- speech service ---------------------------------------------------
	var svc speech.Service
	if cfg.BuildService == nil {
		fmt.Fprintf(w, "%s speech service: skipped\n", PassMark)
	} else {
		var err error
		svc, err = cfg.BuildService()
		if err != nil {
			res.fail(fmt.Sprintf("speech service: %v", err))
			fmt.Fprintf(w, "%s speech service: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s speech service: %s\n", PassMark, svc.Name())
		}
	}

	// ---- local engine command ---------------------------------------------
	if cfg.LocalCommand != "" {
		lookPath := cfg.LookPath
		if lookPath == nil {
			lookPath = exec.LookPath
		}
		path, err := lookPath(cfg.LocalCommand)
		if err != nil {
			res.fail(fmt.Sprintf("local command %q: %v", cfg.LocalCommand, err))
			fmt.Fprintf(w, "%s local command %s: not found\n", FailMark, cfg.LocalCommand)
		} else {
			fmt.Fprintf(w, "%s local command: %s\n", PassMark, path)
		}
	}

	// ---- transcription key ------------------------------------------------
	if !cfg.TranscriptionEnabled {
		fmt.Fprintf(w, "%s transcription: disabled\n", PassMark)
	} else if os.Getenv(cfg.TranscriptionEnv) == "" {
		res.fail(fmt.Sprintf("transcription: %s not set", cfg.TranscriptionEnv))
		fmt.Fprintf(w, "%s transcription: %s not set\n", FailMark, cfg.TranscriptionEnv)
	} else {
		fmt.Fprintf(w, "%s transcription: %s set\n", PassMark, cfg.TranscriptionEnv)
	}

	// ---- live vendor probe ------------------------------------------------
	if !cfg.Live {
		fmt.Fprintf(w, "%s vendor probe: skipped\n", PassMark)
	} else if svc == nil {
		res.fail("vendor probe: service unavailable")
		fmt.Fprintf(w, "%s vendor probe: service unavailable\n", FailMark)
	} else if lister, ok := svc.(speech.VoiceLister); !ok {
		fmt.Fprintf(w, "%s vendor probe: not supported by %s\n", PassMark, svc.Name())
	} else {
		probeCtx, cancel := context.WithTimeout(ctx, liveProbeTimeout)
		voices, err := lister.Voices(probeCtx)
		cancel()
		if err != nil {
			res.fail(fmt.Sprintf("vendor probe: %v", err))
			fmt.Fprintf(w, "%s vendor probe: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s vendor probe: %d voices\n", PassMark, len(voices))
		}
	}

	return res
}

// checkCacheDir creates dir when missing and confirms a file can be written
// inside it.
func checkCacheDir(dir string) error {
	if dir == "" {
		return errors.New("not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}
