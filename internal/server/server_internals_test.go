package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voiceoverkit/go-voiceover/internal/audio"
	"github.com/voiceoverkit/go-voiceover/internal/config"
)

// --- New & chaining setters ---

func TestNew_ShutdownTimeoutFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ShutdownTimeoutS = 12

	s := New(cfg, nil, nil)
	if s == nil {
		t.Fatal("New() returned nil")
	}

	if s.shutdownTimeout != 12*time.Second {
		t.Errorf("shutdownTimeout = %v; want 12s", s.shutdownTimeout)
	}
}

func TestNew_ZeroShutdownTimeoutFallsBack(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ShutdownTimeoutS = 0

	s := New(cfg, nil, nil)
	if s.shutdownTimeout != 30*time.Second {
		t.Errorf("shutdownTimeout = %v; want 30s", s.shutdownTimeout)
	}
}

func TestWithShutdownTimeout_Chaining(t *testing.T) {
	cfg := config.DefaultConfig()
	s := New(cfg, nil, nil)

	returned := s.WithShutdownTimeout(10 * time.Second)
	// Must return the same *Server for chaining.
	if returned != s {
		t.Error("WithShutdownTimeout should return the same *Server")
	}

	if s.shutdownTimeout != 10*time.Second {
		t.Errorf("shutdownTimeout = %v; want 10s", s.shutdownTimeout)
	}
}

func TestWithOverridesDecoder_Chaining(t *testing.T) {
	cfg := config.DefaultConfig()
	s := New(cfg, nil, nil)

	returned := s.WithOverridesDecoder(func(json.RawMessage) (any, error) { return nil, nil })
	if returned != s {
		t.Error("WithOverridesDecoder should return the same *Server")
	}

	if s.decodeOverride == nil {
		t.Error("decodeOverride not installed")
	}
}

// --- Start: missing narrator ---

func TestStart_RequiresNarrator(t *testing.T) {
	cfg := config.DefaultConfig()
	s := New(cfg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	err := s.Start(ctx)
	if err == nil {
		t.Error("Start() = nil; want error when narrator is nil")
	}
}

// --- contentTypeFor ---

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		format audio.Format
		want   string
	}{
		{audio.FormatMP3, "audio/mpeg"},
		{audio.FormatWAV, "audio/wav"},
		{audio.FormatUnknown, "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := contentTypeFor(tt.format); got != tt.want {
			t.Errorf("contentTypeFor(%q) = %q; want %q", tt.format, got, tt.want)
		}
	}
}

// --- ProbeHTTP ---

func TestProbeHTTP_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	// ProbeHTTP uses "http://" prefix + addr, so strip the scheme.
	addr := srv.Listener.Addr().String()

	err := ProbeHTTP(addr)
	if err != nil {
		t.Errorf("ProbeHTTP(%q) = %v; want nil", addr, err)
	}
}

func TestProbeHTTP_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	addr := srv.Listener.Addr().String()

	err := ProbeHTTP(addr)
	if err == nil {
		t.Error("ProbeHTTP() = nil; want error for non-200 response")
	}
}

func TestProbeHTTP_ConnectionRefused(t *testing.T) {
	err := ProbeHTTP("127.0.0.1:1")
	if err == nil {
		t.Error("ProbeHTTP() = nil; want error for unreachable host")
	}
}

// --- Functional options ---

func TestOptions_WithMaxTextBytes(t *testing.T) {
	opts := defaultOptions()
	WithMaxTextBytes(1024)(&opts)

	if opts.maxTextBytes != 1024 {
		t.Errorf("maxTextBytes = %d; want 1024", opts.maxTextBytes)
	}
}

func TestOptions_WithWorkers(t *testing.T) {
	opts := defaultOptions()
	WithWorkers(8)(&opts)

	if opts.workers != 8 {
		t.Errorf("workers = %d; want 8", opts.workers)
	}
}

func TestOptions_WithRequestTimeout(t *testing.T) {
	opts := defaultOptions()
	WithRequestTimeout(90 * time.Second)(&opts)

	if opts.requestTimeout != 90*time.Second {
		t.Errorf("requestTimeout = %v; want 90s", opts.requestTimeout)
	}
}

func TestOptions_WithOverridesDecoder(t *testing.T) {
	opts := defaultOptions()
	WithOverridesDecoder(func(json.RawMessage) (any, error) { return "decoded", nil })(&opts)

	if opts.decodeOverride == nil {
		t.Fatal("decodeOverride not set")
	}

	got, err := opts.decodeOverride(nil)
	if err != nil || got != "decoded" {
		t.Errorf("decodeOverride() = %v, %v; want decoded, nil", got, err)
	}
}
