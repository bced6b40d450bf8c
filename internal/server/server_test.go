package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voiceoverkit/go-voiceover/internal/server"
	"github.com/voiceoverkit/go-voiceover/internal/testutil"
	"github.com/voiceoverkit/go-voiceover/speech"
)

// stubNarrator implements server.Narrator for tests.
type stubNarrator struct {
	narration *speech.Narration
	err       error
	cached    map[string]*speech.Narration

	lastText      string
	lastOverrides any
}

func (s *stubNarrator) Synthesize(_ context.Context, text string, overrides any) (*speech.Narration, error) {
	s.lastText = text
	s.lastOverrides = overrides
	return s.narration, s.err
}

func (s *stubNarrator) Cached(hash string) (*speech.Narration, bool) {
	n, ok := s.cached[hash]
	return n, ok
}

// stubVoices implements speech.VoiceLister for tests.
type stubVoices struct {
	voices []speech.Voice
	err    error
}

func (v *stubVoices) Voices(_ context.Context) ([]speech.Voice, error) {
	return v.voices, v.err
}

func newTestHandler(narrator server.Narrator, voices speech.VoiceLister, opts ...server.Option) http.Handler {
	return server.NewHandler(narrator, voices, opts...)
}

func postNarration(h http.Handler, body string) *httptest.ResponseRecorder {
	return postNarrationWithContext(context.Background(), h, body)
}

func postNarrationWithContext(ctx context.Context, h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/narrations", bytes.NewBufferString(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// GET /healthz
// ---------------------------------------------------------------------------

func TestHealthz_Returns200WithStatusOK(t *testing.T) {
	h := newTestHandler(&stubNarrator{}, &stubVoices{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var body map[string]string
	err := json.NewDecoder(rec.Body).Decode(&body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("want status=ok, got %q", body["status"])
	}

	if _, ok := body["version"]; !ok {
		t.Error("want version field in response")
	}
}

// ---------------------------------------------------------------------------
// GET /voices
// ---------------------------------------------------------------------------

func TestVoices_ReturnsJSONArray(t *testing.T) {
	voices := []speech.Voice{
		{ID: "EXAVITQu4vr4xnSDxMaL", Name: "Sarah", Language: "en"},
		{ID: "21m00Tcm4TlvDq8ikWAM", Name: "Rachel", Language: "en"},
	}
	h := newTestHandler(&stubNarrator{}, &stubVoices{voices: voices})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/voices", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var got []map[string]any
	err := json.NewDecoder(rec.Body).Decode(&got)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("want 2 voices, got %d", len(got))
	}

	if got[0]["id"] != "EXAVITQu4vr4xnSDxMaL" || got[1]["name"] != "Rachel" {
		t.Errorf("unexpected voices: %v", got)
	}
}

func TestVoices_ReturnsEmptyArrayWhenNoVoices(t *testing.T) {
	h := newTestHandler(&stubNarrator{}, &stubVoices{voices: []speech.Voice{}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/voices", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if body != "[]\n" {
		t.Errorf("want empty JSON array, got %q", body)
	}
}

func TestVoices_NilListerReturns501(t *testing.T) {
	h := newTestHandler(&stubNarrator{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/voices", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("want 501, got %d", rec.Code)
	}
}

func TestVoices_VendorErrorReturns502(t *testing.T) {
	ve := speech.NewVendorError("elevenlabs", "voices", 401, "invalid api key", nil)
	h := newTestHandler(&stubNarrator{}, &stubVoices{err: ve})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/voices", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("want 502, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /narrations
// ---------------------------------------------------------------------------

func TestNarrations_ReturnsMissingBodyAs400(t *testing.T) {
	h := newTestHandler(&stubNarrator{}, &stubVoices{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/narrations", nil)
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}

	var body map[string]string
	err := json.NewDecoder(rec.Body).Decode(&body)
	if err != nil {
		t.Fatalf("decode error body: %v", err)
	}

	if body["error"] == "" {
		t.Error("want non-empty error field")
	}
}

func TestNarrations_ReturnsEmptyTextAs400(t *testing.T) {
	h := newTestHandler(&stubNarrator{}, &stubVoices{})

	rec := postNarration(h, `{"text":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestNarrations_GetReturns405(t *testing.T) {
	h := newTestHandler(&stubNarrator{}, &stubVoices{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/narrations", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}

func TestNarrations_ReturnsNarrationJSONOnSuccess(t *testing.T) {
	narrator := &stubNarrator{
		narration: &speech.Narration{
			Hash:         "abc123",
			Service:      "elevenlabs",
			StrippedText: "Hello world.",
			Duration:     1500 * time.Millisecond,
			SampleRate:   22050,
			WordBoundaries: []speech.WordBoundary{
				{Word: "hello", Start: 0, End: 700 * time.Millisecond, TextOffset: 0},
				{Word: "world", Start: 700 * time.Millisecond, End: 1400 * time.Millisecond, TextOffset: 6},
			},
			Cached: true,
		},
	}
	h := newTestHandler(narrator, &stubVoices{})

	rec := postNarration(h, `{"text":"Hello world."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body["hash"] != "abc123" {
		t.Errorf("hash = %v; want abc123", body["hash"])
	}

	if body["duration_ms"] != float64(1500) {
		t.Errorf("duration_ms = %v; want 1500", body["duration_ms"])
	}

	if body["num_words"] != float64(2) {
		t.Errorf("num_words = %v; want 2", body["num_words"])
	}

	if body["cached"] != true {
		t.Errorf("cached = %v; want true", body["cached"])
	}

	if body["audio_url"] != "/narrations/abc123/audio" {
		t.Errorf("audio_url = %v; want /narrations/abc123/audio", body["audio_url"])
	}

	if narrator.lastText != "Hello world." {
		t.Errorf("narrator received text %q", narrator.lastText)
	}
}

func TestNarrations_EmptyAfterStripReturns400(t *testing.T) {
	narrator := &stubNarrator{err: speech.ErrEmptyText}
	h := newTestHandler(narrator, &stubVoices{})

	rec := postNarration(h, `{"text":"<bookmark mark='a'/>"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestNarrations_VendorErrorReturns502(t *testing.T) {
	ve := speech.NewVendorError("elevenlabs", "synthesize", 429, "rate limit exceeded", nil)
	narrator := &stubNarrator{err: ve}
	h := newTestHandler(narrator, &stubVoices{})

	rec := postNarration(h, `{"text":"Hello."}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("want 502, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}

	if body["service"] != "elevenlabs" {
		t.Errorf("service = %v; want elevenlabs", body["service"])
	}

	if body["vendor_status"] != float64(429) {
		t.Errorf("vendor_status = %v; want 429", body["vendor_status"])
	}

	if body["error"] == "" {
		t.Error("want non-empty error field")
	}
}

func TestNarrations_OtherErrorReturns500(t *testing.T) {
	narrator := &stubNarrator{err: errSynthFailed}
	h := newTestHandler(narrator, &stubVoices{})

	rec := postNarration(h, `{"text":"Hello."}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}

	var errBody map[string]string
	err := json.NewDecoder(rec.Body).Decode(&errBody)
	if err != nil {
		t.Fatalf("decode error body: %v", err)
	}

	if errBody["error"] == "" {
		t.Error("want non-empty error field")
	}
}

// ---------------------------------------------------------------------------
// overrides
// ---------------------------------------------------------------------------

func TestNarrations_OverridesDecoded(t *testing.T) {
	type fakeOverrides struct {
		Speed float64 `json:"speed"`
	}

	narrator := &stubNarrator{narration: &speech.Narration{Hash: "h"}}
	h := newTestHandler(narrator, &stubVoices{},
		server.WithOverridesDecoder(func(raw json.RawMessage) (any, error) {
			var o fakeOverrides
			if err := json.Unmarshal(raw, &o); err != nil {
				return nil, err
			}
			return &o, nil
		}),
	)

	rec := postNarration(h, `{"text":"Hello.","overrides":{"speed":1.5}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	got, ok := narrator.lastOverrides.(*fakeOverrides)
	if !ok {
		t.Fatalf("overrides type = %T; want *fakeOverrides", narrator.lastOverrides)
	}

	if got.Speed != 1.5 {
		t.Errorf("decoded speed = %v; want 1.5", got.Speed)
	}
}

func TestNarrations_OverridesWithoutDecoderRejected(t *testing.T) {
	narrator := &stubNarrator{narration: &speech.Narration{Hash: "h"}}
	h := newTestHandler(narrator, &stubVoices{})

	rec := postNarration(h, `{"text":"Hello.","overrides":{"speed":1.5}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestNarrations_NullOverridesIgnored(t *testing.T) {
	narrator := &stubNarrator{narration: &speech.Narration{Hash: "h"}}
	h := newTestHandler(narrator, &stubVoices{})

	rec := postNarration(h, `{"text":"Hello.","overrides":null}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	if narrator.lastOverrides != nil {
		t.Errorf("overrides = %v; want nil", narrator.lastOverrides)
	}
}

func TestNarrations_InvalidOverridesRejected(t *testing.T) {
	narrator := &stubNarrator{narration: &speech.Narration{Hash: "h"}}
	h := newTestHandler(narrator, &stubVoices{},
		server.WithOverridesDecoder(func(raw json.RawMessage) (any, error) {
			var o struct{}
			if err := json.Unmarshal(raw, &o); err != nil {
				return nil, err
			}
			return &o, nil
		}),
	)

	rec := postNarration(h, `{"text":"Hello.","overrides":"not an object"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /narrations/{hash}/audio
// ---------------------------------------------------------------------------

func TestNarrationAudio_ServesCachedWAV(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.wav")
	testutil.WriteTestWAV(t, clip, 0.1, 8000)

	narrator := &stubNarrator{
		cached: map[string]*speech.Narration{
			"deadbeef": {Hash: "deadbeef", AudioPath: clip},
		},
	}
	h := newTestHandler(narrator, &stubVoices{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/narrations/deadbeef/audio", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("want Content-Type audio/wav, got %q", ct)
	}

	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("RIFF")) {
		t.Error("response body is not the cached WAV clip")
	}
}

func TestNarrationAudio_ServesMP3ContentType(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mp3")

	// Minimal MPEG frame header so format sniffing sees MP3.
	mp3 := []byte{0xFF, 0xFB, 0x90, 0x44, 0x00, 0x00, 0x00, 0x00}
	if err := os.WriteFile(clip, mp3, 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}

	narrator := &stubNarrator{
		cached: map[string]*speech.Narration{
			"cafe": {Hash: "cafe", AudioPath: clip},
		},
	}
	h := newTestHandler(narrator, &stubVoices{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/narrations/cafe/audio", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("want Content-Type audio/mpeg, got %q", ct)
	}

	if !bytes.Equal(rec.Body.Bytes(), mp3) {
		t.Errorf("want MP3 bytes back, got %d bytes", rec.Body.Len())
	}
}

func TestNarrationAudio_UnknownHashReturns404(t *testing.T) {
	h := newTestHandler(&stubNarrator{}, &stubVoices{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/narrations/nope/audio", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestNarrationAudio_MissingFileReturns500(t *testing.T) {
	narrator := &stubNarrator{
		cached: map[string]*speech.Narration{
			"gone": {Hash: "gone", AudioPath: filepath.Join(t.TempDir(), "missing.mp3")},
		},
	}
	h := newTestHandler(narrator, &stubVoices{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/narrations/gone/audio", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}
}

var errSynthFailed = &synthError{"synthesis failed"}

type synthError struct{ msg string }

func (e *synthError) Error() string { return e.msg }
