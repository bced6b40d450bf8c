package azure

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/voiceoverkit/go-voiceover/speech"
)

type fakeVendor struct {
	srv *httptest.Server

	mu         sync.Mutex
	audio      []byte
	ttsStatus  int
	ttsError   string
	voices     []azureVoice
	lastKey    string
	lastFormat string
	lastCType  string
	lastSSML   string
}

func newFakeVendor(t *testing.T) *fakeVendor {
	t.Helper()

	f := &fakeVendor{
		audio: []byte("fake-mp3"),
		voices: []azureVoice{
			{Name: "Microsoft Aria", DisplayName: "Aria", ShortName: "en-US-AriaNeural",
				Gender: "Female", Locale: "en-US", StyleList: []string{"chat", "newscast"}},
		},
	}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.URL.Path {
		case "/cognitiveservices/v1":
			f.lastKey = r.Header.Get("Ocp-Apim-Subscription-Key")
			f.lastFormat = r.Header.Get("X-Microsoft-OutputFormat")
			f.lastCType = r.Header.Get("Content-Type")
			body, _ := io.ReadAll(r.Body)
			f.lastSSML = string(body)

			if f.ttsStatus != 0 && f.ttsStatus != http.StatusOK {
				w.WriteHeader(f.ttsStatus)
				_, _ = w.Write([]byte(f.ttsError))
				return
			}
			_, _ = w.Write(f.audio)

		case "/cognitiveservices/voices/list":
			_ = json.NewEncoder(w).Encode(f.voices)

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)

	return f
}

func newTestService(t *testing.T, f *fakeVendor, opts ...Option) *Service {
	t.Helper()

	base := []Option{
		WithAPIKey("test-key"),
		WithBaseURL(f.srv.URL),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	svc, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestNew_RequiresCredentials(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvRegion, "")

	if _, err := New(); err == nil {
		t.Error("want error without subscription key")
	}
	if _, err := New(WithAPIKey("k")); err == nil {
		t.Error("want error without region or base URL")
	}
	if _, err := New(WithAPIKey("k"), WithRegion("eastus")); err != nil {
		t.Errorf("key plus region should suffice: %v", err)
	}
}

func TestSynthesize_SendsSSML(t *testing.T) {
	f := newFakeVendor(t)
	svc := newTestService(t, f, WithVoice("en-US-GuyNeural"), WithStyle("newscast"))

	out, err := svc.Synthesize(context.Background(), speech.Request{Text: "Top story."})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if string(out.Data) != "fake-mp3" {
		t.Errorf("audio = %q", out.Data)
	}
	if out.Format != speech.FormatMP3 || out.SampleRate != 48000 {
		t.Errorf("format/rate = %q/%d, want mp3/48000", out.Format, out.SampleRate)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lastKey != "test-key" {
		t.Errorf("subscription key header = %q", f.lastKey)
	}
	if f.lastCType != "application/ssml+xml" {
		t.Errorf("content type = %q", f.lastCType)
	}
	if f.lastFormat != DefaultOutputFormat {
		t.Errorf("output format header = %q", f.lastFormat)
	}
	if !strings.Contains(f.lastSSML, `<voice name="en-US-GuyNeural">`) {
		t.Errorf("ssml missing voice element: %s", f.lastSSML)
	}
	if !strings.Contains(f.lastSSML, `<mstts:express-as style="newscast">Top story.</mstts:express-as>`) {
		t.Errorf("ssml missing styled text: %s", f.lastSSML)
	}
}

func TestSynthesize_OverridesReplaceDefaults(t *testing.T) {
	f := newFakeVendor(t)
	svc := newTestService(t, f, WithStyle("sad"), WithRate("-10.00%"))

	_, err := svc.Synthesize(context.Background(), speech.Request{
		Text:      "Cheer up.",
		Overrides: &Overrides{Style: strptr("cheerful"), Rate: strptr("+20.00%")},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !strings.Contains(f.lastSSML, `style="cheerful"`) {
		t.Errorf("style override lost: %s", f.lastSSML)
	}
	if !strings.Contains(f.lastSSML, `rate="+20.00%"`) {
		t.Errorf("rate override lost: %s", f.lastSSML)
	}
}

func TestSynthesize_VendorError(t *testing.T) {
	f := newFakeVendor(t)
	f.ttsStatus = http.StatusTooManyRequests
	f.ttsError = "rate limit exceeded"
	svc := newTestService(t, f)

	_, err := svc.Synthesize(context.Background(), speech.Request{Text: "Hello."})

	var ve *speech.VendorError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *VendorError", err)
	}
	if !ve.IsRateLimited() {
		t.Errorf("status = %d, want 429 classification", ve.StatusCode)
	}
	if ve.Message != "rate limit exceeded" {
		t.Errorf("message = %q", ve.Message)
	}
}

func TestConfigPayload_Shape(t *testing.T) {
	f := newFakeVendor(t)
	svc := newTestService(t, f, WithVoice("en-US-GuyNeural"))

	cfg, err := svc.ConfigPayload(context.Background(), speech.Request{Text: "Hi."})
	if err != nil {
		t.Fatalf("ConfigPayload: %v", err)
	}

	raw, _ := json.Marshal(cfg)
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		t.Fatal(err)
	}

	for _, k := range []string{"voice", "style", "style_degree", "rate", "pitch", "output_format"} {
		if _, ok := keys[k]; !ok {
			t.Errorf("key %q missing from payload", k)
		}
	}
	if string(keys["voice"]) != `"en-US-GuyNeural"` {
		t.Errorf("voice = %s", keys["voice"])
	}
	if string(keys["style"]) != "null" {
		t.Errorf("unset style = %s, want null", keys["style"])
	}
}

func TestVoices_MapsFields(t *testing.T) {
	f := newFakeVendor(t)
	svc := newTestService(t, f)

	voices, err := svc.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 1 {
		t.Fatalf("len = %d, want 1", len(voices))
	}

	v := voices[0]
	if v.ID != "en-US-AriaNeural" || v.Name != "Aria" || v.Language != "en-US" || v.Gender != "Female" {
		t.Errorf("voice = %+v", v)
	}
	if !strings.Contains(v.Description, "newscast") {
		t.Errorf("description = %q, want style list", v.Description)
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		name       string
		wantFormat speech.Format
		wantRate   int
	}{
		{name: "audio-48khz-192kbitrate-mono-mp3", wantFormat: speech.FormatMP3, wantRate: 48000},
		{name: "audio-16khz-128kbitrate-mono-mp3", wantFormat: speech.FormatMP3, wantRate: 16000},
		{name: "riff-24khz-16bit-mono-pcm", wantFormat: speech.FormatWAV, wantRate: 24000},
		{name: "ogg-24khz-16bit-mono-opus", wantFormat: "", wantRate: 24000},
	}

	for _, tt := range tests {
		format, rate := parseOutputFormat(tt.name)
		if format != tt.wantFormat || rate != tt.wantRate {
			t.Errorf("parseOutputFormat(%q) = %q/%d, want %q/%d",
				tt.name, format, rate, tt.wantFormat, tt.wantRate)
		}
	}
}
