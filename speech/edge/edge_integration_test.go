//go:build integration

package edge

import (
	"context"
	"testing"
	"time"

	"github.com/voiceoverkit/go-voiceover/internal/audio"
	"github.com/voiceoverkit/go-voiceover/speech"
)

// TestSynthesize_Live exercises the real Edge endpoint. It needs network
// access and is skipped in short mode.
func TestSynthesize_Live(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	svc := New()
	out, err := svc.Synthesize(ctx, speech.Request{Text: "Hello from the test suite."})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(out.Data) == 0 {
		t.Fatal("no audio bytes")
	}
	if out.Format != speech.FormatMP3 {
		t.Errorf("format = %q, want mp3", out.Format)
	}
	if audio.DetectFormat(out.Data) != audio.FormatMP3 {
		t.Error("returned bytes are not MP3")
	}
}
