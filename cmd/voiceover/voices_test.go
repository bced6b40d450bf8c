package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/voiceoverkit/go-voiceover/internal/config"
	"github.com/voiceoverkit/go-voiceover/speech"
)

func TestWriteVoices_Text(t *testing.T) {
	var buf bytes.Buffer
	voices := []speech.Voice{
		{ID: "en-US-AriaNeural", Name: "Aria", Language: "en-US", Gender: "Female"},
		{ID: "af", Name: "Afrikaans"},
	}

	if err := writeVoices(&buf, voices, false); err != nil {
		t.Fatalf("writeVoices returned error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "Aria, en-US, Female") {
		t.Errorf("unexpected first line: %q", lines[0])
	}
	// IDs are padded to a shared column width.
	want := fmt.Sprintf("%-*s  Afrikaans", len("en-US-AriaNeural"), "af")
	if lines[1] != want {
		t.Errorf("expected %q, got %q", want, lines[1])
	}
}

func TestWriteVoices_JSON(t *testing.T) {
	var buf bytes.Buffer
	voices := []speech.Voice{
		{ID: "aria", Name: "Aria", Language: "en-US", Gender: "Female", Description: "Bright voice"},
		{ID: "af"},
	}

	if err := writeVoices(&buf, voices, true); err != nil {
		t.Fatalf("writeVoices returned error: %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 voices, got %d", len(got))
	}
	if got[0]["id"] != "aria" || got[0]["description"] != "Bright voice" {
		t.Errorf("unexpected first voice: %v", got[0])
	}
	if _, ok := got[1]["gender"]; ok {
		t.Errorf("empty fields should be omitted, got %v", got[1])
	}
}

func TestJoinNonEmpty(t *testing.T) {
	if got := joinNonEmpty("a", "", "c"); got != "a, c" {
		t.Errorf("unexpected join: %q", got)
	}
	if got := joinNonEmpty("", "", ""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestVoicesCmd_UnsupportedService(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Speech.Service = "local"
	withTestConfig(t, cfg)

	cmd := newVoicesCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for a service without voice listing")
	}
	if !strings.Contains(err.Error(), "not supported") {
		t.Errorf("unexpected error: %v", err)
	}
}
