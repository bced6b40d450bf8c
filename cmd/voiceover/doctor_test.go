package main

import (
	"testing"

	"github.com/voiceoverkit/go-voiceover/internal/config"
	"github.com/voiceoverkit/go-voiceover/speech/local"
	"github.com/voiceoverkit/go-voiceover/speech/whisper"
)

func TestDoctorConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Dir = "media/test"
	cfg.Speech.Transcription = true

	dcfg := doctorConfig(cfg, config.ServiceElevenLabs, true)

	if dcfg.CacheDir != "media/test" {
		t.Errorf("unexpected cache dir: %q", dcfg.CacheDir)
	}
	if !dcfg.TranscriptionEnabled {
		t.Error("expected transcription check enabled")
	}
	if dcfg.TranscriptionEnv != whisper.EnvAPIKey {
		t.Errorf("unexpected transcription env: %q", dcfg.TranscriptionEnv)
	}
	if !dcfg.Live {
		t.Error("expected live flag carried through")
	}
	if dcfg.LocalCommand != "" {
		t.Errorf("local command should be empty for elevenlabs, got %q", dcfg.LocalCommand)
	}
	if dcfg.BuildService == nil {
		t.Error("expected a service builder")
	}
}

func TestDoctorConfig_LocalService(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Speech.Service = "local"

	dcfg := doctorConfig(cfg, config.ServiceLocal, false)
	if dcfg.LocalCommand != local.DefaultCommand[0] {
		t.Errorf("expected default local command, got %q", dcfg.LocalCommand)
	}

	cfg.Local.Command = "piper -o {out} {text}"
	dcfg = doctorConfig(cfg, config.ServiceLocal, false)
	if dcfg.LocalCommand != "piper" {
		t.Errorf("expected piper, got %q", dcfg.LocalCommand)
	}
}

func TestDoctorConfig_BuildServiceUsesConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Speech.Service = "edge"

	dcfg := doctorConfig(cfg, config.ServiceEdge, false)

	svc, err := dcfg.BuildService()
	if err != nil {
		t.Fatalf("BuildService returned error: %v", err)
	}
	if svc.Name() != "edge" {
		t.Errorf("unexpected service: %q", svc.Name())
	}
}
