package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voiceoverkit/go-voiceover/internal/config"
	"github.com/voiceoverkit/go-voiceover/internal/server"
	"github.com/voiceoverkit/go-voiceover/speech"
	"github.com/voiceoverkit/go-voiceover/speech/azure"
	"github.com/voiceoverkit/go-voiceover/speech/edge"
	"github.com/voiceoverkit/go-voiceover/speech/elevenlabs"
	"github.com/voiceoverkit/go-voiceover/speech/local"
	"github.com/voiceoverkit/go-voiceover/speech/openai"
	"github.com/voiceoverkit/go-voiceover/speech/tencent"
	"github.com/voiceoverkit/go-voiceover/speech/whisper"
)

var buildSynthPipeline = buildSynthesizer

// buildSynthesizer wires the configured vendor adapter into the cached
// synthesis pipeline.
func buildSynthesizer(cfg config.Config) (*speech.Synthesizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	svc, err := buildService(cfg)
	if err != nil {
		return nil, err
	}

	opts := []speech.SynthOption{
		speech.WithCacheDir(cfg.Cache.Dir),
		speech.WithGlobalSpeed(cfg.Speech.GlobalSpeed),
	}
	if cfg.Cache.LimitMB > 0 {
		opts = append(opts, speech.WithCacheLimit(cfg.Cache.LimitMB*1024*1024))
	}
	if cfg.Speech.Transcription {
		var trOpts []whisper.Option
		if cfg.Speech.TranscriptionModel != "" {
			trOpts = append(trOpts, whisper.WithModel(cfg.Speech.TranscriptionModel))
		}
		tr, err := whisper.New(trOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, speech.WithTranscriber(tr))
	}

	return speech.NewSynthesizer(svc, opts...)
}

// buildService constructs the configured vendor adapter. Credentials come
// from the environment; everything else from the per-service config block.
func buildService(cfg config.Config) (speech.Service, error) {
	name, err := config.NormalizeService(cfg.Speech.Service)
	if err != nil {
		return nil, err
	}

	switch name {
	case config.ServiceElevenLabs:
		return buildElevenLabs(cfg.ElevenLabs)
	case config.ServiceAzure:
		return buildAzure(cfg.Azure)
	case config.ServiceOpenAI:
		return buildOpenAI(cfg.OpenAI)
	case config.ServiceEdge:
		return buildEdge(cfg.Edge), nil
	case config.ServiceTencent:
		return buildTencent(cfg.Tencent)
	case config.ServiceLocal:
		return buildLocal(cfg.Local)
	default:
		return nil, fmt.Errorf("unsupported speech service %q", name)
	}
}

func buildElevenLabs(c config.ElevenLabsConfig) (speech.Service, error) {
	var opts []elevenlabs.Option
	if c.VoiceName != "" {
		opts = append(opts, elevenlabs.WithVoiceName(c.VoiceName))
	}
	if c.VoiceID != "" {
		opts = append(opts, elevenlabs.WithVoiceID(c.VoiceID))
	}
	if c.Model != "" {
		opts = append(opts, elevenlabs.WithModel(c.Model))
	}
	if c.OutputFormat != "" {
		opts = append(opts, elevenlabs.WithOutputFormat(c.OutputFormat))
	}
	if vs := voiceSettingsFromConfig(c); vs != nil {
		opts = append(opts, elevenlabs.WithVoiceSettings(*vs))
	}
	if c.EnableLogging != nil {
		opts = append(opts, elevenlabs.WithEnableLogging(*c.EnableLogging))
	}
	if c.OptimizeStreamingLatency != nil {
		opts = append(opts, elevenlabs.WithOptimizeStreamingLatency(*c.OptimizeStreamingLatency))
	}
	if c.LanguageCode != "" {
		opts = append(opts, elevenlabs.WithLanguageCode(c.LanguageCode))
	}
	if c.TextNormalization != "" {
		opts = append(opts, elevenlabs.WithTextNormalization(c.TextNormalization))
	}
	if c.RequestsPerMinute > 0 {
		opts = append(opts, elevenlabs.WithRequestsPerMinute(c.RequestsPerMinute))
	}
	return elevenlabs.New(opts...)
}

// voiceSettingsFromConfig collects the voice tuning fields into one struct,
// or nil when none is set.
func voiceSettingsFromConfig(c config.ElevenLabsConfig) *elevenlabs.VoiceSettings {
	if c.Stability == nil && c.SimilarityBoost == nil && c.Style == nil && c.UseSpeakerBoost == nil {
		return nil
	}
	return &elevenlabs.VoiceSettings{
		Stability:       c.Stability,
		SimilarityBoost: c.SimilarityBoost,
		Style:           c.Style,
		UseSpeakerBoost: c.UseSpeakerBoost,
	}
}

func buildAzure(c config.AzureConfig) (speech.Service, error) {
	var opts []azure.Option
	if c.Voice != "" {
		opts = append(opts, azure.WithVoice(c.Voice))
	}
	if c.Region != "" {
		opts = append(opts, azure.WithRegion(c.Region))
	}
	if c.Style != "" {
		opts = append(opts, azure.WithStyle(c.Style))
	}
	if c.StyleDegree != nil {
		opts = append(opts, azure.WithStyleDegree(*c.StyleDegree))
	}
	if c.Rate != "" {
		opts = append(opts, azure.WithRate(c.Rate))
	}
	if c.Pitch != "" {
		opts = append(opts, azure.WithPitch(c.Pitch))
	}
	if c.OutputFormat != "" {
		opts = append(opts, azure.WithOutputFormat(c.OutputFormat))
	}
	return azure.New(opts...)
}

func buildOpenAI(c config.OpenAIConfig) (speech.Service, error) {
	var opts []openai.Option
	if c.Voice != "" {
		opts = append(opts, openai.WithVoice(c.Voice))
	}
	if c.Model != "" {
		opts = append(opts, openai.WithModel(c.Model))
	}
	if c.Speed != nil {
		opts = append(opts, openai.WithSpeed(*c.Speed))
	}
	return openai.New(opts...)
}

func buildEdge(c config.EdgeConfig) *edge.Service {
	var opts []edge.Option
	if c.Voice != "" {
		opts = append(opts, edge.WithVoice(c.Voice))
	}
	return edge.New(opts...)
}

func buildTencent(c config.TencentConfig) (speech.Service, error) {
	var opts []tencent.Option
	if c.VoiceType != 0 {
		opts = append(opts, tencent.WithVoiceType(c.VoiceType))
	}
	if c.Region != "" {
		opts = append(opts, tencent.WithRegion(c.Region))
	}
	if c.Speed != nil {
		opts = append(opts, tencent.WithSpeed(*c.Speed))
	}
	if c.Volume != nil {
		opts = append(opts, tencent.WithVolume(*c.Volume))
	}
	return tencent.New(opts...)
}

func buildLocal(c config.LocalConfig) (speech.Service, error) {
	return local.New(local.WithCommand(localCommand(c)...))
}

// localCommand returns the effective command template for the local service.
func localCommand(c config.LocalConfig) []string {
	if argv := strings.Fields(c.Command); len(argv) > 0 {
		return argv
	}
	return local.DefaultCommand
}

// overridesDecoder returns the decoder for the service's per-request
// override struct. The local service accepts none.
func overridesDecoder(service string) server.OverridesDecoder {
	switch service {
	case config.ServiceElevenLabs:
		return func(raw json.RawMessage) (any, error) {
			var o elevenlabs.Overrides
			if err := decodeOverrides(raw, &o, service); err != nil {
				return nil, err
			}
			return &o, nil
		}
	case config.ServiceAzure:
		return func(raw json.RawMessage) (any, error) {
			var o azure.Overrides
			if err := decodeOverrides(raw, &o, service); err != nil {
				return nil, err
			}
			return &o, nil
		}
	case config.ServiceOpenAI:
		return func(raw json.RawMessage) (any, error) {
			var o openai.Overrides
			if err := decodeOverrides(raw, &o, service); err != nil {
				return nil, err
			}
			return &o, nil
		}
	case config.ServiceEdge:
		return func(raw json.RawMessage) (any, error) {
			var o edge.Overrides
			if err := decodeOverrides(raw, &o, service); err != nil {
				return nil, err
			}
			return &o, nil
		}
	case config.ServiceTencent:
		return func(raw json.RawMessage) (any, error) {
			var o tencent.Overrides
			if err := decodeOverrides(raw, &o, service); err != nil {
				return nil, err
			}
			return &o, nil
		}
	case config.ServiceLocal:
		return func(json.RawMessage) (any, error) {
			return nil, fmt.Errorf("the local service accepts no overrides")
		}
	default:
		return nil
	}
}

// decodeOverrides rejects unknown fields so a mistyped key fails instead of
// silently keeping the default.
func decodeOverrides(raw json.RawMessage, dst any, service string) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%s overrides: %w", service, err)
	}
	return nil
}
