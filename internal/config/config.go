// Package config loads the module configuration from defaults, an optional
// YAML file, environment variables, and command line flags, in ascending
// precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Speech SpeechConfig `mapstructure:"speech"`
	Server ServerConfig `mapstructure:"server"`

	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Azure      AzureConfig      `mapstructure:"azure"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Edge       EdgeConfig       `mapstructure:"edge"`
	Tencent    TencentConfig    `mapstructure:"tencent"`
	Local      LocalConfig      `mapstructure:"local"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type CacheConfig struct {
	Dir     string `mapstructure:"dir"`
	LimitMB int64  `mapstructure:"limit_mb"`
}

type SpeechConfig struct {
	Service            string  `mapstructure:"service"`
	GlobalSpeed        float64 `mapstructure:"global_speed"`
	Transcription      bool    `mapstructure:"transcription"`
	TranscriptionModel string  `mapstructure:"transcription_model"`
}

type ServerConfig struct {
	ListenAddr       string `mapstructure:"listen_addr"`
	MaxTextBytes     int    `mapstructure:"max_text_bytes"`
	RequestTimeoutS  int    `mapstructure:"request_timeout_s"`
	ShutdownTimeoutS int    `mapstructure:"shutdown_timeout_s"`
	Workers          int    `mapstructure:"workers"`
}

// Per-service blocks. Zero values mean "use the adapter's default"; pointer
// fields distinguish unset from explicit zero.

type ElevenLabsConfig struct {
	VoiceName                string   `mapstructure:"voice_name"`
	VoiceID                  string   `mapstructure:"voice_id"`
	Model                    string   `mapstructure:"model"`
	OutputFormat             string   `mapstructure:"output_format"`
	Stability                *float64 `mapstructure:"stability"`
	SimilarityBoost          *float64 `mapstructure:"similarity_boost"`
	Style                    *float64 `mapstructure:"style"`
	UseSpeakerBoost          *bool    `mapstructure:"use_speaker_boost"`
	EnableLogging            *bool    `mapstructure:"enable_logging"`
	OptimizeStreamingLatency *int     `mapstructure:"optimize_streaming_latency"`
	LanguageCode             string   `mapstructure:"language_code"`
	TextNormalization        string   `mapstructure:"text_normalization"`
	RequestsPerMinute        int      `mapstructure:"requests_per_minute"`
}

type AzureConfig struct {
	Voice        string   `mapstructure:"voice"`
	Region       string   `mapstructure:"region"`
	Style        string   `mapstructure:"style"`
	StyleDegree  *float64 `mapstructure:"style_degree"`
	Rate         string   `mapstructure:"rate"`
	Pitch        string   `mapstructure:"pitch"`
	OutputFormat string   `mapstructure:"output_format"`
}

type OpenAIConfig struct {
	Voice string   `mapstructure:"voice"`
	Model string   `mapstructure:"model"`
	Speed *float64 `mapstructure:"speed"`
}

type EdgeConfig struct {
	Voice string `mapstructure:"voice"`
}

type TencentConfig struct {
	VoiceType int64    `mapstructure:"voice_type"`
	Region    string   `mapstructure:"region"`
	Speed     *float64 `mapstructure:"speed"`
	Volume    *float64 `mapstructure:"volume"`
}

type LocalConfig struct {
	Command string `mapstructure:"command"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Cache: CacheConfig{
			Dir:     "media/voiceovers",
			LimitMB: 0,
		},
		Speech: SpeechConfig{
			Service:            ServiceElevenLabs,
			GlobalSpeed:        1.0,
			Transcription:      false,
			TranscriptionModel: "whisper-1",
		},
		Server: ServerConfig{
			ListenAddr:       ":8080",
			MaxTextBytes:     4096,
			RequestTimeoutS:  60,
			ShutdownTimeoutS: 30,
			Workers:          2,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.Log.Level, "Log level (debug|info|warn|error)")
	fs.String("cache-dir", defaults.Cache.Dir, "Directory for cached narration audio")
	fs.String("service", defaults.Speech.Service, "Speech service name")
	fs.Float64("global-speed", defaults.Speech.GlobalSpeed, "Playback speed applied to every clip")
}

func Load(opts LoadOptions) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("VOICEOVER")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("voiceover")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv copies KEY=VALUE pairs from the named dotenv file into the
// process environment so the adapters' os.Getenv lookups see them. Already
// set variables keep their values. A missing file is not an error.
func loadDotEnv(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("dotenv")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if os.Getenv(name) == "" {
			if err := os.Setenv(name, v.GetString(key)); err != nil {
				return fmt.Errorf("set %s from %s: %w", name, path, err)
			}
		}
	}
	return nil
}

// Validate checks the ranges the synthesis pipeline and server rely on.
func (c Config) Validate() error {
	if _, err := NormalizeService(c.Speech.Service); err != nil {
		return err
	}
	if c.Speech.GlobalSpeed < 0.5 || c.Speech.GlobalSpeed > 2.0 {
		return fmt.Errorf("speech.global_speed %.2f out of range [0.5, 2.0]", c.Speech.GlobalSpeed)
	}
	if c.Cache.LimitMB < 0 {
		return fmt.Errorf("cache.limit_mb must not be negative, got %d", c.Cache.LimitMB)
	}
	if c.Server.Workers < 1 {
		return fmt.Errorf("server.workers must be at least 1, got %d", c.Server.Workers)
	}
	if c.Server.MaxTextBytes < 1 {
		return fmt.Errorf("server.max_text_bytes must be at least 1, got %d", c.Server.MaxTextBytes)
	}
	if c.Server.RequestTimeoutS < 1 {
		return fmt.Errorf("server.request_timeout_s must be at least 1, got %d", c.Server.RequestTimeoutS)
	}
	if l := c.ElevenLabs.OptimizeStreamingLatency; l != nil && (*l < 0 || *l > 4) {
		return fmt.Errorf("elevenlabs.optimize_streaming_latency %d out of range [0, 4]", *l)
	}
	if c.ElevenLabs.RequestsPerMinute < 0 {
		return fmt.Errorf("elevenlabs.requests_per_minute must not be negative, got %d", c.ElevenLabs.RequestsPerMinute)
	}
	if s := c.OpenAI.Speed; s != nil && (*s < 0.25 || *s > 4.0) {
		return fmt.Errorf("openai.speed %.2f out of range [0.25, 4.0]", *s)
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("cache.dir", c.Cache.Dir)
	v.SetDefault("cache.limit_mb", c.Cache.LimitMB)
	v.SetDefault("speech.service", c.Speech.Service)
	v.SetDefault("speech.global_speed", c.Speech.GlobalSpeed)
	v.SetDefault("speech.transcription", c.Speech.Transcription)
	v.SetDefault("speech.transcription_model", c.Speech.TranscriptionModel)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout_s", c.Server.RequestTimeoutS)
	v.SetDefault("server.shutdown_timeout_s", c.Server.ShutdownTimeoutS)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("elevenlabs.voice_name", c.ElevenLabs.VoiceName)
	v.SetDefault("elevenlabs.voice_id", c.ElevenLabs.VoiceID)
	v.SetDefault("elevenlabs.model", c.ElevenLabs.Model)
	v.SetDefault("elevenlabs.output_format", c.ElevenLabs.OutputFormat)
	v.SetDefault("elevenlabs.language_code", c.ElevenLabs.LanguageCode)
	v.SetDefault("elevenlabs.text_normalization", c.ElevenLabs.TextNormalization)
	v.SetDefault("elevenlabs.requests_per_minute", c.ElevenLabs.RequestsPerMinute)
	v.SetDefault("azure.voice", c.Azure.Voice)
	v.SetDefault("azure.region", c.Azure.Region)
	v.SetDefault("azure.style", c.Azure.Style)
	v.SetDefault("azure.rate", c.Azure.Rate)
	v.SetDefault("azure.pitch", c.Azure.Pitch)
	v.SetDefault("azure.output_format", c.Azure.OutputFormat)
	v.SetDefault("openai.voice", c.OpenAI.Voice)
	v.SetDefault("openai.model", c.OpenAI.Model)
	v.SetDefault("edge.voice", c.Edge.Voice)
	v.SetDefault("tencent.voice_type", c.Tencent.VoiceType)
	v.SetDefault("tencent.region", c.Tencent.Region)
	v.SetDefault("local.command", c.Local.Command)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("log.level", "log-level")
	v.RegisterAlias("cache.dir", "cache-dir")
	v.RegisterAlias("speech.service", "service")
	v.RegisterAlias("speech.global_speed", "global-speed")
}
