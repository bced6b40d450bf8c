package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/voiceoverkit/go-voiceover/internal/config"
	"github.com/voiceoverkit/go-voiceover/internal/doctor"
	"github.com/voiceoverkit/go-voiceover/speech"
	"github.com/voiceoverkit/go-voiceover/speech/whisper"
)

func newDoctorCmd() *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run environment and credential checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			name, err := config.NormalizeService(cfg.Speech.Service)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "service: %s\n", name)

			result := doctor.Run(cmd.Context(), doctorConfig(cfg, name, live), os.Stdout)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(os.Stdout, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Probe the vendor voice API with the configured credentials")

	return cmd
}

// doctorConfig assembles the checks for the active configuration. name is
// the normalized service.
func doctorConfig(cfg config.Config, name string, live bool) doctor.Config {
	dcfg := doctor.Config{
		CacheDir:             cfg.Cache.Dir,
		BuildService:         func() (speech.Service, error) { return buildService(cfg) },
		TranscriptionEnabled: cfg.Speech.Transcription,
		TranscriptionEnv:     whisper.EnvAPIKey,
		Live:                 live,
	}
	if name == config.ServiceLocal {
		dcfg.LocalCommand = localCommand(cfg.Local)[0]
	}
	return dcfg
}
