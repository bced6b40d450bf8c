package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/voiceoverkit/go-voiceover/internal/server"
	"github.com/voiceoverkit/go-voiceover/speech"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the narration HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			synth, err := buildSynthPipeline(cfg)
			if err != nil {
				return err
			}

			var voices speech.VoiceLister
			if lister, ok := synth.Service().(speech.VoiceLister); ok {
				voices = lister
			}

			srv := server.New(cfg, synth, voices).
				WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeoutS) * time.Second).
				WithOverridesDecoder(overridesDecoder(synth.Service().Name()))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	return cmd
}
