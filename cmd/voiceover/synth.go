package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/voiceoverkit/go-voiceover/speech"
	"github.com/voiceoverkit/go-voiceover/voiceover"
)

func newSynthCmd() *cobra.Command {
	var file string
	var overridesJSON string
	var srtPath string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "synth [text]",
		Short: "Synthesize narration text to a cached audio clip",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			arg := ""
			if len(args) > 0 {
				arg = args[0]
			}
			inputText, err := readNarrationText(arg, file, os.Stdin)
			if err != nil {
				return err
			}

			synth, err := buildSynthPipeline(cfg)
			if err != nil {
				return err
			}

			var voOpts []voiceover.VoiceoverOption
			if overridesJSON != "" {
				decode := overridesDecoder(synth.Service().Name())
				if decode == nil {
					return fmt.Errorf("no overrides decoder for service %q", synth.Service().Name())
				}
				overrides, err := decode(json.RawMessage(overridesJSON))
				if err != nil {
					return err
				}
				voOpts = append(voOpts, voiceover.WithOverrides(overrides))
			}

			sess := voiceover.NewSession(synth)
			tracker, err := sess.Voiceover(cmd.Context(), inputText, voOpts...)
			if err != nil {
				return err
			}

			if srtPath != "" {
				if err := sess.ExportSRT(srtPath); err != nil {
					return err
				}
			}

			return writeSynthResult(os.Stdout, tracker.Narration(), quiet)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Read narration text from a file instead of the argument")
	cmd.Flags().StringVar(&overridesJSON, "overrides", "", "Per-request vendor overrides as JSON")
	cmd.Flags().StringVar(&srtPath, "srt", "", "Write SubRip subtitles for the clip to this path")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Print only the audio file path")

	return cmd
}

// synthResult is the JSON document printed after a synthesis.
type synthResult struct {
	Hash       string `json:"hash"`
	Service    string `json:"service"`
	Text       string `json:"text"`
	AudioPath  string `json:"audio_path"`
	DurationMS int64  `json:"duration_ms"`
	SampleRate int    `json:"sample_rate"`
	NumWords   int    `json:"num_words"`
	Cached     bool   `json:"cached"`
}

func writeSynthResult(w io.Writer, n *speech.Narration, quiet bool) error {
	if quiet {
		_, err := fmt.Fprintln(w, n.AudioPath)
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(synthResult{
		Hash:       n.Hash,
		Service:    n.Service,
		Text:       n.StrippedText,
		AudioPath:  n.AudioPath,
		DurationMS: n.Duration.Milliseconds(),
		SampleRate: n.SampleRate,
		NumWords:   len(n.WordBoundaries),
		Cached:     n.Cached,
	})
}

func readNarrationText(arg, file string, stdin io.Reader) (string, error) {
	if arg != "" && file != "" {
		return "", fmt.Errorf("provide narration text as an argument or via --file, not both")
	}
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(b), nil
	}
	if strings.TrimSpace(arg) != "" {
		return arg, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("provide narration text as an argument, with --file, or on stdin")
	}
	return input, nil
}
