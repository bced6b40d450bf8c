package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/voiceoverkit/go-voiceover/speech"
)

func newVoicesCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List voices offered by the configured speech service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			svc, err := buildService(cfg)
			if err != nil {
				return err
			}
			lister, ok := svc.(speech.VoiceLister)
			if !ok {
				return fmt.Errorf("voice listing is not supported by %s", svc.Name())
			}

			voices, err := lister.Voices(cmd.Context())
			if err != nil {
				return err
			}
			return writeVoices(os.Stdout, voices, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print voices as JSON")

	return cmd
}

type voiceDoc struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Language    string `json:"language,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Description string `json:"description,omitempty"`
}

func writeVoices(w io.Writer, voices []speech.Voice, asJSON bool) error {
	if asJSON {
		docs := make([]voiceDoc, 0, len(voices))
		for _, v := range voices {
			docs = append(docs, voiceDoc{
				ID:          v.ID,
				Name:        v.Name,
				Language:    v.Language,
				Gender:      v.Gender,
				Description: v.Description,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}

	width := 0
	for _, v := range voices {
		if len(v.ID) > width {
			width = len(v.ID)
		}
	}
	for _, v := range voices {
		detail := joinNonEmpty(v.Name, v.Language, v.Gender)
		if _, err := fmt.Fprintf(w, "%-*s  %s\n", width, v.ID, detail); err != nil {
			return err
		}
	}
	return nil
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
