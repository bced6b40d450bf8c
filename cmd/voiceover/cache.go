package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/voiceoverkit/go-voiceover/internal/cache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the narration cache",
	}

	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCachePruneCmd())

	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry count and size on disk",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			store, err := cache.Open(cfg.Cache.Dir)
			if err != nil {
				return err
			}
			return writeCacheStats(os.Stdout, store.Stats())
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached narration",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			store, err := cache.Open(cfg.Cache.Dir)
			if err != nil {
				return err
			}
			st := store.Stats()
			if err := store.Clear(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(os.Stdout, "removed %d entries (%s)\n", st.Count, formatBytes(st.TotalSize))
			return err
		},
	}
}

func newCachePruneCmd() *cobra.Command {
	var maxMB int64

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Evict least recently used narrations down to a size limit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			limit, err := pruneLimit(maxMB, cfg.Cache.LimitMB)
			if err != nil {
				return err
			}
			store, err := cache.Open(cfg.Cache.Dir)
			if err != nil {
				return err
			}
			freed, err := store.Prune(limit)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(os.Stdout, "freed %s\n", formatBytes(freed))
			return err
		},
	}

	cmd.Flags().Int64Var(&maxMB, "max-mb", 0, "Size limit in MiB (defaults to cache.limit_mb)")

	return cmd
}

func writeCacheStats(w io.Writer, st cache.Stats) error {
	_, err := fmt.Fprintf(w, "dir: %s\nentries: %d\nsize: %s\n", st.Dir, st.Count, formatBytes(st.TotalSize))
	return err
}

// pruneLimit resolves the prune target in bytes from the flag or the
// configured cache limit.
func pruneLimit(flagMB, cfgMB int64) (int64, error) {
	mb := flagMB
	if mb == 0 {
		mb = cfgMB
	}
	if mb <= 0 {
		return 0, fmt.Errorf("no size limit: pass --max-mb or set cache.limit_mb")
	}
	return mb * 1024 * 1024, nil
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
