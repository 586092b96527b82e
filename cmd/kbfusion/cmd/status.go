package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache contents and the active configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}

			orphans, err := client.ListOrphans(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"version_key":   client.VersionKey(),
					"entries":       stats.Entries,
					"chunks":        stats.Chunks,
					"version_keys":  stats.VersionKeys,
					"orphaned":      orphans,
					"cache_size_mb": float64(stats.SizeBytes) / (1024 * 1024),
					"cache_dir":     client.Config().Cache.Dir,
				})
			}

			out := cmd.OutOrStdout()
			cfg := client.Config()
			fmt.Fprintf(out, "cache dir:    %s\n", cfg.Cache.Dir)
			fmt.Fprintf(out, "cache size:   %.2f MB\n", float64(stats.SizeBytes)/(1024*1024))
			fmt.Fprintf(out, "version key:  %s\n", client.VersionKey())
			fmt.Fprintf(out, "provider:     %s (%s, %d dims)\n",
				cfg.Embeddings.Provider, cfg.Embeddings.Model, cfg.Embeddings.Dimensions)
			fmt.Fprintf(out, "entries:      %d\n", stats.Entries)
			fmt.Fprintf(out, "chunks:       %d\n", stats.Chunks)
			if len(orphans) > 0 {
				fmt.Fprintf(out, "orphaned:     %d (run 'kbfusion sweep --orphans' to reclaim)\n", len(orphans))
			}
			if len(stats.VersionKeys) > 0 {
				fmt.Fprintf(out, "keys in use:  %s\n", strings.Join(stats.VersionKeys, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}
