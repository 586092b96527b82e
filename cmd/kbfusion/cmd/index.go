package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newIndexCmd creates the index command.
func newIndexCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "index <path>...",
		Short: "Bring documents into the cache",
		Long: `Index one or more documents. Unchanged documents are skipped without
reading their content; edited documents are re-chunked and only new chunk
text is embedded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			for _, path := range args {
				res, err := client.EnsureIndexed(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("indexing %s: %w", path, err)
				}

				if jsonOutput {
					enc := json.NewEncoder(cmd.OutOrStdout())
					if err := enc.Encode(res); err != nil {
						return err
					}
					continue
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d chunks, %d embedded, %d reused, %s)\n",
					res.Path, res.Status, res.Chunks, res.Embedded, res.Reused,
					res.Elapsed.Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON lines")

	return cmd
}
