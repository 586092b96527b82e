package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newSweepCmd creates the sweep command.
func newSweepCmd() *cobra.Command {
	var orphans bool

	cmd := &cobra.Command{
		Use:   "sweep [path]...",
		Short: "Remove stale cache entries",
		Long: `Remove cache entries for the given paths (across every version key), or
with --orphans remove all entries written under embedding configurations
other than the current one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !orphans && len(args) == 0 {
				return fmt.Errorf("nothing to sweep: pass paths or --orphans")
			}

			client, err := openClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			total := 0
			for _, path := range args {
				n, err := client.SweepPath(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("sweeping %s: %w", path, err)
				}
				total += n
			}

			if orphans {
				n, err := client.SweepOrphans(cmd.Context())
				if err != nil {
					return err
				}
				total += n
			}

			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&orphans, "orphans", false, "Remove entries from outdated embedding configurations")

	return cmd
}
