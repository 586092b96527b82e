package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newSearchCmd creates the search command.
func newSearchCmd() *cobra.Command {
	var (
		topK       int
		jsonOutput bool
		noIndex    bool
	)

	cmd := &cobra.Command{
		Use:   "search <path> <query>...",
		Short: "Semantic search within one document",
		Long: `Search a document with one or more queries. The document is indexed
(or refreshed) first unless --no-index is given, then every chunk is scored
against each query by cosine similarity.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, queries := args[0], args[1:]

			client, err := openClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			search := client.SemanticSearch
			if noIndex {
				search = client.Search
			}
			results, err := search(cmd.Context(), path, queries, topK)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			out := cmd.OutOrStdout()
			for i, perQuery := range results {
				fmt.Fprintf(out, "query: %s\n", queries[i])
				for _, r := range perQuery {
					fmt.Fprintf(out, "  [%3d] %.4f  %s\n", r.ChunkIndex, r.Score, r.Snippet)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "Number of results per query")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Fail instead of indexing when the document is not cached")

	return cmd
}
