package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show content store and metadata index statistics",
	Long: `Report the content store's distinct-digest count and stored bytes
alongside the metadata index's logical-byte total and the resulting
deduplication ratio (spec.md §4.6 stats()).`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	_, st, err := openStores(cfgFile)
	if err != nil {
		return err
	}
	defer st.close()

	contentStats := st.content.Stats()
	indexStats, err := st.index.Stats(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Content store")
	fmt.Fprintf(out, "  distinct chunks:   %d\n", contentStats.DistinctDigests)
	fmt.Fprintf(out, "  stored bytes:      %d\n", contentStats.TotalStoredBytes)
	fmt.Fprintf(out, "  insertions:        %d\n", contentStats.Insertions)
	fmt.Fprintf(out, "  dedup hits:        %d\n", contentStats.DedupHits)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Metadata index")
	fmt.Fprintf(out, "  distinct digests:  %d\n", indexStats.DistinctDigests)
	fmt.Fprintf(out, "  logical bytes:     %d\n", indexStats.TotalLogicalBytes)
	fmt.Fprintf(out, "  stored bytes:      %d\n", indexStats.TotalStoredBytes)
	fmt.Fprintf(out, "  dedup ratio:       %.2fx\n", indexStats.DeduplicationRatio)
	return nil
}
