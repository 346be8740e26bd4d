package commands

import (
	"context"
	"fmt"

	"github.com/coldvault/chunkvault/internal/events"
	"github.com/coldvault/chunkvault/internal/orchestrator"
	"github.com/spf13/cobra"
)

var (
	backupVerify   bool
	backupVerbose  bool
	backupMaxFiles int
	backupMaxChunk int
)

var backupCmd = &cobra.Command{
	Use:   "backup <source>",
	Short: "Back up a directory tree into the content store",
	Long: `Walk source in deterministic pre-order, split every regular file into
fixed-size chunks, store each distinct chunk once, and record the
result as a new sealed snapshot.

Examples:
  chunkvault backup /home/alice/projects
  chunkvault backup /var/lib/app --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().BoolVar(&backupVerify, "verify", true, "re-verify each chunk's digest after reading it back (overrides config)")
	backupCmd.Flags().BoolVar(&backupVerbose, "verbose", false, "print one line per file as it completes")
	backupCmd.Flags().IntVar(&backupMaxFiles, "max-parallel-files", 0, "override configured max_parallel_files (0 keeps config)")
	backupCmd.Flags().IntVar(&backupMaxChunk, "max-parallel-chunks", 0, "override configured max_parallel_chunks (0 keeps config)")
}

func runBackup(cmd *cobra.Command, args []string) error {
	source := args[0]

	cfg, st, err := openStores(cfgFile)
	if err != nil {
		return err
	}
	defer st.close()

	maxFiles := cfg.MaxParallelFiles
	if backupMaxFiles > 0 {
		maxFiles = backupMaxFiles
	}
	maxChunks := cfg.MaxParallelChunks
	if backupMaxChunk > 0 {
		maxChunks = backupMaxChunk
	}

	out := cmd.OutOrStdout()
	var sink events.Sink = events.Nop{}
	if backupVerbose {
		sink = events.Func(func(e events.Event) {
			switch e.Kind {
			case events.KindFileCompleted:
				fmt.Fprintf(out, "backed up %s (%d bytes)\n", e.Path, e.Bytes)
			case events.KindFileFailed:
				fmt.Fprintf(out, "FAILED %s: %v\n", e.Path, e.Err)
			case events.KindFileSkipped:
				fmt.Fprintf(out, "skipped %s (%s)\n", e.Path, e.SkipCause)
			}
		})
	}

	opts := orchestrator.BackupOptions{
		ChunkSize:         uint32(cfg.ChunkSize),
		VerifyIntegrity:   backupVerify,
		MaxParallelFiles:  maxFiles,
		MaxParallelChunks: maxChunks,
	}

	result, err := orchestrator.Backup(context.Background(), source, st.content, st.index, st.pool, st.filter, opts, sink)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "snapshot %s: %d files backed up, %d skipped, %d failed\n",
		result.SnapshotID, result.FilesProcessed, result.FilesSkipped, result.FilesFailed)
	fmt.Fprintf(out, "%d bytes processed, %d chunks newly stored (%d bytes), in %s\n",
		result.BytesProcessed, result.ChunksCreated, result.BytesNewlyStored, result.Duration)
	return nil
}
