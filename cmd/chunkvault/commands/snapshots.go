package commands

import (
	"context"
	"fmt"

	"github.com/coldvault/chunkvault/internal/store/metadata"
	"github.com/spf13/cobra"
)

// snapshotsCmd groups snapshot-inspection subcommands, in dittofs's
// backup/restore Cmd-plus-AddCommand subcommand layout.
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect recorded snapshots",
	Long: `Inspect the snapshots recorded in the metadata index.

Subcommands:
  list    List every recorded snapshot
  export  Render a snapshot as the canonical JSON document of spec §6`,
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every recorded snapshot",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotsList,
}

var snapshotsExportCmd = &cobra.Command{
	Use:   "export <snapshot-id>",
	Short: "Render a snapshot as canonical JSON",
	Long: `Load the named snapshot and print its canonical JSON
representation: deterministic field order and key set, independent of
the BadgerDB layout, suitable for diffing across runs or feeding to
external tooling.`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshotsExport,
}

func init() {
	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsExportCmd)
}

func runSnapshotsList(cmd *cobra.Command, args []string) error {
	_, st, err := openStores(cfgFile)
	if err != nil {
		return err
	}
	defer st.close()

	descs, err := st.index.ListSnapshots(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(descs) == 0 {
		fmt.Fprintln(out, "no snapshots recorded")
		return nil
	}
	for _, d := range descs {
		state := "sealed"
		if !d.Sealed {
			state = "unsealed (in progress or abandoned)"
		}
		fmt.Fprintf(out, "%s  %s  %-12s root=%s\n", d.ID, d.CreatedAt.Format("2006-01-02T15:04:05"), state, d.RootPath)
	}
	return nil
}

func runSnapshotsExport(cmd *cobra.Command, args []string) error {
	id := metadata.SnapshotID(args[0])

	_, st, err := openStores(cfgFile)
	if err != nil {
		return err
	}
	defer st.close()

	doc, err := st.index.ExportJSON(context.Background(), id)
	if err != nil {
		return err
	}

	_, err = cmd.OutOrStdout().Write(append(doc, '\n'))
	return err
}
