// Package commands implements the chunkvault CLI's command tree.
package commands

import (
	"errors"

	"github.com/coldvault/chunkvault/internal/errs"
	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd is the base command when chunkvault is called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "chunkvault",
	Short: "Content-addressed, deduplicating file backup engine",
	Long: `chunkvault splits files into fixed-size chunks, stores each distinct
chunk exactly once under its content digest, and records the chunk
sequence of every backed-up file so it can be reconstructed later.

Use "chunkvault [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, else config.yaml in $XDG_DATA_HOME/chunkvault or ~/.local/share/chunkvault)")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the command tree. main.main calls this once.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an error returned by Execute to one of spec.md §6's exit
// codes: 0 success, 2 usage error, 3 I/O error, 4 integrity failure, 5
// not found.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var e *errs.Error
	if errors.As(err, &e) {
		switch e.Code {
		case errs.CodeIoError, errs.CodeReadError:
			return 3
		case errs.CodeIntegrity, errs.CodeDigestCollision:
			return 4
		case errs.CodeMissing, errs.CodeUnknownSnapshot:
			return 5
		case errs.CodeSealedSnapshot, errs.CodeTargetExists, errs.CodeCancelled:
			return 2
		}
	}
	return 2
}
