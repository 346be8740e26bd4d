// Package main is the chunkvault CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/coldvault/chunkvault/cmd/chunkvault/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(commands.ExitCode(err))
	}
}
