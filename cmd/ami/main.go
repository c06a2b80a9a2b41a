// Command ami runs potency predictions, featurization and schema
// migrations from the command line.
package main

import (
	"os"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/interfaces/cli"
)

// Set at build time via -ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate

	// Execute already reported the error.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
