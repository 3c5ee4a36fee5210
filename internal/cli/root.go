// Package cli provides the command-line interface for magnate.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "magnate",
	Short: "Manufacturing facility simulator",
	Long: `Magnate runs manufacturing facilities offline: load an equipment and
recipe catalog, seed facilities from a scenario file, and step the
simulation clock to watch jobs flow through machines.

The same packages power the facilityd server; this CLI is for headless
runs, catalog authoring, and scenario checks.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the magnate version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "magnate %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine internals to stderr")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(scenarioCmd)
	rootCmd.AddCommand(versionCmd)
}

// cliLogger discards engine logs unless --verbose is set.
func cliLogger() *slog.Logger {
	if verbose {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
