// Package commands implements the imagebench CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "imagebench",
		Short: "Imagebench - machine image benchmark test driver",
		Long: `Imagebench drives benchmark test runs against freshly built machine
images. For each image it provisions a benchmark cluster through the
deployment toolchain, rotating through candidate zones on capacity
failures with exponential backoff between passes, and reconciles all
teardown operations before exiting.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newTestCommand())
	rootCmd.AddCommand(newImagesCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
