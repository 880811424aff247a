// Package cli is the command-line entry point.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	logLevel   string
)

// NewRootCommand creates the root command for the CLI
func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "eve-arbitrage",
		Short: "Arbitrage route engine for EVE Online markets",
		Long: `eve-arbitrage fetches order books for a set of trade hubs, computes
buy-here sell-there routes net of hauling costs, and serves the ranked
results over HTTP.

Examples:
  eve-arbitrage serve --config arbitrage.yaml
  eve-arbitrage run --top 10
  eve-arbitrage version`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to a YAML config file (default: ./arbitrage.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(NewServeCommand(version))
	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewVersionCommand(version))

	return rootCmd
}

// NewVersionCommand prints the build version.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// Execute runs the root command
func Execute(version string) {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
