package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bulwark",
	Short: "Bulwark - resilience proxy for streaming AI chat upstreams",
	Long: `Bulwark is a resilience proxy that sits in front of streaming AI chat
APIs (Anthropic, OpenAI, and OpenAI-compatible upstreams).

It shields callers and upstreams from each other by providing:
  - Sliding-window rate limiting with burst control
  - Deduplication of identical in-flight requests
  - Per-upstream circuit breaking with half-open probing
  - Retry with exponential backoff
  - Cached-response fallback when an upstream is exhausted`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
