// Loomd is a daemon that turns natural-language automation goals into
// validated workflow drafts for an n8n-style platform.
//
// The pipeline runs four stages per goal (pattern discovery, knowledge-graph
// query, workflow generation, validation) and exposes an HTTP API for goal
// submission, execution status, learning statistics, and an SSE event stream.
//
// Usage:
//
//	# Start with defaults (~/.config/loomd/config.yaml if present)
//	loomd serve
//
//	# Explicit config file
//	loomd serve --config /etc/loomd/config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loomd",
	Short: "Workflow generation daemon",
	Long: `loomd turns natural-language automation goals into validated workflow
drafts. It runs a four-stage pipeline per goal and validates every draft
through a seven-layer gateway before returning it.`,
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the loomd daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), configPath)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show detailed version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("loomd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "config file path (default ~/.config/loomd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
