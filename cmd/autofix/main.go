// Command autofix groups tracked defects into fix-sized bundles, drives
// an external fixing agent against isolated git worktrees, verifies the
// result, and opens a change proposal for each bundle that passes.
//
// Usage:
//
//	autofix init
//	autofix autofix --group-by component --max-parallel 3
//	autofix triage
//	autofix            # runs as an MCP server over stdio
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	gitCommit = "unknown"

	configPath string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:     "autofix",
	Short:   "Automated remediation orchestrator for tracked defects",
	Version: fmt.Sprintf("%s (%s)", version, gitCommit),
	// With no subcommand, autofix runs as an MCP server over stdio so an
	// agent can list/triage defects and record publications directly.
	RunE: runStdio,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: $AUTO_FIX_CONFIG or ~/.config/autofix/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose reporter output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(autofixCmd)
	rootCmd.AddCommand(triageCmd)
}

// exitCodeFor maps a terminal error to a CLI exit code: 130 for
// interruption, 1 for everything else. Cobra already prints the
// error; main only needs the numeric code.
func exitCodeFor(err error) int {
	if err == errInterrupted {
		return 130
	}
	return 1
}
