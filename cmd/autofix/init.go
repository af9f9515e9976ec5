package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/autofix/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file to the default location",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "config already exists at %s, leaving it untouched\n", path)
		return nil
	}

	if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
		return fmt.Errorf("write starter config: %w", err)
	}
	fmt.Printf("wrote starter config to %s\n", path)
	return nil
}

const starterConfig = `host:
  owner: ""
  repo: ""
  defaultBranch: main
  autoFixLabel: autofix
  skipLabel: autofix-skip

tracker:
  workspaceId: ""
  triageSection: triage
  doneSection: done
  syncedTag: autofix-synced

worktree:
  baseDir: .autofix/worktrees
  maxConcurrent: 3
  autoCleanupMinutes: 60
  prefix: autofix-

checks:
  testCommand: ""
  typeCheckCommand: ""
  lintCommand: ""
  maxRetries: 3

logging:
  level: info
  pretty: true

ai:
  preferredModel: claude-sonnet-4-5-20250929
  fallbackModel: claude-haiku-4-5-20250929
  maxBudgetPerIssue: 2.0
  maxBudgetPerSession: 25.0
`
