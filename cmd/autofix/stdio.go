package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/autofix/pkg/rpcstdio"
)

// runStdio is the root command's default action: with no subcommand,
// autofix runs as an MCP server over stdio so an agent can list and
// triage defects and record publications directly.
func runStdio(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	collab, err := buildCollaborators(ctx, cfg)
	if err != nil {
		return err
	}
	defer collab.logger.Sync()
	startMetricsServer(ctx, collab)

	server, err := rpcstdio.NewServer(&rpcstdio.Config{
		Name:    "autofix",
		Version: version,
		Logger:  collab.logger.Underlying(),
	}, collab.tracker, collab.host)
	if err != nil {
		return fmt.Errorf("build stdio server: %w", err)
	}

	fmt.Fprintln(os.Stderr, "autofix stdio mode started")
	return server.Run(ctx)
}
