package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/autofix/internal/bundle"
)

var triageGroupBy string

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Preview how currently tracked defects would be grouped into bundles",
	RunE:  runTriage,
}

func init() {
	triageCmd.Flags().StringVar(&triageGroupBy, "group-by", "component", "grouping policy: component, file, label, kind, priority")
}

func runTriage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	collab, err := buildCollaborators(ctx, cfg)
	if err != nil {
		return err
	}
	defer collab.logger.Sync()

	defects, err := collab.tracker.FetchDefects(ctx)
	if err != nil {
		return fmt.Errorf("fetch defects: %w", err)
	}

	grouper := bundle.NewGrouper()
	bundles, residue, err := grouper.Group(defects, bundle.GroupOptions{Policy: bundle.Policy(triageGroupBy)})
	if err != nil {
		return fmt.Errorf("group defects: %w", err)
	}

	fmt.Printf("%d defect(s) fetched, %d bundle(s), %d residue\n", len(defects), len(bundles), len(residue))
	for _, b := range bundles {
		fmt.Printf("  %s (%s) -> %s [%d defect(s)]\n", b.DisplayName, b.Policy, b.ProposedBranch, len(b.Defects))
	}
	for _, d := range residue {
		fmt.Printf("  residue: #%d %s\n", d.ID, d.Title)
	}
	return nil
}
