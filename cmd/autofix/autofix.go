package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/autofix/internal/bundle"
	"github.com/fyrsmithlabs/autofix/internal/orchestrator"
)

var (
	groupBy     string
	maxParallel int
	maxRetries  int
	dryRun      bool
	baseBranch  string
	issuesCSV   string
	processAll  bool
)

var autofixCmd = &cobra.Command{
	Use:   "autofix",
	Short: "Group tracked defects into bundles and run the remediation pipeline",
	RunE:  runAutofix,
}

func init() {
	autofixCmd.Flags().StringVar(&groupBy, "group-by", "component", "grouping policy: component, file, label, kind, priority")
	autofixCmd.Flags().IntVar(&maxParallel, "max-parallel", 3, "queue concurrency")
	autofixCmd.Flags().IntVar(&maxRetries, "max-retries", 3, "per-bundle retry cap")
	autofixCmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate without fixing, committing, or publishing")
	autofixCmd.Flags().StringVar(&baseBranch, "base-branch", "", "base branch for new branches (default: host.defaultBranch)")
	autofixCmd.Flags().StringVar(&issuesCSV, "issues", "", "comma-separated defect ids to restrict to")
	autofixCmd.Flags().BoolVar(&processAll, "all", false, "process every matching defect (default when --issues is unset)")
}

func runAutofix(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.Checks.MaxRetries = maxRetries
	}
	if baseBranch != "" {
		cfg.Host.DefaultBranch = baseBranch
	}

	collab, err := buildCollaborators(ctx, cfg)
	if err != nil {
		return err
	}
	defer collab.logger.Sync()
	startMetricsServer(ctx, collab)

	issueIDs, err := parseIssueIDs(issuesCSV)
	if err != nil {
		return err
	}
	if !processAll && len(issueIDs) == 0 {
		processAll = true
	}

	base := baseBranch
	if base == "" {
		base = cfg.Host.DefaultBranch
	}

	orch := newOrchestrator(collab)
	report, err := orch.Run(ctx, orchestrator.Options{
		GroupBy:     bundle.Policy(groupBy),
		MaxParallel: maxParallel,
		MaxRetries:  maxRetries,
		DryRun:      dryRun,
		BaseBranch:  base,
		IssueIDs:    issueIDs,
	})
	if err != nil {
		return err
	}

	printReport(report)

	if report.ExitCode == 130 {
		return errInterrupted
	}
	if report.ExitCode != 0 {
		return fmt.Errorf("no bundle completed (%d failed, %d skipped)", report.Failed, report.Skipped)
	}
	return nil
}

func parseIssueIDs(csv string) ([]int, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil, nil
	}
	var ids []int
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid --issues id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printReport(report *orchestrator.Report) {
	fmt.Printf("completed=%d failed=%d skipped=%d\n", report.Completed, report.Failed, report.Skipped)
	for _, b := range report.Bundles {
		line := fmt.Sprintf("  [%s] %s (attempts=%d)", b.Status, b.DisplayName, b.Attempts)
		if b.PublicationURL != "" {
			line += " -> " + b.PublicationURL
		}
		if b.Error != "" {
			line += " error: " + b.Error
		}
		fmt.Println(line)
	}
}
