package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/autofix/internal/agent"
	"github.com/fyrsmithlabs/autofix/internal/budget"
	"github.com/fyrsmithlabs/autofix/internal/checks"
	"github.com/fyrsmithlabs/autofix/internal/config"
	"github.com/fyrsmithlabs/autofix/internal/logging"
	"github.com/fyrsmithlabs/autofix/internal/orchestrator"
	"github.com/fyrsmithlabs/autofix/internal/pipeline"
	"github.com/fyrsmithlabs/autofix/internal/progress"
	"github.com/fyrsmithlabs/autofix/internal/telemetry"
	"github.com/fyrsmithlabs/autofix/internal/vcs"
	"github.com/fyrsmithlabs/autofix/internal/worktree"
	"github.com/fyrsmithlabs/autofix/pkg/exceptions"
	"github.com/fyrsmithlabs/autofix/pkg/host"
	"github.com/fyrsmithlabs/autofix/pkg/tracker"
)

// errInterrupted signals that a run ended because of an interrupt
// signal, so main can map it to exit code 130.
var errInterrupted = errors.New("interrupted")

func loadConfig() (*config.Config, error) {
	if os.Getenv("DEBUG") != "" {
		verbose = true
	}
	return config.LoadWithFile(configPath)
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	if lvl, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil {
		lc.Level = lvl
	}
	if verbose {
		lc.Level = zapcore.DebugLevel
	}
	if !cfg.Logging.Pretty {
		lc.Format = "json"
	} else {
		lc.Format = "console"
	}
	if cfg.Logging.FilePath != "" {
		lc.Output.File = cfg.Logging.FilePath
	}
	lc.Redaction.Enabled = cfg.Logging.Redact
	return logging.NewLogger(lc)
}

// collaborators bundles every component the orchestrator and triage
// commands share, wired from one loaded Config.
type collaborators struct {
	cfg        *config.Config
	logger     *logging.Logger
	metrics    *telemetry.Metrics
	tracker    *tracker.Client
	host       *host.Client
	exceptions *exceptions.Handler
	worktree   *worktree.Manager
	budget     *budget.Tracker
	pipeline   *pipeline.Executor
	reporter   *progress.Reporter
}

func buildCollaborators(ctx context.Context, cfg *config.Config) (*collaborators, error) {
	logger, err := buildLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	trackerClient := tracker.NewClient(tracker.Config{
		Token:         cfg.Tracker.Token.Value(),
		WorkspaceID:   cfg.Tracker.WorkspaceID,
		ProjectIDs:    cfg.Tracker.ProjectIDs,
		TriageSection: cfg.Tracker.TriageSection,
		DoneSection:   cfg.Tracker.DoneSection,
		SyncedTag:     cfg.Tracker.SyncedTag,
	})

	hostClient, err := host.NewClient(ctx, host.Config{
		Token:         cfg.Host.Token.Value(),
		Owner:         cfg.Host.Owner,
		Repo:          cfg.Host.Repo,
		DefaultBranch: cfg.Host.DefaultBranch,
		AutoFixLabel:  cfg.Host.AutoFixLabel,
		SkipLabel:     cfg.Host.SkipLabel,
		APIBaseURL:    cfg.Host.APIBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("build host client: %w", err)
	}

	wtManager := worktree.NewManager(".", cfg.Worktree.BaseDir,
		worktree.WithMaxConcurrent(cfg.Worktree.MaxConcurrent),
	)

	budgetTracker := budget.NewTracker(budget.Limits{
		MaxPerBundle:  cfg.AI.MaxBudgetPerIssue,
		MaxPerSession: cfg.AI.MaxBudgetPerSession,
	})

	agentClient := agent.NewClient(agent.Config{})

	checkRunner := checks.NewRunner(
		checks.Command{Name: "lint", Line: cfg.Checks.LintCommand, Timeout: cfg.Checks.LintTimeout.Duration()},
		checks.Command{Name: "typecheck", Line: cfg.Checks.TypeCheckCommand, Timeout: cfg.Checks.TypeCheckTimeout.Duration()},
		checks.Command{Name: "test", Line: cfg.Checks.TestCommand, Timeout: cfg.Checks.TestTimeout.Duration()},
	)

	reporter := progress.NewReporter()
	metrics := telemetry.New()

	exec := pipeline.NewExecutor(pipeline.Config{
		Worktree:   wtManager,
		Budget:     budgetTracker,
		Agent:      agentClient,
		Checks:     checkRunner,
		VCS:        vcs.NewGit("autofix", "autofix@localhost"),
		Publisher:  hostClient,
		Sources:    trackerClient,
		Reporter:   reporterAdapter{reporter},
		BaseBranch: cfg.Host.DefaultBranch,
		MaxRetries: cfg.Checks.MaxRetries,
	})

	return &collaborators{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		tracker:    trackerClient,
		host:       hostClient,
		exceptions: newExceptionsHandler(cfg),
		worktree:   wtManager,
		budget:     budgetTracker,
		pipeline:   exec,
		reporter:   reporter,
	}, nil
}

// reporterAdapter bridges internal/pipeline.Reporter onto the shared
// internal/progress.Reporter event bus.
type reporterAdapter struct {
	r *progress.Reporter
}

func (a reporterAdapter) StageChanged(bundleID string, stage pipeline.Stage, attempt int) {
	a.r.Emit(progress.Event{Kind: "stage_changed", BundleID: bundleID, Stage: string(stage), Attempt: attempt})
}

func (a reporterAdapter) Retry(bundleID string, attempt int, feedback pipeline.RetryFeedback) {
	a.r.Emit(progress.Event{Kind: "item_retrying", BundleID: bundleID, Attempt: attempt, Data: feedback})
}

// newExceptionsHandler builds the optional exception-tracker webhook
// adapter; nil when exceptions aren't configured.
func newExceptionsHandler(cfg *config.Config) *exceptions.Handler {
	if cfg.Exceptions == nil {
		return nil
	}
	return exceptions.NewHandler(exceptions.Config{
		DSN:           cfg.Exceptions.DSN,
		Organization:  cfg.Exceptions.Organization,
		Project:       cfg.Exceptions.Project,
		WebhookSecret: cfg.Exceptions.WebhookSecret.Value(),
	})
}

func newOrchestrator(c *collaborators) *orchestrator.Orchestrator {
	return orchestrator.New(c.tracker, c.worktree, c.pipeline, c.reporter)
}
