package pipeline

import (
	"context"

	"github.com/fyrsmithlabs/autofix/internal/budget"
	"github.com/fyrsmithlabs/autofix/internal/bundle"
)

// RetryFeedback carries the prior attempt's failed checks and captured
// stderr forward into the next fix invocation as additional context.
type RetryFeedback struct {
	FailedChecks []CheckRun
}

// Agent invokes the external fixing agent in its two modes. maxSpend is
// the per-call budget ceiling (USD) passed through to the child process;
// 0 means unbounded.
type Agent interface {
	Analyze(ctx context.Context, workdir string, b *bundle.Bundle, tier budget.ModelTier, maxSpend float64) (*AnalysisResult, float64, error)
	Fix(ctx context.Context, workdir string, b *bundle.Bundle, analysis *AnalysisResult, tier budget.ModelTier, feedback *RetryFeedback, maxSpend float64) (*FixResult, float64, error)
}

// CheckRunner runs the configured verifier set against a working copy.
type CheckRunner interface {
	Run(ctx context.Context, workdir string) (*CheckResult, error)
}

// DependencyInstaller bootstraps a working copy's dependencies.
type DependencyInstaller interface {
	Install(ctx context.Context, workdir string) error
}

// VCS commits staged changes within a working copy.
type VCS interface {
	Commit(ctx context.Context, workdir, message string) error
	HasChanges(ctx context.Context, workdir string) (bool, error)
	Diffstat(ctx context.Context, workdir string) (additions, deletions int, err error)
}

// Publisher opens the change proposal linking a bundle's defects.
type Publisher interface {
	Publish(ctx context.Context, b *bundle.Bundle, branch, baseBranch, title, body string) (*PublicationHandle, error)
}

// SourceAnnotator records a publication outcome back onto each defect.
type SourceAnnotator interface {
	Annotate(ctx context.Context, defectID int, handle *PublicationHandle) error
}

// Reporter narrates stage transitions and retry feedback.
type Reporter interface {
	StageChanged(bundleID string, stage Stage, attempt int)
	Retry(bundleID string, attempt int, feedback RetryFeedback)
}

// NopReporter discards every event; useful as a default collaborator.
type NopReporter struct{}

func (NopReporter) StageChanged(string, Stage, int)  {}
func (NopReporter) Retry(string, int, RetryFeedback) {}
