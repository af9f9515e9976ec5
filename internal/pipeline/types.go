// Package pipeline runs the per-bundle stage sequence: worktree
// creation, AI analysis and fix, dependency install, checks, commit,
// publish, source annotation, and cleanup.
package pipeline

import (
	"time"

	"github.com/fyrsmithlabs/autofix/internal/bundle"
	"github.com/fyrsmithlabs/autofix/internal/worktree"
)

// Stage identifies one of the nine pipeline stages.
type Stage string

const (
	StageWorktreeCreate Stage = "worktree-create"
	StageAnalysis       Stage = "analysis"
	StageFix            Stage = "fix"
	StageInstallDeps    Stage = "install-deps"
	StageChecks         Stage = "checks"
	StageCommit         Stage = "commit"
	StagePublish        Stage = "publish"
	StageUpdateSources  Stage = "update-sources"
	StageCleanup        Stage = "cleanup"
)

// dryRunSkipped are the stages a dry run never executes; pre-verification
// stages still run and publication is simulated.
var dryRunSkipped = map[Stage]bool{
	StageFix:           true,
	StageCommit:        true,
	StagePublish:       true,
	StageUpdateSources: true,
}

// Complexity is the fixing agent's self-reported difficulty estimate.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// AnalysisResult is the read-only agent call's output (stage 2).
type AnalysisResult struct {
	Confidence    float64
	RootCause     string
	SuggestedFix  string
	AffectedFiles []string
	Complexity    Complexity
}

// FixResult is the write-capable agent call's output (stage 3).
type FixResult struct {
	Success      bool
	Summary      string
	FilesChanged []string
}

// CheckStatus is the outcome of a single configured verifier.
type CheckStatus string

const (
	CheckPassed  CheckStatus = "passed"
	CheckFailed  CheckStatus = "failed"
	CheckSkipped CheckStatus = "skipped"
)

// CheckRun is one verifier's outcome (stage 5): lint, typecheck, or test.
type CheckRun struct {
	Name   string
	Status CheckStatus
	Stderr string
}

// CheckResult aggregates every configured verifier's outcome for one attempt.
type CheckResult struct {
	Runs []CheckRun
}

// Passed reports whether every run in the result passed.
func (r CheckResult) Passed() bool {
	if len(r.Runs) == 0 {
		return false
	}
	for _, run := range r.Runs {
		if run.Status != CheckPassed {
			return false
		}
	}
	return true
}

// PassingCount returns how many runs passed, used by the recoverability
// heuristic to compare successive attempts.
func (r CheckResult) PassingCount() int {
	n := 0
	for _, run := range r.Runs {
		if run.Status == CheckPassed {
			n++
		}
	}
	return n
}

// Failed returns the runs that did not pass, carried in retry feedback.
func (r CheckResult) Failed() []CheckRun {
	var out []CheckRun
	for _, run := range r.Runs {
		if run.Status != CheckPassed {
			out = append(out, run)
		}
	}
	return out
}

// PublicationHandle references the opened change proposal.
type PublicationHandle struct {
	URL    string
	Number int
}

// StageError is attached to a pipeline context whenever a stage fails.
type StageError struct {
	Stage       Stage
	Message     string
	Timestamp   time.Time
	Recoverable bool
}

// BundleStatus is a bundle's terminal disposition.
type BundleStatus string

const (
	BundleCompleted BundleStatus = "completed"
	BundleFailed    BundleStatus = "failed"
	BundleSkipped   BundleStatus = "skipped"
)

// Result is emitted once per bundle, terminal.
type Result struct {
	Bundle      *bundle.Bundle
	Status      BundleStatus
	Attempts    int
	Start       time.Time
	End         time.Time
	Publication *PublicationHandle
	ErrorMsg    string
	StageErrors []StageError
}

// Context is the mutable, per-bundle pipeline state threaded through
// stage execution. Later stages may read earlier fields only after
// their stage has completed successfully.
type Context struct {
	Bundle       *bundle.Bundle
	DryRun       bool
	Attempt      int
	MaxRetries   int
	Start        time.Time
	CurrentStage Stage
	stageStart   time.Time
	Cancelled    bool

	Lease       *worktree.Lease
	Analysis    *AnalysisResult
	Fix         *FixResult
	Checks      *CheckResult
	PrevChecks  *CheckResult
	Publication *PublicationHandle

	StageErrors []StageError
}

// shouldRunStage reports whether stage executes given the context's
// dry-run mode.
func shouldRunStage(ctx *Context, stage Stage) bool {
	if !ctx.DryRun {
		return true
	}
	return !dryRunSkipped[stage]
}
