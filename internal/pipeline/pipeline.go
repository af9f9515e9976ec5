package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/autofix/internal/autofixerr"
	"github.com/fyrsmithlabs/autofix/internal/budget"
	"github.com/fyrsmithlabs/autofix/internal/bundle"
	"github.com/fyrsmithlabs/autofix/internal/telemetry"
	"github.com/fyrsmithlabs/autofix/internal/worktree"
)

// Config wires the collaborators an Executor needs. Reporter defaults
// to NopReporter if nil. Metrics is optional; a nil value disables
// recording.
type Config struct {
	Worktree   *worktree.Manager
	Budget     *budget.Tracker
	Agent      Agent
	Checks     CheckRunner
	Deps       DependencyInstaller
	VCS        VCS
	Publisher  Publisher
	Sources    SourceAnnotator
	Reporter   Reporter
	Metrics    *telemetry.Metrics
	BaseBranch string
	MaxRetries int
}

// Executor runs the nine-stage pipeline for one bundle at a time. A
// single Executor is reused across bundles by the queue's workers; it
// holds no per-bundle state between calls, aside from the shared
// active-bundle counter used for the occupancy gauge.
type Executor struct {
	cfg    Config
	active int64
}

// NewExecutor constructs an Executor. MaxRetries defaults to 3 and
// Reporter to a no-op if unset.
func NewExecutor(cfg Config) *Executor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NopReporter{}
	}
	return &Executor{cfg: cfg}
}

// Run executes the full stage sequence for b, honoring ctx cancellation
// at every suspension point, and returns a terminal Result.
func (e *Executor) Run(ctx context.Context, b *bundle.Bundle, dryRun bool) *Result {
	pctx := &Context{
		Bundle:     b,
		DryRun:     dryRun,
		MaxRetries: e.cfg.MaxRetries,
		Start:      time.Now(),
	}

	result := &Result{Bundle: b, Start: pctx.Start}

	n := atomic.AddInt64(&e.active, 1)
	e.recordActiveBundles(n)
	defer func() {
		n := atomic.AddInt64(&e.active, -1)
		e.recordActiveBundles(n)
	}()

	defer func() {
		result.End = time.Now()
		result.Attempts = pctx.Attempt
		result.StageErrors = pctx.StageErrors
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.RecordBundleResult(string(result.Status))
		}
	}()

	if err := e.runWorktreeCreate(ctx, pctx); err != nil {
		return e.finish(result, pctx, BundleFailed, err)
	}
	defer func() {
		if e.cfg.Metrics != nil && !pctx.stageStart.IsZero() {
			e.cfg.Metrics.RecordStageDuration(string(pctx.CurrentStage), time.Since(pctx.stageStart))
		}
	}()
	defer e.runCleanup(context.Background(), pctx, result)

	attemptLoop := func() (done bool, retErr error) {
		pctx.Attempt++

		if err := e.checkBudget(pctx); err != nil {
			return true, err
		}

		if err := e.runAnalysis(ctx, pctx); err != nil {
			return true, err
		}

		if shouldRunStage(pctx, StageFix) {
			if err := e.runFix(ctx, pctx); err != nil {
				return false, err // retriable path handled by caller
			}
		}

		if err := e.runInstallDeps(ctx, pctx); err != nil {
			return true, err
		}

		if err := e.runChecks(ctx, pctx); err != nil {
			return true, err
		}

		if pctx.Checks != nil && !pctx.Checks.Passed() {
			return false, autofixerr.New(autofixerr.KindCheckFailed, "checks failed")
		}

		if shouldRunStage(pctx, StageCommit) {
			if err := e.runCommit(ctx, pctx); err != nil {
				return true, err
			}
		}

		if shouldRunStage(pctx, StagePublish) {
			if err := e.runPublish(ctx, pctx); err != nil {
				return true, err
			}
		} else if dryRun {
			pctx.Publication = &PublicationHandle{URL: "(dry-run, not opened)"}
		}

		if shouldRunStage(pctx, StageUpdateSources) {
			e.runUpdateSources(ctx, pctx) // non-fatal: logged internally
		}

		return true, nil
	}

	for {
		done, err := attemptLoop()
		if err == nil {
			return e.finish(result, pctx, BundleCompleted, nil)
		}

		if isInterrupted(ctx, err) {
			return e.finish(result, pctx, BundleFailed, err)
		}

		if done {
			return e.finish(result, pctx, BundleFailed, err)
		}

		if !shouldRetry(pctx.Attempt, pctx.MaxRetries, false, pctx.Checks) {
			rec := recoverable(pctx.PrevChecks, pctx.Checks)
			msg := err.Error()
			if !rec {
				msg += " (non-recoverable: passing checks decreased across attempts)"
			}
			return e.finish(result, pctx, BundleFailed, fmt.Errorf("%s", msg))
		}
		pctx.PrevChecks = pctx.Checks

		feedback := RetryFeedback{}
		if pctx.Checks != nil {
			feedback.FailedChecks = pctx.Checks.Failed()
		}
		e.cfg.Reporter.Retry(b.ID, pctx.Attempt, feedback)
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.RecordRetry(string(b.Policy))
		}

		delay := backoffDelay(pctx.Attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return e.finish(result, pctx, BundleFailed, autofixerr.New(autofixerr.KindInterrupted, "interrupted during retry backoff"))
		case <-timer.C:
		}
	}
}

func (e *Executor) finish(result *Result, pctx *Context, status BundleStatus, err error) *Result {
	result.Status = status
	if err != nil {
		result.ErrorMsg = err.Error()
	}
	if status == BundleCompleted {
		result.Publication = pctx.Publication
	}
	return result
}

func isInterrupted(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return isKind(err, autofixerr.KindInterrupted)
}

func isKind(err error, k autofixerr.Kind) bool {
	afe, ok := err.(*autofixerr.Error)
	return ok && afe.Kind == k
}

func (e *Executor) setStage(pctx *Context, stage Stage) {
	if e.cfg.Metrics != nil && !pctx.stageStart.IsZero() {
		e.cfg.Metrics.RecordStageDuration(string(pctx.CurrentStage), time.Since(pctx.stageStart))
	}
	pctx.CurrentStage = stage
	pctx.stageStart = time.Now()
	e.cfg.Reporter.StageChanged(pctx.Bundle.ID, stage, pctx.Attempt)
}

// recordActiveBundles reports the current worktree-lease occupancy,
// guarded by a nil Metrics (e.g. in tests that build a bare Executor).
func (e *Executor) recordActiveBundles(n int64) {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.SetActiveBundles(int(n))
	}
}

func (e *Executor) recordBudgetUtilization() {
	if e.cfg.Metrics == nil || e.cfg.Budget == nil {
		return
	}
	bundleUtil, sessionUtil := e.cfg.Budget.Utilization()
	e.cfg.Metrics.SetBudgetUtilization("bundle", bundleUtil)
	e.cfg.Metrics.SetBudgetUtilization("session", sessionUtil)
}

func (e *Executor) recordStageError(pctx *Context, stage Stage, err error, recoverable bool) {
	pctx.StageErrors = append(pctx.StageErrors, StageError{
		Stage:       stage,
		Message:     err.Error(),
		Timestamp:   time.Now(),
		Recoverable: recoverable,
	})
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return autofixerr.New(autofixerr.KindInterrupted, "cancellation requested")
	default:
		return nil
	}
}

// --- stage 1 ---

func (e *Executor) runWorktreeCreate(ctx context.Context, pctx *Context) error {
	e.setStage(pctx, StageWorktreeCreate)
	if err := checkCancelled(ctx); err != nil {
		e.recordStageError(pctx, StageWorktreeCreate, err, false)
		return err
	}
	lease, err := e.cfg.Worktree.Acquire(pctx.Bundle.ProposedBranch, issueIDs(pctx.Bundle), e.cfg.BaseBranch)
	if err != nil {
		wrapped := autofixerr.Wrap(autofixerr.KindWorktreeCreation, "worktree-create failed", err)
		e.recordStageError(pctx, StageWorktreeCreate, wrapped, false)
		return wrapped
	}
	pctx.Lease = lease
	return nil
}

func issueIDs(b *bundle.Bundle) []string {
	ids := make([]string, 0, len(b.Defects))
	for _, d := range b.Defects {
		ids = append(ids, fmt.Sprintf("%d", d.ID))
	}
	return ids
}

// checkBudget gates stage 2 on the bundle's remaining spend headroom,
// so an already-exhausted budget skips analysis without invoking the
// agent at all.
func (e *Executor) checkBudget(pctx *Context) error {
	if e.cfg.Budget == nil {
		return nil
	}
	if !e.cfg.Budget.CanSpend(pctx.Bundle.ID, 0) {
		err := autofixerr.New(autofixerr.KindAIBudgetExceeded, "bundle exceeds configured spend cap")
		e.recordStageError(pctx, StageAnalysis, err, false)
		return err
	}
	return nil
}

// --- stage 2 ---

func (e *Executor) runAnalysis(ctx context.Context, pctx *Context) error {
	e.setStage(pctx, StageAnalysis)
	if err := checkCancelled(ctx); err != nil {
		e.recordStageError(pctx, StageAnalysis, err, false)
		return err
	}
	tier := e.cfg.Budget.GetCurrentModelTier()
	analysis, cost, err := e.cfg.Agent.Analyze(ctx, pctx.Lease.Path, pctx.Bundle, tier, e.cfg.Budget.MaxPerBundle())
	e.cfg.Budget.AddCost(pctx.Bundle.ID, cost)
	e.recordBudgetUtilization()
	if err != nil {
		wrapped := autofixerr.Wrap(autofixerr.KindAIAnalysisFailed, "analysis failed", err)
		e.recordStageError(pctx, StageAnalysis, wrapped, false)
		return wrapped
	}
	if len(analysis.AffectedFiles) > 3 {
		analysis.AffectedFiles = analysis.AffectedFiles[:3]
	}
	pctx.Analysis = analysis
	return nil
}

// --- stage 3 (retriable) ---

func (e *Executor) runFix(ctx context.Context, pctx *Context) error {
	e.setStage(pctx, StageFix)
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	var feedback *RetryFeedback
	if pctx.PrevChecks != nil {
		feedback = &RetryFeedback{FailedChecks: pctx.PrevChecks.Failed()}
	}

	tier := e.cfg.Budget.GetCurrentModelTier()
	fix, cost, err := e.cfg.Agent.Fix(ctx, pctx.Lease.Path, pctx.Bundle, pctx.Analysis, tier, feedback, e.cfg.Budget.MaxPerBundle())
	e.cfg.Budget.AddCost(pctx.Bundle.ID, cost)
	e.recordBudgetUtilization()
	if err != nil {
		wrapped := autofixerr.Wrap(autofixerr.KindAIFixFailed, "fix invocation failed", err)
		e.recordStageError(pctx, StageFix, wrapped, true)
		return wrapped
	}

	changed, diffErr := e.cfg.VCS.HasChanges(ctx, pctx.Lease.Path)
	if diffErr != nil || !changed || !fix.Success {
		wrapped := autofixerr.New(autofixerr.KindAIFixFailed, "fix reported no verified changes on disk")
		e.recordStageError(pctx, StageFix, wrapped, true)
		return wrapped
	}

	pctx.Fix = fix
	return nil
}

// --- stage 4 ---

func (e *Executor) runInstallDeps(ctx context.Context, pctx *Context) error {
	e.setStage(pctx, StageInstallDeps)
	if e.cfg.Deps == nil {
		return nil
	}
	if err := checkCancelled(ctx); err != nil {
		e.recordStageError(pctx, StageInstallDeps, err, false)
		return err
	}
	if err := e.cfg.Deps.Install(ctx, pctx.Lease.Path); err != nil {
		wrapped := autofixerr.Wrap(autofixerr.KindPipelineFailed, "dependency install failed", err)
		e.recordStageError(pctx, StageInstallDeps, wrapped, false)
		return wrapped
	}
	return nil
}

// --- stage 5 (retriable at queue level) ---

func (e *Executor) runChecks(ctx context.Context, pctx *Context) error {
	e.setStage(pctx, StageChecks)
	if err := checkCancelled(ctx); err != nil {
		e.recordStageError(pctx, StageChecks, err, false)
		return err
	}
	result, err := e.cfg.Checks.Run(ctx, pctx.Lease.Path)
	if err != nil {
		wrapped := autofixerr.Wrap(autofixerr.KindCheckFailed, "checks failed to run", err)
		e.recordStageError(pctx, StageChecks, wrapped, true)
		return wrapped
	}
	pctx.Checks = result
	return nil
}

// --- stage 6 ---

func (e *Executor) runCommit(ctx context.Context, pctx *Context) error {
	e.setStage(pctx, StageCommit)
	if err := checkCancelled(ctx); err != nil {
		e.recordStageError(pctx, StageCommit, err, false)
		return err
	}
	bd := &bundleDefects{
		displayName: pctx.Bundle.DisplayName,
		components:  pctx.Bundle.Components,
		defects:     pctx.Bundle.Defects,
	}
	msg := CommitMessage(bd, pctx.Fix.FilesChanged)
	if err := e.cfg.VCS.Commit(ctx, pctx.Lease.Path, msg); err != nil {
		wrapped := autofixerr.Wrap(autofixerr.KindPipelineFailed, "commit failed", err)
		e.recordStageError(pctx, StageCommit, wrapped, false)
		return wrapped
	}
	return nil
}

// --- stage 7 ---

func (e *Executor) runPublish(ctx context.Context, pctx *Context) error {
	e.setStage(pctx, StagePublish)
	if err := checkCancelled(ctx); err != nil {
		e.recordStageError(pctx, StagePublish, err, false)
		return err
	}
	additions, deletions, _ := e.cfg.VCS.Diffstat(ctx, pctx.Lease.Path)
	body := PRBody(pctx.Fix.Summary, pctx.Bundle.Defects, pctx.Fix.FilesChanged, additions, deletions, *pctx.Checks)
	bd := &bundleDefects{displayName: pctx.Bundle.DisplayName, components: pctx.Bundle.Components, defects: pctx.Bundle.Defects}
	title := fmt.Sprintf("%s(%s): %s", mostCommonType(bd.defects), deriveScope(bd.components, pctx.Fix.FilesChanged), truncateSubject(bd.displayName))

	handle, err := e.cfg.Publisher.Publish(ctx, pctx.Bundle, pctx.Bundle.ProposedBranch, e.cfg.BaseBranch, title, body)
	if err != nil {
		wrapped := autofixerr.Wrap(autofixerr.KindExternalAPIGeneric, "publish failed", err)
		e.recordStageError(pctx, StagePublish, wrapped, false)
		return wrapped
	}
	pctx.Publication = handle
	return nil
}

// --- stage 8 (non-fatal) ---

func (e *Executor) runUpdateSources(ctx context.Context, pctx *Context) {
	e.setStage(pctx, StageUpdateSources)
	if e.cfg.Sources == nil || pctx.Publication == nil {
		return
	}
	for _, d := range pctx.Bundle.Defects {
		if err := e.cfg.Sources.Annotate(ctx, d.ID, pctx.Publication); err != nil {
			e.recordStageError(pctx, StageUpdateSources, fmt.Errorf("annotate defect %d: %w", d.ID, err), true)
		}
	}
}

// --- stage 9 (non-fatal) ---

func (e *Executor) runCleanup(ctx context.Context, pctx *Context, result *Result) {
	e.setStage(pctx, StageCleanup)
	if pctx.Lease == nil {
		return
	}
	if result.Status == BundleCompleted {
		_ = e.cfg.Worktree.Release(pctx.Lease.ID)
		return
	}
	_ = e.cfg.Worktree.ReleaseAndCleanBranch(pctx.Lease.ID)
}
