// Package orchestrator wires the config, defect fetch, grouping,
// conflict pre-check, queue, and pipeline stages into the top-level
// autofix run, and composes the final report.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/autofix/internal/autofixerr"
	"github.com/fyrsmithlabs/autofix/internal/bundle"
	"github.com/fyrsmithlabs/autofix/internal/defect"
	"github.com/fyrsmithlabs/autofix/internal/interrupt"
	"github.com/fyrsmithlabs/autofix/internal/pipeline"
	"github.com/fyrsmithlabs/autofix/internal/progress"
	"github.com/fyrsmithlabs/autofix/internal/queue"
	"github.com/fyrsmithlabs/autofix/internal/worktree"
)

// DefectSource fetches the defects eligible for remediation.
type DefectSource interface {
	FetchDefects(ctx context.Context) ([]*defect.Defect, error)
}

// Options parameterizes one Run, mirroring the autofix CLI's flags.
type Options struct {
	GroupBy       bundle.Policy
	MaxParallel   int
	MaxRetries    int
	DryRun        bool
	BaseBranch    string
	IssueIDs      []int // restrict to these defect ids; empty means no restriction
	MinBundleSize int
	MaxBundleSize int
}

// Orchestrator runs the top-level sequence described by Options against
// a fixed set of collaborators.
type Orchestrator struct {
	Defects  DefectSource
	Worktree *worktree.Manager
	Pipeline *pipeline.Executor
	Reporter *progress.Reporter
}

// New constructs an Orchestrator from its collaborators.
func New(defects DefectSource, wt *worktree.Manager, exec *pipeline.Executor, reporter *progress.Reporter) *Orchestrator {
	if reporter == nil {
		reporter = progress.NewReporter()
	}
	return &Orchestrator{Defects: defects, Worktree: wt, Pipeline: exec, Reporter: reporter}
}

// Report is the structured result of one Run.
type Report struct {
	Bundles   []BundleSummary
	Completed int
	Failed    int
	Skipped   int
	Residue   []*defect.Defect
	Start     time.Time
	End       time.Time
	ExitCode  int
}

// BundleSummary narrates one bundle's outcome for the final report.
type BundleSummary struct {
	BundleID       string
	DisplayName    string
	Status         string
	Attempts       int
	PublicationURL string
	Error          string
}

// Run executes the full top-level sequence: fetch, group, pre-check
// conflicts, dispatch the queue under interrupt cleanup, and compose a
// report. A non-nil error means a terminal orchestrator failure (config
// already validated by the caller; this covers defect-fetch and
// conflict-detection failures) — the caller should treat it as exit
// code 1.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()

	defects, err := o.Defects.FetchDefects(ctx)
	if err != nil {
		return nil, autofixerr.Wrap(autofixerr.KindExternalAPIGeneric, "fetch defects", err)
	}

	if len(opts.IssueIDs) > 0 {
		defects = filterByID(defects, opts.IssueIDs)
	}

	grouper := bundle.NewGrouper()
	bundles, residue, err := grouper.Group(defects, bundle.GroupOptions{
		Policy:        opts.GroupBy,
		MinBundleSize: opts.MinBundleSize,
		MaxBundleSize: opts.MaxBundleSize,
	})
	if err != nil {
		return nil, autofixerr.Wrap(autofixerr.KindInvalidArg, "group defects", err)
	}

	if err := checkConflicts(bundles); err != nil {
		return nil, err
	}
	o.warnOverlappingFiles(bundles)

	if len(bundles) == 0 {
		return &Report{Residue: residue, Start: start, End: time.Now(), ExitCode: 1}, nil
	}

	handler := interrupt.NewHandler(ctx)
	handler.OnCleanup(o.Worktree.CleanupAll)
	handler.Install()
	defer handler.Stop()

	o.Worktree.StartAutoCleanupLoop()
	defer o.Worktree.Stop()

	var results []queue.ItemResult
	runErr := interrupt.WithCleanup(func() error {
		q := queue.NewQueue(maxParallelOf(opts.MaxParallel))
		q.SetProcessor(o.processBundle(opts))
		q.On(o.emitQueueEvent)
		results = q.Start(handler.Context(), bundles)
		return nil
	}, func() {
		o.Worktree.CleanupAll()
	})
	if runErr != nil {
		return nil, runErr
	}

	report := compose(bundles, results, residue, start)
	if handler.Context().Err() != nil {
		report.ExitCode = 130
	}
	return report, nil
}

func maxParallelOf(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func filterByID(defects []*defect.Defect, ids []int) []*defect.Defect {
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*defect.Defect
	for _, d := range defects {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

// checkConflicts applies the terminal half of the pre-queue conflict rule:
// two bundles proposing the same branch name is fatal, since both would
// race to create (and collide on) the same git ref. The non-terminal half
// (overlapping touched files) is narrated separately by warnOverlappingFiles.
func checkConflicts(bundles []*bundle.Bundle) error {
	seen := make(map[string]string, len(bundles))
	for _, b := range bundles {
		if other, ok := seen[b.ProposedBranch]; ok {
			return autofixerr.New(autofixerr.KindConflicts,
				fmt.Sprintf("bundles %s and %s both propose branch %s", other, b.ID, b.ProposedBranch))
		}
		seen[b.ProposedBranch] = b.ID
	}
	return nil
}

// warnOverlappingFiles narrates (but never blocks on) bundle pairs that
// touch the same file: the worktree manager gives each bundle its own
// isolated lease directory, so a collision there can't corrupt either
// bundle's working copy — it can only mean the two fixes may conflict
// when merged, which is the publisher's/reviewer's call to make.
func (o *Orchestrator) warnOverlappingFiles(bundles []*bundle.Bundle) {
	for i := 0; i < len(bundles); i++ {
		for j := i + 1; j < len(bundles); j++ {
			shared := sharedFiles(bundles[i].RelatedFiles, bundles[j].RelatedFiles)
			if len(shared) == 0 {
				continue
			}
			o.Reporter.Emit(progress.Event{
				Kind:     "bundle_file_overlap",
				BundleID: bundles[i].ID,
				Data:     fmt.Sprintf("overlaps %s on %d file(s): %v", bundles[j].ID, len(shared), shared),
			})
		}
	}
}

func sharedFiles(a, b []string) []string {
	inA := make(map[string]bool, len(a))
	for _, f := range a {
		inA[f] = true
	}
	var shared []string
	for _, f := range b {
		if inA[f] {
			shared = append(shared, f)
		}
	}
	return shared
}

func (o *Orchestrator) processBundle(opts Options) queue.Processor {
	return func(ctx context.Context, b *bundle.Bundle, attempt int) queue.ItemResult {
		result := o.Pipeline.Run(ctx, b, opts.DryRun)
		switch result.Status {
		case pipeline.BundleCompleted:
			return queue.ItemResult{Status: queue.ItemCompleted, Value: result}
		default:
			return queue.ItemResult{Status: queue.ItemFailed, Value: result, Err: fmt.Errorf("%s", result.ErrorMsg)}
		}
	}
}

func (o *Orchestrator) emitQueueEvent(kind queue.EventKind, b *bundle.Bundle, attempt int) {
	o.Reporter.Emit(progress.Event{Kind: string(kind), BundleID: b.ID, Attempt: attempt})
}

func compose(bundles []*bundle.Bundle, results []queue.ItemResult, residue []*defect.Defect, start time.Time) *Report {
	report := &Report{Residue: residue, Start: start, End: time.Now()}

	for i, b := range bundles {
		summary := BundleSummary{BundleID: b.ID, DisplayName: b.DisplayName}
		if i >= len(results) {
			summary.Status = "skipped"
			report.Skipped++
			report.Bundles = append(report.Bundles, summary)
			continue
		}

		res := results[i]
		switch res.Status {
		case queue.ItemCompleted:
			summary.Status = "completed"
			report.Completed++
			if pr, ok := res.Value.(*pipeline.Result); ok {
				summary.Attempts = pr.Attempts
				if pr.Publication != nil {
					summary.PublicationURL = pr.Publication.URL
				}
			}
		case queue.ItemSkipped:
			summary.Status = "skipped"
			report.Skipped++
			if res.Err != nil {
				summary.Error = res.Err.Error()
			}
		default:
			summary.Status = "failed"
			report.Failed++
			if pr, ok := res.Value.(*pipeline.Result); ok {
				summary.Attempts = pr.Attempts
				summary.Error = pr.ErrorMsg
			} else if res.Err != nil {
				summary.Error = res.Err.Error()
			}
		}
		report.Bundles = append(report.Bundles, summary)
	}

	report.ExitCode = 1
	if report.Completed > 0 {
		report.ExitCode = 0
	}
	return report
}
