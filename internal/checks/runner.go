// Package checks runs the configured verifier commands (lint, type
// check, test) against a worktree, implementing internal/pipeline's
// CheckRunner.
package checks

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/fyrsmithlabs/autofix/internal/pipeline"
)

// Command names one configured verifier: a shell command line plus the
// per-command timeout it must complete within.
type Command struct {
	Name    string
	Line    string
	Timeout time.Duration
}

// Runner executes a fixed set of verifier commands in order, implementing
// internal/pipeline.CheckRunner.
type Runner struct {
	commands []Command
}

// NewRunner constructs a Runner from the configured verifier commands.
// Commands with an empty Line are skipped entirely.
func NewRunner(commands ...Command) *Runner {
	var active []Command
	for _, c := range commands {
		if strings.TrimSpace(c.Line) == "" {
			continue
		}
		active = append(active, c)
	}
	return &Runner{commands: active}
}

// Run executes every configured command against workdir in order,
// stopping at the first failure only to collect its stderr — every
// configured command still gets a CheckRun entry, later ones marked
// skipped once an earlier one fails, mirroring how a CI job reports a
// partial run.
func (r *Runner) Run(ctx context.Context, workdir string) (*pipeline.CheckResult, error) {
	result := &pipeline.CheckResult{}
	failed := false

	for _, c := range r.commands {
		if failed {
			result.Runs = append(result.Runs, pipeline.CheckRun{Name: c.Name, Status: pipeline.CheckSkipped})
			continue
		}

		status, stderr := r.runOne(ctx, workdir, c)
		result.Runs = append(result.Runs, pipeline.CheckRun{Name: c.Name, Status: status, Stderr: stderr})
		if status != pipeline.CheckPassed {
			failed = true
		}
	}

	return result, nil
}

func (r *Runner) runOne(ctx context.Context, workdir string, c Command) (pipeline.CheckStatus, string) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", c.Line)
	cmd.Dir = workdir

	out, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return pipeline.CheckFailed, c.Name + " timed out after " + timeout.String()
		}
		return pipeline.CheckFailed, string(out)
	}
	return pipeline.CheckPassed, ""
}
