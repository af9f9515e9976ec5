// Package vcs commits and diffs a worktree's changes using go-git,
// implementing internal/pipeline's VCS collaborator.
package vcs

import (
	"context"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/fyrsmithlabs/autofix/internal/autofixerr"
)

// Git commits staged changes in a worktree opened by path, implementing
// internal/pipeline.VCS.
type Git struct {
	AuthorName  string
	AuthorEmail string
}

// NewGit constructs a Git adapter. AuthorName/AuthorEmail default to a
// generic bot identity when unset.
func NewGit(authorName, authorEmail string) *Git {
	if authorName == "" {
		authorName = "autofix"
	}
	if authorEmail == "" {
		authorEmail = "autofix@localhost"
	}
	return &Git{AuthorName: authorName, AuthorEmail: authorEmail}
}

// Commit stages every modified and untracked file under workdir and
// commits them with message.
func (g *Git) Commit(ctx context.Context, workdir, message string) error {
	repo, err := git.PlainOpen(workdir)
	if err != nil {
		return autofixerr.Wrap(autofixerr.KindWorktreeInvalidPath, "open worktree", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return autofixerr.Wrap(autofixerr.KindWorktreeInvalidPath, "load worktree", err)
	}

	if _, err := wt.Add("."); err != nil {
		return autofixerr.Wrap(autofixerr.KindPipelineFailed, "stage changes", err)
	}

	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: g.AuthorName, Email: g.AuthorEmail},
	})
	if err != nil {
		return autofixerr.Wrap(autofixerr.KindPipelineFailed, "commit changes", err)
	}
	return nil
}

// HasChanges reports whether the working copy has any unstaged or
// untracked modifications worth committing.
func (g *Git) HasChanges(ctx context.Context, workdir string) (bool, error) {
	repo, err := git.PlainOpen(workdir)
	if err != nil {
		return false, autofixerr.Wrap(autofixerr.KindWorktreeInvalidPath, "open worktree", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, autofixerr.Wrap(autofixerr.KindWorktreeInvalidPath, "load worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, autofixerr.Wrap(autofixerr.KindPipelineFailed, "read status", err)
	}
	return !status.IsClean(), nil
}

// Diffstat returns the total lines added and removed in HEAD's latest
// commit, used for the publication body's change summary.
func (g *Git) Diffstat(ctx context.Context, workdir string) (additions, deletions int, err error) {
	repo, err := git.PlainOpen(workdir)
	if err != nil {
		return 0, 0, autofixerr.Wrap(autofixerr.KindWorktreeInvalidPath, "open worktree", err)
	}
	head, err := repo.Head()
	if err != nil {
		return 0, 0, autofixerr.Wrap(autofixerr.KindPipelineFailed, "resolve HEAD", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return 0, 0, autofixerr.Wrap(autofixerr.KindPipelineFailed, "load HEAD commit", err)
	}
	parent, err := commit.Parent(0)
	if err != nil {
		// First commit on the branch: everything in the tree counts as added.
		stats, statErr := commit.Stats()
		if statErr != nil {
			return 0, 0, autofixerr.Wrap(autofixerr.KindPipelineFailed, "compute stats", statErr)
		}
		return sumStats(stats), 0, nil
	}

	patch, err := parent.Patch(commit)
	if err != nil {
		return 0, 0, autofixerr.Wrap(autofixerr.KindPipelineFailed, "diff against parent", err)
	}
	stats := patch.Stats()
	return sumAdditions(stats), sumDeletions(stats), nil
}

func sumStats(stats object.FileStats) int {
	n := 0
	for _, s := range stats {
		n += s.Addition
	}
	return n
}

func sumAdditions(stats object.FileStats) int {
	n := 0
	for _, s := range stats {
		n += s.Addition
	}
	return n
}

func sumDeletions(stats object.FileStats) int {
	n := 0
	for _, s := range stats {
		n += s.Deletion
	}
	return n
}
