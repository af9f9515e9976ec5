// Package host adapts a code-hosting service (pull/merge requests,
// issue labels) to the orchestrator's Publisher and defect-fetch needs.
package host

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/autofix/internal/autofixerr"
	"github.com/fyrsmithlabs/autofix/internal/bundle"
	"github.com/fyrsmithlabs/autofix/internal/httpretry"
	"github.com/fyrsmithlabs/autofix/internal/pipeline"
)

// Config configures a Client.
type Config struct {
	Token         string
	Owner         string
	Repo          string
	DefaultBranch string
	AutoFixLabel  string
	SkipLabel     string
	APIBaseURL    string
	MaxRetries    int
}

// Client adapts the code-hosting API.
type Client struct {
	cfg Config
	gh  *github.Client
}

// NewClient constructs a Client authenticated with cfg.Token.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	httpClient := oauth2.NewClient(ctx, ts)

	gh := github.NewClient(httpClient)
	if cfg.APIBaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(cfg.APIBaseURL, cfg.APIBaseURL)
		if err != nil {
			return nil, autofixerr.Wrap(autofixerr.KindConfigInvalidFormat, "invalid host.apiBaseUrl", err)
		}
	}

	return &Client{cfg: cfg, gh: gh}, nil
}

// Publish opens a pull request for branch against baseBranch, implementing
// pipeline.Publisher.
func (c *Client) Publish(ctx context.Context, b *bundle.Bundle, branch, baseBranch, title, body string) (*pipeline.PublicationHandle, error) {
	if baseBranch == "" {
		baseBranch = c.cfg.DefaultBranch
	}

	var pr *github.PullRequest
	_, err := httpretry.Do(ctx, c.cfg.MaxRetries, func(ctx context.Context, attempt int) (int, error) {
		req := &github.NewPullRequest{
			Title: github.String(title),
			Head:  github.String(branch),
			Base:  github.String(baseBranch),
			Body:  github.String(body),
		}
		created, resp, err := c.gh.PullRequests.Create(ctx, c.cfg.Owner, c.cfg.Repo, req)
		code := statusCode(resp)
		if err != nil {
			return code, err
		}
		pr = created
		return code, nil
	})
	if err != nil {
		return nil, autofixerr.Wrap(autofixerr.KindExternalAPIGeneric, "failed to open pull request", err)
	}

	return &pipeline.PublicationHandle{URL: pr.GetHTMLURL(), Number: pr.GetNumber()}, nil
}

// LabelIssue applies a label, e.g. the configured skip label, to an issue.
func (c *Client) LabelIssue(ctx context.Context, issueNumber int, label string) error {
	_, err := httpretry.Do(ctx, c.cfg.MaxRetries, func(ctx context.Context, attempt int) (int, error) {
		_, resp, err := c.gh.Issues.AddLabelsToIssue(ctx, c.cfg.Owner, c.cfg.Repo, issueNumber, []string{label})
		return statusCode(resp), err
	})
	if err != nil {
		return autofixerr.Wrap(autofixerr.KindExternalAPIGeneric, fmt.Sprintf("failed to label issue #%d", issueNumber), err)
	}
	return nil
}

func statusCode(resp *github.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}
