// Package agent adapts the external fixing-agent executable as a
// subprocess, translating its JSON stdout contract into the pipeline's
// analysis and fix result types.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/autofix/internal/autofixerr"
	"github.com/fyrsmithlabs/autofix/internal/budget"
	"github.com/fyrsmithlabs/autofix/internal/bundle"
	"github.com/fyrsmithlabs/autofix/internal/pipeline"
)

var overloadPattern = regexp.MustCompile(`(?i)rate limit|overloaded`)

// tierFlag maps a budget.ModelTier to the CLI flag value passed to the
// agent executable.
var tierFlag = map[budget.ModelTier]string{
	budget.TierPreferred: "preferred",
	budget.TierFallback:  "fallback",
	budget.TierLowest:    "lowest",
}

// Config configures one Client.
type Config struct {
	Executable string
	Timeout    time.Duration
	// RatePerSecond bounds how often the agent executable may be
	// invoked; zero disables rate limiting.
	RatePerSecond float64
}

// Client invokes the fixing-agent executable as a child process.
type Client struct {
	cfg     Config
	limiter *rate.Limiter
}

// NewClient constructs a Client. Timeout defaults to five minutes.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &Client{cfg: cfg, limiter: limiter}
}

type usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

type analyzeOutput struct {
	Usage         usage    `json:"usage"`
	Confidence    float64  `json:"confidence"`
	RootCause     string   `json:"rootCause"`
	SuggestedFix  string   `json:"suggestedFix"`
	AffectedFiles []string `json:"affectedFiles"`
	Complexity    string   `json:"complexity"`
}

type fixOutput struct {
	Usage        usage    `json:"usage"`
	Success      bool     `json:"success"`
	Summary      string   `json:"summary"`
	FilesChanged []string `json:"filesChanged"`
}

// Analyze invokes the agent read-only, requesting root-cause analysis.
func (c *Client) Analyze(ctx context.Context, workdir string, b *bundle.Bundle, tier budget.ModelTier, maxSpend float64) (*pipeline.AnalysisResult, float64, error) {
	prompt := analysisPrompt(b)
	args := []string{"--mode", "analyze", "--model-tier", tierFlag[tier], "--allowed-tools", "read", "--max-budget", budgetFlag(maxSpend), "--working-dir", workdir}

	raw, err := c.invoke(ctx, args, prompt)
	if err != nil {
		return nil, 0, err
	}

	var out analyzeOutput
	if jsonErr := json.Unmarshal(raw, &out); jsonErr != nil {
		return nil, 0, autofixerr.Wrap(autofixerr.KindAIParseError, "failed to parse analysis output", jsonErr)
	}

	return &pipeline.AnalysisResult{
		Confidence:    out.Confidence,
		RootCause:     out.RootCause,
		SuggestedFix:  out.SuggestedFix,
		AffectedFiles: out.AffectedFiles,
		Complexity:    pipeline.Complexity(out.Complexity),
	}, out.Usage.CostUSD, nil
}

// Fix invokes the agent with write capability, optionally carrying
// forward the previous attempt's failed-check feedback.
func (c *Client) Fix(ctx context.Context, workdir string, b *bundle.Bundle, analysis *pipeline.AnalysisResult, tier budget.ModelTier, feedback *pipeline.RetryFeedback, maxSpend float64) (*pipeline.FixResult, float64, error) {
	prompt := fixPrompt(b, analysis, feedback)
	args := []string{"--mode", "fix", "--model-tier", tierFlag[tier], "--allowed-tools", "read,write,exec", "--max-budget", budgetFlag(maxSpend), "--working-dir", workdir}

	raw, err := c.invoke(ctx, args, prompt)
	if err != nil {
		return nil, 0, err
	}

	var out fixOutput
	if jsonErr := json.Unmarshal(raw, &out); jsonErr != nil {
		return nil, 0, autofixerr.Wrap(autofixerr.KindAIParseError, "failed to parse fix output", jsonErr)
	}

	return &pipeline.FixResult{
		Success:      out.Success,
		Summary:      out.Summary,
		FilesChanged: out.FilesChanged,
	}, out.Usage.CostUSD, nil
}

// invoke runs the agent executable, returning its raw stdout JSON
// document on success. Stderr is scanned for overload/rate-limit
// signatures so the caller's error kind drives correct retry behavior.
func (c *Client) invoke(ctx context.Context, args []string, prompt string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, autofixerr.Wrap(autofixerr.KindInterrupted, "agent invocation cancelled while rate limited", err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.cfg.Executable, args...)
	cmd.Stdin = bytes.NewBufferString(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if errors.Is(err, exec.ErrNotFound) {
		return nil, autofixerr.Wrap(autofixerr.KindAICLINotFound, "fixing-agent executable not found: "+c.cfg.Executable, err)
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, autofixerr.New(autofixerr.KindAITimeout, "fixing-agent invocation timed out after "+c.cfg.Timeout.String())
	}
	if overloadPattern.Match(stderr.Bytes()) {
		return nil, autofixerr.New(autofixerr.KindExternalAPIRateLimit, "fixing-agent reported rate limiting or overload: "+stderr.String())
	}
	if err != nil {
		return nil, autofixerr.Wrap(autofixerr.KindAIFixFailed, "fixing-agent exited non-zero: "+stderr.String(), err)
	}

	return lastJSONObject(stdout.Bytes())
}

// lastJSONObject extracts the final top-level JSON object from output,
// since an agent may emit progress lines before its final result.
func lastJSONObject(out []byte) ([]byte, error) {
	depth := 0
	start := -1
	lastStart, lastEnd := -1, -1
	for i, b := range out {
		switch b {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start != -1 {
				lastStart, lastEnd = start, i+1
			}
		}
	}
	if lastStart == -1 {
		return nil, autofixerr.New(autofixerr.KindAIParseError, "no JSON object found in agent output")
	}
	return out[lastStart:lastEnd], nil
}

func analysisPrompt(b *bundle.Bundle) string {
	var buf bytes.Buffer
	buf.WriteString("Investigate the following defects without making changes.\n")
	for _, d := range b.Defects {
		fmt.Fprintf(&buf, "- #%d %s: %s\n", d.ID, d.Title, d.Body)
	}
	return buf.String()
}

func fixPrompt(b *bundle.Bundle, analysis *pipeline.AnalysisResult, feedback *pipeline.RetryFeedback) string {
	var buf bytes.Buffer
	buf.WriteString("Apply a fix for the following defects.\n")
	for _, d := range b.Defects {
		fmt.Fprintf(&buf, "- #%d %s: %s\n", d.ID, d.Title, d.Body)
	}
	if analysis != nil {
		fmt.Fprintf(&buf, "\nPrior analysis root cause: %s\nSuggested fix: %s\n", analysis.RootCause, analysis.SuggestedFix)
	}
	if feedback != nil && len(feedback.FailedChecks) > 0 {
		buf.WriteString("\nThe previous attempt failed these checks:\n")
		for _, fc := range feedback.FailedChecks {
			fmt.Fprintf(&buf, "- %s: %s\n", fc.Name, truncate(fc.Stderr, 2000))
		}
	}
	return buf.String()
}

// budgetFlag formats a per-call spend ceiling for the --max-budget flag.
// 0 (unbounded) is passed through as "0.0000" and left for the agent
// executable to interpret as no cap.
func budgetFlag(maxSpend float64) string {
	return strconv.FormatFloat(maxSpend, 'f', 4, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated, " + strconv.Itoa(len(s)-n) + " bytes omitted)"
}
