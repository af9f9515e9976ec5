// Package config provides configuration loading for the autofix orchestrator.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration tree, loaded by LoadWithFile and
// validated before any side effect runs.
type Config struct {
	Host       HostConfig       `koanf:"host"`
	Tracker    TrackerConfig    `koanf:"tracker"`
	Exceptions *ExceptionConfig `koanf:"exceptions"`
	Worktree   WorktreeConfig   `koanf:"worktree"`
	Checks     ChecksConfig     `koanf:"checks"`
	Logging    LoggingConfig    `koanf:"logging"`
	AI         AIConfig         `koanf:"ai"`
}

// HostConfig configures the code-hosting API client (pkg/host).
type HostConfig struct {
	Token         Secret `koanf:"token"`
	Owner         string `koanf:"owner"`
	Repo          string `koanf:"repo"`
	DefaultBranch string `koanf:"defaultBranch"`
	AutoFixLabel  string `koanf:"autoFixLabel"`
	SkipLabel     string `koanf:"skipLabel"`
	APIBaseURL    string `koanf:"apiBaseUrl"`
}

// TrackerConfig configures the defect tracker client (pkg/tracker).
type TrackerConfig struct {
	Token         Secret   `koanf:"token"`
	WorkspaceID   string   `koanf:"workspaceId"`
	ProjectIDs    []string `koanf:"projectIds"`
	TriageSection string   `koanf:"triageSection"`
	DoneSection   string   `koanf:"doneSection"`
	SyncedTag     string   `koanf:"syncedTag"`
}

// ExceptionConfig configures the optional exception-tracker adapter (pkg/exceptions).
type ExceptionConfig struct {
	DSN           string `koanf:"dsn"`
	Organization  string `koanf:"organization"`
	Project       string `koanf:"project"`
	WebhookSecret Secret `koanf:"webhookSecret"`
}

// WorktreeConfig configures the Worktree Manager.
type WorktreeConfig struct {
	BaseDir            string `koanf:"baseDir"`
	MaxConcurrent      int    `koanf:"maxConcurrent"`
	AutoCleanupMinutes int    `koanf:"autoCleanupMinutes"`
	Prefix             string `koanf:"prefix"`
}

// ChecksConfig configures the verifier commands run during the checks stage.
type ChecksConfig struct {
	TestCommand      string   `koanf:"testCommand"`
	TypeCheckCommand string   `koanf:"typeCheckCommand"`
	LintCommand      string   `koanf:"lintCommand"`
	TestTimeout      Duration `koanf:"testTimeout"`
	TypeCheckTimeout Duration `koanf:"typeCheckTimeout"`
	LintTimeout      Duration `koanf:"lintTimeout"`
	MaxRetries       int      `koanf:"maxRetries"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Pretty   bool   `koanf:"pretty"`
	FilePath string `koanf:"filePath"`
	Redact   bool   `koanf:"redact"`
}

// AIConfig configures the Budget Tracker and fixing-agent adapter.
type AIConfig struct {
	MaxBudgetPerIssue   float64 `koanf:"maxBudgetPerIssue"`
	MaxBudgetPerSession float64 `koanf:"maxBudgetPerSession"`
	PreferredModel      string  `koanf:"preferredModel"`
	FallbackModel       string  `koanf:"fallbackModel"`
}

// Validate aggregates every field-level problem into a single ConfigError,
// rather than failing on the first one, so operators see every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Host.Owner == "" {
		errs = append(errs, "host.owner is required")
	}
	if c.Host.Repo == "" {
		errs = append(errs, "host.repo is required")
	}
	if !c.Host.Token.IsSet() {
		errs = append(errs, "host.token is required")
	}

	if !c.Tracker.Token.IsSet() {
		errs = append(errs, "tracker.token is required")
	}
	if c.Tracker.WorkspaceID == "" {
		errs = append(errs, "tracker.workspaceId is required")
	}

	if c.Exceptions != nil {
		if c.Exceptions.DSN == "" {
			errs = append(errs, "exceptions.dsn is required when exceptions is configured")
		}
	}

	if c.Worktree.BaseDir == "" {
		errs = append(errs, "worktree.baseDir is required")
	}
	if c.Worktree.MaxConcurrent <= 0 {
		errs = append(errs, "worktree.maxConcurrent must be > 0")
	}
	if c.Worktree.AutoCleanupMinutes <= 0 {
		errs = append(errs, "worktree.autoCleanupMinutes must be > 0")
	}

	if c.Checks.MaxRetries < 0 {
		errs = append(errs, "checks.maxRetries must be >= 0")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		errs = append(errs, fmt.Sprintf("logging.level invalid: %q", c.Logging.Level))
	}

	if c.AI.MaxBudgetPerIssue < 0 {
		errs = append(errs, "ai.maxBudgetPerIssue must be >= 0")
	}
	if c.AI.MaxBudgetPerSession < 0 {
		errs = append(errs, "ai.maxBudgetPerSession must be >= 0")
	}
	if c.AI.PreferredModel == "" {
		errs = append(errs, "ai.preferredModel is required")
	}
	if c.AI.FallbackModel == "" {
		errs = append(errs, "ai.fallbackModel is required")
	}

	if len(errs) > 0 {
		return &ConfigError{Problems: errs}
	}
	return nil
}

// ConfigError aggregates every validation problem found in one pass.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("%d configuration problem(s):", len(e.Problems))
	for _, p := range e.Problems {
		msg += "\n  - " + p
	}
	return msg
}

// applyDefaults fills in zero-valued optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Worktree.MaxConcurrent == 0 {
		cfg.Worktree.MaxConcurrent = 3
	}
	if cfg.Worktree.AutoCleanupMinutes == 0 {
		cfg.Worktree.AutoCleanupMinutes = 60
	}
	if cfg.Worktree.Prefix == "" {
		cfg.Worktree.Prefix = "autofix-"
	}
	if cfg.Checks.MaxRetries == 0 {
		cfg.Checks.MaxRetries = 3
	}
	if cfg.Checks.TestTimeout == 0 {
		cfg.Checks.TestTimeout = Duration(5 * time.Minute)
	}
	if cfg.Checks.TypeCheckTimeout == 0 {
		cfg.Checks.TypeCheckTimeout = Duration(5 * time.Minute)
	}
	if cfg.Checks.LintTimeout == 0 {
		cfg.Checks.LintTimeout = Duration(2 * time.Minute)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.AI.PreferredModel == "" {
		cfg.AI.PreferredModel = "claude-sonnet-4-5-20250929"
	}
	if cfg.AI.FallbackModel == "" {
		cfg.AI.FallbackModel = "claude-haiku-4-5-20250929"
	}
	if cfg.AI.MaxBudgetPerIssue == 0 {
		cfg.AI.MaxBudgetPerIssue = 2.0
	}
	if cfg.AI.MaxBudgetPerSession == 0 {
		cfg.AI.MaxBudgetPerSession = 25.0
	}
}
