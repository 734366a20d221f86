package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/gridpilot/internal/browser"
	"github.com/harrison/gridpilot/internal/executor"
)

// BrowserConfig configures the Chrome session used when the run drives a
// real browser.
type BrowserConfig struct {
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	UserAgent      string `yaml:"user_agent"`
	// ChromePath overrides the Chrome binary chromedp would find on its own.
	ChromePath string `yaml:"chrome_path"`
}

// ReasoningConfig configures the claude CLI behind the planner, cell chooser
// and evaluator roles.
type ReasoningConfig struct {
	ClaudePath string        `yaml:"claude_path"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`

	// RequestsPerMinute caps model calls across all roles (0 = unlimited)
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// JournalConfig controls where the replay journal lives between runs.
type JournalConfig struct {
	// Persist loads the journal before a run and appends to it afterwards
	Persist    bool   `yaml:"persist"`
	DBPath     string `yaml:"db_path"`
	ExportPath string `yaml:"export_path"`
}

// Config represents gridpilot configuration options
type Config struct {
	// GridSize is the number of rows and columns laid over a screenshot
	GridSize int `yaml:"grid_size"`

	// ConfidenceThreshold is the chooser confidence that stops refinement
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// MaxRefinementDepth caps how many times a cell is subdivided
	MaxRefinementDepth int `yaml:"max_refinement_depth"`

	// StepTimeout bounds a single attempt (0 = no timeout)
	StepTimeout time.Duration `yaml:"step_timeout"`

	// MaxRetries is the retry budget for steps that do not set their own
	MaxRetries int `yaml:"max_retries"`

	// MaxConcurrency is the maximum number of steps in flight (0 = unlimited)
	MaxConcurrency int `yaml:"max_concurrency"`

	Headless    bool `yaml:"headless"`
	ReplayCache bool `yaml:"replay_cache"`

	// RunTimeout bounds the whole run (0 = no timeout)
	RunTimeout time.Duration `yaml:"run_timeout"`

	// DriverErrorThreshold is the number of consecutive browser failures,
	// across as many steps, that aborts the run (0 = never)
	DriverErrorThreshold int `yaml:"driver_error_threshold"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs will be written
	LogDir string `yaml:"log_dir"`

	// EvidenceDir receives screenshots, one subdirectory per run
	EvidenceDir string `yaml:"evidence_dir"`

	Browser   BrowserConfig   `yaml:"browser"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Journal   JournalConfig   `yaml:"journal"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	exec := executor.DefaultConfig()
	return &Config{
		GridSize:             exec.GridSize,
		ConfidenceThreshold:  exec.ConfidenceThreshold,
		MaxRefinementDepth:   exec.MaxRefinementDepth,
		StepTimeout:          exec.StepTimeout,
		MaxRetries:           exec.MaxRetries,
		MaxConcurrency:       exec.MaxConcurrency,
		Headless:             exec.Headless,
		ReplayCache:          exec.ReplayCache,
		RunTimeout:           exec.RunTimeout,
		DriverErrorThreshold: exec.DriverErrorThreshold,
		LogLevel:             "info",
		LogDir:               filepath.Join(DirName, "logs"),
		EvidenceDir:          filepath.Join(DirName, "evidence"),
		Browser: BrowserConfig{
			ViewportWidth:  1280,
			ViewportHeight: 800,
		},
		Reasoning: ReasoningConfig{
			ClaudePath:        "claude",
			Timeout:           2 * time.Minute,
			RequestsPerMinute: 30,
			Burst:             2,
		},
		Journal: JournalConfig{
			Persist: true,
			DBPath:  filepath.Join(DirName, "journal.db"),
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// Keys present in the file replace the defaults; absent keys keep them.
// Unknown keys are rejected so typos do not pass silently.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigFromDir loads configuration from .gridpilot/config.yaml in the specified directory
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, DirName, "config.yaml"))
}

// FlagOverrides carries CLI flag values. Nil fields were not set on the
// command line and leave the configuration alone.
type FlagOverrides struct {
	GridSize             *int
	ConfidenceThreshold  *float64
	MaxRefinementDepth   *int
	StepTimeout          *time.Duration
	MaxRetries           *int
	MaxConcurrency       *int
	Headless             *bool
	ReplayCache          *bool
	RunTimeout           *time.Duration
	DriverErrorThreshold *int
	LogLevel             *string
	LogDir               *string
	EvidenceDir          *string
	ChromePath           *string
	Model                *string
	JournalPersist       *bool
	JournalDBPath        *string
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values.
func (c *Config) MergeWithFlags(f FlagOverrides) {
	setInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setDur := func(dst *time.Duration, v *time.Duration) {
		if v != nil {
			*dst = *v
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}

	setInt(&c.GridSize, f.GridSize)
	if f.ConfidenceThreshold != nil {
		c.ConfidenceThreshold = *f.ConfidenceThreshold
	}
	setInt(&c.MaxRefinementDepth, f.MaxRefinementDepth)
	setDur(&c.StepTimeout, f.StepTimeout)
	setInt(&c.MaxRetries, f.MaxRetries)
	setInt(&c.MaxConcurrency, f.MaxConcurrency)
	setBool(&c.Headless, f.Headless)
	setBool(&c.ReplayCache, f.ReplayCache)
	setDur(&c.RunTimeout, f.RunTimeout)
	setInt(&c.DriverErrorThreshold, f.DriverErrorThreshold)
	setStr(&c.LogLevel, f.LogLevel)
	setStr(&c.LogDir, f.LogDir)
	setStr(&c.EvidenceDir, f.EvidenceDir)
	setStr(&c.Browser.ChromePath, f.ChromePath)
	setStr(&c.Reasoning.Model, f.Model)
	setBool(&c.Journal.Persist, f.JournalPersist)
	setStr(&c.Journal.DBPath, f.JournalDBPath)
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	// Run settings share their checks with the executor.
	if err := c.ToExecutorConfig().Validate(); err != nil {
		return err
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Browser.ViewportWidth < 0 || c.Browser.ViewportHeight < 0 {
		return fmt.Errorf("browser viewport must not be negative, got %dx%d", c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}

	if c.Reasoning.RequestsPerMinute < 0 {
		return fmt.Errorf("reasoning.requests_per_minute must be >= 0, got %d", c.Reasoning.RequestsPerMinute)
	}
	if c.Reasoning.Burst < 0 {
		return fmt.Errorf("reasoning.burst must be >= 0, got %d", c.Reasoning.Burst)
	}
	if c.Reasoning.Timeout < 0 {
		return fmt.Errorf("reasoning.timeout must be >= 0, got %v", c.Reasoning.Timeout)
	}

	if c.Journal.Persist && c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path cannot be empty when journal.persist is enabled")
	}

	return nil
}

// ToExecutorConfig returns the subset of settings a run needs.
func (c *Config) ToExecutorConfig() executor.Config {
	return executor.Config{
		GridSize:             c.GridSize,
		ConfidenceThreshold:  c.ConfidenceThreshold,
		MaxRefinementDepth:   c.MaxRefinementDepth,
		StepTimeout:          c.StepTimeout,
		MaxRetries:           c.MaxRetries,
		Headless:             c.Headless,
		ReplayCache:          c.ReplayCache,
		MaxConcurrency:       c.MaxConcurrency,
		RunTimeout:           c.RunTimeout,
		DriverErrorThreshold: c.DriverErrorThreshold,
		Browser: browser.ChromeOptions{
			Headless:       c.Headless,
			ViewportWidth:  c.Browser.ViewportWidth,
			ViewportHeight: c.Browser.ViewportHeight,
			UserAgent:      c.Browser.UserAgent,
			ExecPath:       c.Browser.ChromePath,
		},
	}
}
