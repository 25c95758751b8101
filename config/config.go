// Package config provides configuration loading and management for sddcheck.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/brock-run/spec-driven-development/aggregation"
	"github.com/brock-run/spec-driven-development/layout"
	"github.com/brock-run/spec-driven-development/report"
	"github.com/brock-run/spec-driven-development/source"
	"github.com/brock-run/spec-driven-development/suites"
)

// Config represents the complete sddcheck configuration
type Config struct {
	Templates TemplatesConfig `yaml:"templates"`
	Examples  ExamplesConfig  `yaml:"examples"`
	Journeys  JourneysConfig  `yaml:"journeys"`
	Suites    SuitesConfig    `yaml:"suites"`
	Community CommunityConfig `yaml:"community"`
	Report    ReportConfig    `yaml:"report"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Watch     WatchConfig     `yaml:"watch"`
	// Workers bounds concurrent validations (0 = GOMAXPROCS)
	Workers int `yaml:"workers"`
}

// TemplatesConfig configures template discovery and validation
type TemplatesConfig struct {
	// Dir is the templates directory
	Dir string `yaml:"dir"`
	// Pattern selects documents below Dir (doublestar syntax)
	Pattern string `yaml:"pattern"`
	// Skip lists file names that are never validated
	Skip []string `yaml:"skip"`
	// GroupBy is the breakdown key: type, domain, audience or directory
	GroupBy string `yaml:"group_by"`
	// DisableBuiltin stops layering the built-in rule sets under sidecar metadata
	DisableBuiltin bool `yaml:"disable_builtin"`
	// Index is where --generate-index writes the template index
	Index string `yaml:"index"`
}

// ExamplesConfig configures the examples tree check
type ExamplesConfig struct {
	Dir        string   `yaml:"dir"`
	Categories []string `yaml:"categories"`
}

// JourneysConfig configures user journey checks
type JourneysConfig struct {
	// File holds journey definitions (empty = built-in journeys)
	File string `yaml:"file"`
	// Root is the directory step files are relative to
	Root string `yaml:"root"`
}

// SuitesConfig configures external check suites
type SuitesConfig struct {
	File            string        `yaml:"file"`
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
	IncludeOptional bool          `yaml:"include_optional"`
}

// CommunityConfig configures community launch checks
type CommunityConfig struct {
	Root string `yaml:"root"`
	// Checks replaces the built-in path checks when set
	Checks []layout.PathCheck `yaml:"checks"`
	// Phrases replaces the built-in phrase checks when set
	Phrases []layout.PhraseCheck `yaml:"phrases"`
}

// ReportConfig configures persisted reports
type ReportConfig struct {
	Dir string `yaml:"dir"`
	// MetricsFile is a Prometheus textfile written after each run (empty = none)
	MetricsFile   string        `yaml:"metrics_file"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

// ScoringConfig configures the quality score
type ScoringConfig struct {
	Weights aggregation.Weights `yaml:"weights"`
	// MinScore fails the run when the quality score falls below it
	MinScore float64 `yaml:"min_score"`
}

// WatchConfig configures watch mode
type WatchConfig struct {
	Debounce   time.Duration `yaml:"debounce"`
	Extensions []string      `yaml:"extensions"`
	Exclude    []string      `yaml:"exclude"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	watch := source.DefaultWatchOptions()
	return &Config{
		Templates: TemplatesConfig{
			Dir:     "templates",
			Pattern: source.DefaultPattern,
			Skip:    append([]string(nil), source.DefaultSkip...),
			GroupBy: "type",
			Index:   "templates/index.json",
		},
		Examples: ExamplesConfig{
			Dir:        "examples",
			Categories: append([]string(nil), layout.DefaultCategories...),
		},
		Journeys: JourneysConfig{
			Root: ".",
		},
		Suites: SuitesConfig{
			File:           "sddcheck-suites.yaml",
			DefaultTimeout: suites.DefaultTimeout,
		},
		Community: CommunityConfig{
			Root: ".",
		},
		Report: ReportConfig{
			Dir:           "test-results",
			SlowThreshold: report.DefaultSlowThreshold,
		},
		Scoring: ScoringConfig{
			Weights: aggregation.DefaultWeights,
		},
		Watch: WatchConfig{
			Debounce:   watch.Debounce,
			Extensions: watch.Extensions,
			Exclude:    watch.Exclude,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	if c.Templates.Dir == "" {
		errs = append(errs, fmt.Errorf("templates.dir is required"))
	}
	if !doublestar.ValidatePattern(c.Templates.Pattern) {
		errs = append(errs, fmt.Errorf("templates.pattern %q is not a valid glob", c.Templates.Pattern))
	}
	if _, ok := aggregation.GroupFuncByName(c.Templates.GroupBy); !ok {
		errs = append(errs, fmt.Errorf("templates.group_by %q is not one of type, domain, audience, directory", c.Templates.GroupBy))
	}
	if err := c.Scoring.Weights.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scoring.weights: %w", err))
	}
	if c.Scoring.MinScore < 0 || c.Scoring.MinScore > 100 {
		errs = append(errs, fmt.Errorf("scoring.min_score must be between 0 and 100"))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative"))
	}
	if c.Suites.DefaultTimeout < 0 {
		errs = append(errs, fmt.Errorf("suites.default_timeout must not be negative"))
	}
	if c.Report.SlowThreshold < 0 {
		errs = append(errs, fmt.Errorf("report.slow_threshold must not be negative"))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative"))
	}
	return errors.Join(errs...)
}

// WatchOptions converts the watch section for source.NewWatcher.
func (c *Config) WatchOptions() source.WatchOptions {
	return source.WatchOptions{
		Debounce:   c.Watch.Debounce,
		Extensions: c.Watch.Extensions,
		Exclude:    c.Watch.Exclude,
	}
}

// CommunityChecks returns the configured path checks or the built-in ones.
func (c *Config) CommunityChecks() []layout.PathCheck {
	if len(c.Community.Checks) > 0 {
		return c.Community.Checks
	}
	return layout.DefaultCommunityChecks()
}

// CommunityPhrases returns the configured phrase checks or the built-in ones.
func (c *Config) CommunityPhrases() []layout.PhraseCheck {
	if len(c.Community.Phrases) > 0 {
		return c.Community.Phrases
	}
	return layout.DefaultCommunityPhrases()
}

// readFile decodes a YAML file without applying defaults, so it can be
// layered with Merge.
func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return config, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	file, err := readFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	config.Merge(file)
	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Templates
	t := other.Templates
	if t.Dir != "" {
		c.Templates.Dir = t.Dir
	}
	if t.Pattern != "" {
		c.Templates.Pattern = t.Pattern
	}
	if t.Skip != nil {
		c.Templates.Skip = t.Skip
	}
	if t.GroupBy != "" {
		c.Templates.GroupBy = t.GroupBy
	}
	if t.DisableBuiltin {
		c.Templates.DisableBuiltin = true
	}
	if t.Index != "" {
		c.Templates.Index = t.Index
	}

	// Examples
	if other.Examples.Dir != "" {
		c.Examples.Dir = other.Examples.Dir
	}
	if len(other.Examples.Categories) > 0 {
		c.Examples.Categories = other.Examples.Categories
	}

	// Journeys
	if other.Journeys.File != "" {
		c.Journeys.File = other.Journeys.File
	}
	if other.Journeys.Root != "" {
		c.Journeys.Root = other.Journeys.Root
	}

	// Suites
	if other.Suites.File != "" {
		c.Suites.File = other.Suites.File
	}
	if other.Suites.DefaultTimeout != 0 {
		c.Suites.DefaultTimeout = other.Suites.DefaultTimeout
	}
	if other.Suites.IncludeOptional {
		c.Suites.IncludeOptional = true
	}

	// Community
	if other.Community.Root != "" {
		c.Community.Root = other.Community.Root
	}
	if len(other.Community.Checks) > 0 {
		c.Community.Checks = other.Community.Checks
	}
	if len(other.Community.Phrases) > 0 {
		c.Community.Phrases = other.Community.Phrases
	}

	// Report
	if other.Report.Dir != "" {
		c.Report.Dir = other.Report.Dir
	}
	if other.Report.MetricsFile != "" {
		c.Report.MetricsFile = other.Report.MetricsFile
	}
	if other.Report.SlowThreshold != 0 {
		c.Report.SlowThreshold = other.Report.SlowThreshold
	}

	// Scoring: weights are replaced as a pair
	if other.Scoring.Weights != (aggregation.Weights{}) {
		c.Scoring.Weights = other.Scoring.Weights
	}
	if other.Scoring.MinScore != 0 {
		c.Scoring.MinScore = other.Scoring.MinScore
	}

	// Watch
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if len(other.Watch.Extensions) > 0 {
		c.Watch.Extensions = other.Watch.Extensions
	}
	if len(other.Watch.Exclude) > 0 {
		c.Watch.Exclude = other.Watch.Exclude
	}

	if other.Workers != 0 {
		c.Workers = other.Workers
	}
}
