// Package suites runs external check suites as subprocesses and turns their
// outcomes into aggregation entries.
package suites

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brock-run/spec-driven-development/aggregation"
	"github.com/brock-run/spec-driven-development/validation"
)

// DefaultTimeout applies to suites that declare no timeout.
const DefaultTimeout = 300 * time.Second

// Groups used in the breakdown of suite entries.
const (
	GroupRequired = "required"
	GroupOptional = "optional"
)

const maxOutputSummary = 500

// ErrTimeout marks a suite killed because it ran past its timeout.
var ErrTimeout = errors.New("suite timed out")

// Suite is one external check.
type Suite struct {
	Name        string `yaml:"name"`
	Command     string `yaml:"command"`
	Description string `yaml:"description"`
	// Timeout is a duration string such as "120s".
	Timeout    string `yaml:"timeout"`
	Required   bool   `yaml:"required"`
	WorkingDir string `yaml:"working_dir"`
}

// TimeoutOr returns the suite's timeout, or def when none is set.
func (s Suite) TimeoutOr(def time.Duration) time.Duration {
	if s.Timeout == "" {
		return def
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

type suiteFile struct {
	Suites []Suite `yaml:"suites"`
}

// LoadFile reads suite definitions. A missing file is returned as an error
// matching fs.ErrNotExist.
func LoadFile(path string) ([]Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suites: %w", err)
	}
	suites, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return suites, nil
}

// Parse decodes and validates suite definitions.
func Parse(data []byte) ([]Suite, error) {
	var f suiteFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse suites: %w", err)
	}

	var errs []error
	seen := make(map[string]bool)
	for i, s := range f.Suites {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("suite %d: name is required", i+1))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("suite %q: duplicate name", s.Name))
		}
		seen[s.Name] = true
		if strings.TrimSpace(s.Command) == "" {
			errs = append(errs, fmt.Errorf("suite %q: command is required", s.Name))
		}
		if s.Timeout != "" {
			if d, err := time.ParseDuration(s.Timeout); err != nil || d <= 0 {
				errs = append(errs, fmt.Errorf("suite %q: invalid timeout %q", s.Name, s.Timeout))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return f.Suites, nil
}

// Select keeps required suites, and optional ones when includeOptional is set.
func Select(suites []Suite, includeOptional bool) []Suite {
	out := make([]Suite, 0, len(suites))
	for _, s := range suites {
		if s.Required || includeOptional {
			out = append(out, s)
		}
	}
	return out
}

// Result is the outcome of running one suite.
type Result struct {
	Name     string        `json:"name"`
	Command  string        `json:"command"`
	Required bool          `json:"required"`
	Passed   bool          `json:"passed"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
	// Err is set when the command could not run to completion.
	Err error `json:"-"`
}

// Summary describes why a failed suite failed.
func (r Result) Summary() string {
	if r.Passed {
		return ""
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	out := strings.TrimSpace(r.Stderr)
	if out == "" {
		out = strings.TrimSpace(r.Stdout)
	}
	if runes := []rune(out); len(runes) > maxOutputSummary {
		out = string(runes[:maxOutputSummary])
	}
	if out == "" {
		return fmt.Sprintf("exit code %d", r.ExitCode)
	}
	return fmt.Sprintf("exit code %d: %s", r.ExitCode, out)
}

// Entries converts suite results into aggregation entries. Optional suites
// never block.
func Entries(results []Result) []aggregation.Entry {
	entries := make([]aggregation.Entry, 0, len(results))
	for _, r := range results {
		var errs []string
		if !r.Passed {
			errs = append(errs, r.Summary())
		}
		group := GroupRequired
		if !r.Required {
			group = GroupOptional
		}
		entries = append(entries, aggregation.Entry{
			Result:   validation.FromFindings(r.Name, errs, nil),
			Group:    group,
			Optional: !r.Required,
			Duration: r.Duration,
		})
	}
	return entries
}
