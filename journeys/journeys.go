// Package journeys checks that the guides a reader follows from each entry
// point exist and cover what that reader needs.
package journeys

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/brock-run/spec-driven-development/aggregation"
	"github.com/brock-run/spec-driven-development/metadata"
	"github.com/brock-run/spec-driven-development/rulesets"
)

//go:embed default_journeys.yaml
var defaultJourneys []byte

// MinLength is the number of characters below which a guide is too thin to
// complete a step.
const MinLength = 200

// SuccessThreshold is the step completion percentage at which a journey succeeds.
const SuccessThreshold = 80.0

// Step is one document a reader visits.
type Step struct {
	Name     string   `yaml:"name"`
	File     string   `yaml:"file"`
	Required []string `yaml:"required"`
	Optional []string `yaml:"optional"`
	Criteria string   `yaml:"criteria"`
}

// Journey is the path a type of reader takes through the documentation.
type Journey struct {
	UserType string `yaml:"user_type"`
	Name     string `yaml:"name"`
	Steps    []Step `yaml:"steps"`
}

type journeyFile struct {
	Journeys []Journey `yaml:"journeys"`
}

// Defaults returns the built-in journeys.
func Defaults() []Journey {
	js, err := Parse(defaultJourneys)
	if err != nil {
		panic(fmt.Sprintf("built-in journeys: %v", err))
	}
	return js
}

// LoadFile reads journey definitions from a YAML file.
func LoadFile(path string) ([]Journey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read journeys: %w", err)
	}
	js, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return js, nil
}

// Parse decodes and validates journey definitions.
func Parse(data []byte) ([]Journey, error) {
	var f journeyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse journeys: %w", err)
	}

	var errs []error
	for i, j := range f.Journeys {
		if j.Name == "" {
			errs = append(errs, fmt.Errorf("journey %d: name is required", i+1))
		}
		if j.UserType == "" {
			errs = append(errs, fmt.Errorf("journey %q: user_type is required", j.Name))
		}
		if len(j.Steps) == 0 {
			errs = append(errs, fmt.Errorf("journey %q: at least one step is required", j.Name))
		}
		for k, s := range j.Steps {
			if s.Name == "" || s.File == "" {
				errs = append(errs, fmt.Errorf("journey %q step %d: name and file are required", j.Name, k+1))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return f.Journeys, nil
}

// StepID identifies a step in reports.
func StepID(j Journey, s Step) string {
	return j.Name + " / " + s.Name
}

// Items turns every step into an item grouped by user type. Required phrases
// are errors, optional phrases warnings, both matched ignoring case.
func Items(root string, journeys []Journey) []aggregation.Item {
	var items []aggregation.Item
	for _, j := range journeys {
		for _, s := range j.Steps {
			item := aggregation.Item{
				ID:       StepID(j, s),
				Metadata: stepMetadata(s),
				Group:    j.UserType,
			}
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(s.File)))
			if err != nil {
				item.ReadErr = fmt.Errorf("%s: %w", s.File, err)
			} else {
				item.Text = string(data)
			}
			items = append(items, item)
		}
	}
	return items
}

func stepMetadata(s Step) *metadata.Metadata {
	meta := &metadata.Metadata{
		Template: metadata.Template{Name: s.Name, Type: metadata.DocumentTypeReadme, Description: s.Criteria},
	}
	for _, p := range s.Required {
		meta.Rules = append(meta.Rules, rulesets.Phrase(p, true, metadata.SeverityError,
			fmt.Sprintf("%s does not mention %q", s.File, p)))
	}
	for _, p := range s.Optional {
		meta.Rules = append(meta.Rules, rulesets.Phrase(p, true, metadata.SeverityWarning,
			fmt.Sprintf("%s could mention %q", s.File, p)))
	}
	meta.Rules = append(meta.Rules, metadata.MustPatternRule(metadata.KindFormatPattern, "length",
		fmt.Sprintf(`(?s)\A.{%d}`, MinLength), metadata.SeverityError,
		fmt.Sprintf("%s is shorter than %d characters", s.File, MinLength), 1))
	return meta
}

// Summary is the outcome of one journey.
type Summary struct {
	UserType        string   `json:"user_type"`
	Journey         string   `json:"journey"`
	TotalSteps      int      `json:"total_steps"`
	CompletedSteps  int      `json:"completed_steps"`
	SuccessRate     float64  `json:"success_rate"`
	Succeeded       bool     `json:"succeeded"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// Summaries reports per-journey completion from a report built over Items.
// Steps missing from the report count as not completed.
func Summaries(journeys []Journey, r *aggregation.Report) []Summary {
	out := make([]Summary, 0, len(journeys))
	for _, j := range journeys {
		s := Summary{
			UserType:        j.UserType,
			Journey:         j.Name,
			TotalSteps:      len(j.Steps),
			Issues:          []string{},
			Recommendations: []string{},
		}
		for _, step := range j.Steps {
			if res, ok := r.Lookup(StepID(j, step)); ok && res.Passed {
				s.CompletedSteps++
				continue
			}
			s.Issues = append(s.Issues, "Failed step: "+step.Name)
			s.Recommendations = append(s.Recommendations,
				fmt.Sprintf("Improve %s for %s", step.File, step.Criteria))
		}
		if s.TotalSteps > 0 {
			s.SuccessRate = float64(s.CompletedSteps) / float64(s.TotalSteps) * 100
		}
		s.Succeeded = s.SuccessRate >= SuccessThreshold
		out = append(out, s)
	}
	return out
}
