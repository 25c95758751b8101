package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/brock-run/spec-driven-development/aggregation"
	"github.com/brock-run/spec-driven-development/metadata"
	"github.com/brock-run/spec-driven-development/rulesets"
	"github.com/brock-run/spec-driven-development/validation"
)

// PathKind says what a checked path must be.
type PathKind string

// Path kinds.
const (
	KindFile PathKind = "file"
	KindDir  PathKind = "dir"
	KindJSON PathKind = "json"
)

// PathCheck requires a path below the root to exist.
type PathCheck struct {
	Path        string   `yaml:"path"`
	Kind        PathKind `yaml:"kind"`
	Description string   `yaml:"description"`
	Group       string   `yaml:"group"`
	Optional    bool     `yaml:"optional"`
}

// PhraseCheck requires a file to contain each phrase.
type PhraseCheck struct {
	Path     string   `yaml:"path"`
	Phrases  []string `yaml:"phrases"`
	Group    string   `yaml:"group"`
	Optional bool     `yaml:"optional"`
}

// DefaultCommunityChecks lists the files a community launch depends on.
func DefaultCommunityChecks() []PathCheck {
	return []PathCheck{
		{Path: ".github/DISCUSSION_TEMPLATE/general.yml", Kind: KindFile, Description: "General discussion template", Group: "github"},
		{Path: ".github/DISCUSSION_TEMPLATE/show-and-tell.yml", Kind: KindFile, Description: "Show and tell template", Group: "github"},
		{Path: ".github/ISSUE_TEMPLATE/feedback.md", Kind: KindFile, Description: "Feedback issue template", Group: "github"},
		{Path: ".github/workflows/community-metrics.yml", Kind: KindFile, Description: "Community metrics workflow", Group: "github"},
		{Path: "CODE_OF_CONDUCT.md", Kind: KindFile, Description: "Code of conduct", Group: "github"},
		{Path: "CONTRIBUTING.md", Kind: KindFile, Description: "Contributing guidelines", Group: "github"},
		{Path: "analytics", Kind: KindDir, Description: "Analytics directory", Group: "analytics"},
		{Path: "analytics/config.json", Kind: KindJSON, Description: "Analytics configuration", Group: "analytics"},
		{Path: "analytics/privacy-policy.md", Kind: KindFile, Description: "Privacy policy", Group: "analytics"},
		{Path: "analytics/dashboard.md", Kind: KindFile, Description: "Community dashboard", Group: "analytics"},
		{Path: "docs/community", Kind: KindDir, Description: "Community docs directory", Group: "docs"},
		{Path: "docs/community/feedback-process.md", Kind: KindFile, Description: "Feedback process documentation", Group: "docs"},
		{Path: "docs/community/launch-checklist.md", Kind: KindFile, Description: "Launch checklist", Group: "docs"},
		{Path: "docs/community/survey-templates.md", Kind: KindFile, Description: "Survey templates", Group: "docs"},
	}
}

// DefaultCommunityPhrases lists the sections the top-level README must carry.
func DefaultCommunityPhrases() []PhraseCheck {
	return []PhraseCheck{
		{Path: "README.md", Phrases: []string{"Contributing & Community", "Privacy & Analytics"}, Group: "content"},
	}
}

// CheckPaths evaluates each check against root, one entry per check in order.
func CheckPaths(root string, checks []PathCheck) []aggregation.Entry {
	entries := make([]aggregation.Entry, 0, len(checks))
	for _, c := range checks {
		var errs []string
		if err := checkPath(filepath.Join(root, filepath.FromSlash(c.Path)), c.Kind); err != nil {
			label := c.Description
			if label == "" {
				label = c.Path
			}
			errs = append(errs, fmt.Sprintf("%s (%s): %v", label, c.Path, err))
		}
		group := c.Group
		if group == "" {
			group = Group
		}
		entries = append(entries, aggregation.Entry{
			Result:   validation.FromFindings(c.Path, errs, nil),
			Group:    group,
			Optional: c.Optional,
		})
	}
	return entries
}

func checkPath(p string, kind PathKind) error {
	fi, err := os.Stat(p)
	if err != nil {
		return errors.New("missing")
	}
	switch kind {
	case KindDir:
		if !fi.IsDir() {
			return errors.New("not a directory")
		}
	case KindJSON:
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		if fi.IsDir() {
			return errors.New("is a directory, want a file")
		}
	}
	return nil
}

// PhraseItems turns phrase checks into items whose rules require each
// phrase verbatim. Missing files become unreadable items.
func PhraseItems(root string, checks []PhraseCheck) []aggregation.Item {
	items := make([]aggregation.Item, 0, len(checks))
	for _, c := range checks {
		meta := &metadata.Metadata{Template: metadata.Template{Name: "phrases:" + c.Path}}
		for _, phrase := range c.Phrases {
			meta.Rules = append(meta.Rules, rulesets.Phrase(phrase, false, metadata.SeverityError,
				fmt.Sprintf("%s missing section: %s", c.Path, phrase)))
		}

		item := aggregation.Item{ID: c.Path, Metadata: meta, Group: c.Group, Optional: c.Optional}
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(c.Path)))
		if err != nil {
			item.ReadErr = err
		} else {
			item.Text = string(data)
		}
		if item.Group == "" {
			item.Group = Group
		}
		items = append(items, item)
	}
	return items
}
