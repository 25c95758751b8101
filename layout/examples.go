// Package layout checks that directory trees have the shape the project
// conventions expect: the examples tree with its categories and projects,
// and the files a community launch depends on.
package layout

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/brock-run/spec-driven-development/aggregation"
	"github.com/brock-run/spec-driven-development/rulesets"
	"github.com/brock-run/spec-driven-development/source"
	"github.com/brock-run/spec-driven-development/validation"
)

// Group is the breakdown key of structural findings.
const Group = "layout"

// DefaultCategories are the directories every examples tree must have.
var DefaultCategories = []string{"greenfield", "legacy-integration", "feature-addition", "workflows"}

var (
	requiredProjectFiles = []string{"README.md", "spec.md"}
	optionalProjectFiles = []string{"plan.md", "tasks.md"}
)

// Examples is the outcome of inspecting an examples tree.
type Examples struct {
	// Projects are the example projects found, as category/project.
	Projects []string
	// Entries are the structural findings, already evaluated.
	Entries []aggregation.Entry
	// Items are the documents to validate against the built-in rule sets.
	Items []aggregation.Item
}

// CheckExamples inspects the examples tree at root. Missing category
// directories, a missing root README and missing required project files are
// reported as failed entries; every document that exists becomes an item.
// Only a missing root is returned as an error.
func CheckExamples(root string, categories []string) (*Examples, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("examples directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("examples directory %s is not a directory", root)
	}
	if categories == nil {
		categories = DefaultCategories
	}

	out := &Examples{}
	loader := &source.Loader{Root: root, ByFileName: true}

	var rootErrs []string
	for _, c := range categories {
		if fi, err := os.Stat(filepath.Join(root, c)); err != nil || !fi.IsDir() {
			rootErrs = append(rootErrs, fmt.Sprintf("Missing required directory: %s", c))
		}
	}
	if _, err := os.Stat(filepath.Join(root, "README.md")); err != nil {
		rootErrs = append(rootErrs, "Missing README.md in examples directory")
	} else {
		doc := loader.Load("README.md")
		item := doc.Item()
		item.ID = "examples/README.md"
		item.Metadata = rulesets.ExamplesIndex()
		item.Group = Group
		out.Items = append(out.Items, item)
	}
	out.Entries = append(out.Entries, aggregation.Entry{
		Result: validation.FromFindings("examples", rootErrs, nil),
		Group:  Group,
	})

	projects, err := findProjects(root)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		out.Projects = append(out.Projects, p)
		category := strings.SplitN(p, "/", 2)[0]

		var missing []string
		for _, name := range requiredProjectFiles {
			rel := path.Join(p, name)
			if !isFile(filepath.Join(root, filepath.FromSlash(rel))) {
				missing = append(missing, fmt.Sprintf("Missing required file %s", name))
				continue
			}
			out.Items = append(out.Items, projectItem(loader, rel, category))
		}
		for _, name := range optionalProjectFiles {
			rel := path.Join(p, name)
			if isFile(filepath.Join(root, filepath.FromSlash(rel))) {
				out.Items = append(out.Items, projectItem(loader, rel, category))
			}
		}
		out.Entries = append(out.Entries, aggregation.Entry{
			Result: validation.FromFindings(p, missing, nil),
			Group:  Group,
		})
	}
	return out, nil
}

func projectItem(loader *source.Loader, rel, category string) aggregation.Item {
	item := loader.Load(rel).Item()
	item.Group = category
	return item
}

// findProjects lists every <category>/<project> directory below root.
func findProjects(root string) ([]string, error) {
	categories, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read examples directory: %w", err)
	}

	var projects []string
	for _, c := range categories {
		if !c.IsDir() || ignoredDir(c.Name()) {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(root, c.Name()))
		if err != nil {
			return nil, fmt.Errorf("read category %s: %w", c.Name(), err)
		}
		for _, p := range entries {
			if p.IsDir() && !ignoredDir(p.Name()) {
				projects = append(projects, c.Name()+"/"+p.Name())
			}
		}
	}
	return projects, nil
}

func ignoredDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__pycache__"
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
