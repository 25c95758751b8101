package layout

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brock-run/spec-driven-development/aggregation"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

const examplesReadme = `# Example Specifications and Workflows

## Directory Structure

## How to Use These Examples
`

const todoSpec = `# Todo

## Overview

## Functional Requirements
- FR-1.1 The system SHALL add todos.

## Technical Requirements
- TR-1.1 The API SHALL be REST.
`

func TestCheckExamples(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", examplesReadme)
	for _, c := range []string{"greenfield", "legacy-integration", "feature-addition"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, c), 0755))
	}
	writeFile(t, root, "greenfield/todo/README.md", "## Project Context\n")
	writeFile(t, root, "greenfield/todo/spec.md", todoSpec)
	writeFile(t, root, "greenfield/todo/tasks.md", "- [ ] 1. Build\n")
	writeFile(t, root, "feature-addition/search/README.md", "# Search\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0755))

	ex, err := CheckExamples(root, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"feature-addition/search", "greenfield/todo"}, ex.Projects)

	require.Len(t, ex.Entries, 3)
	rootEntry := ex.Entries[0].Result
	assert.False(t, rootEntry.Passed)
	assert.Equal(t, []string{"Missing required directory: workflows"}, rootEntry.Errors)

	search := ex.Entries[1].Result
	assert.Equal(t, "feature-addition/search", search.DocumentID)
	assert.Equal(t, []string{"Missing required file spec.md"}, search.Errors)
	assert.True(t, ex.Entries[2].Result.Passed)

	var ids []string
	for _, it := range ex.Items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{
		"examples/README.md",
		"feature-addition/search/README.md",
		"greenfield/todo/README.md",
		"greenfield/todo/spec.md",
		"greenfield/todo/tasks.md",
	}, ids)

	entries, err := (&aggregation.Aggregator{}).Evaluate(context.Background(), ex.Items)
	require.NoError(t, err)
	r := aggregation.Build(append(ex.Entries, entries...))

	readme, _ := r.Lookup("examples/README.md")
	assert.True(t, readme.Passed)
	spec, _ := r.Lookup("greenfield/todo/spec.md")
	assert.True(t, spec.Passed, "errors: %v", spec.Errors)
	tasks, _ := r.Lookup("greenfield/todo/tasks.md")
	assert.False(t, tasks.Passed, "tasks without requirement references fail")
	assert.Equal(t, "greenfield", r.Entries[len(ex.Entries)+3].Group)
}

func TestCheckExamplesMissingRoot(t *testing.T) {
	_, err := CheckExamples(filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, err)
}

func TestCheckExamplesMissingReadme(t *testing.T) {
	root := t.TempDir()
	ex, err := CheckExamples(root, []string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Missing README.md in examples directory"}, ex.Entries[0].Result.Errors)
	assert.Empty(t, ex.Items)
}

func TestCheckPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "CONTRIBUTING.md", "# Contributing")
	writeFile(t, root, "analytics/config.json", `{"enabled": false}`)
	writeFile(t, root, "analytics/broken.json", `{"enabled": `)

	entries := CheckPaths(root, []PathCheck{
		{Path: "CONTRIBUTING.md", Kind: KindFile, Description: "Contributing guidelines"},
		{Path: "CODE_OF_CONDUCT.md", Kind: KindFile, Description: "Code of conduct", Group: "github"},
		{Path: "analytics", Kind: KindDir},
		{Path: "analytics/config.json", Kind: KindJSON},
		{Path: "analytics/broken.json", Kind: KindJSON, Optional: true},
		{Path: "analytics", Kind: KindFile},
	})
	require.Len(t, entries, 6)

	assert.True(t, entries[0].Result.Passed)
	assert.Equal(t, Group, entries[0].Group)
	assert.False(t, entries[1].Result.Passed)
	assert.Equal(t, "github", entries[1].Group)
	assert.Contains(t, entries[1].Result.Errors[0], "Code of conduct (CODE_OF_CONDUCT.md): missing")
	assert.True(t, entries[2].Result.Passed)
	assert.True(t, entries[3].Result.Passed)
	assert.False(t, entries[4].Result.Passed)
	assert.True(t, entries[4].Optional)
	assert.Contains(t, entries[4].Result.Errors[0], "invalid JSON")
	assert.False(t, entries[5].Result.Passed)

	assert.Len(t, DefaultCommunityChecks(), 14)
}

func TestPhraseItems(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "## Contributing & Community\nJoin us.\n")

	items := PhraseItems(root, append(DefaultCommunityPhrases(), PhraseCheck{Path: "MISSING.md", Phrases: []string{"x"}}))
	require.Len(t, items, 2)

	r, err := aggregation.Aggregate(context.Background(), items)
	require.NoError(t, err)

	readme, _ := r.Lookup("README.md")
	require.Len(t, readme.Errors, 1)
	assert.True(t, strings.HasSuffix(readme.Errors[0], "Privacy & Analytics"))

	missing, _ := r.Lookup("MISSING.md")
	assert.Contains(t, missing.Errors[0], "document unreadable")
}
