package rulesets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brock-run/spec-driven-development/metadata"
	"github.com/brock-run/spec-driven-development/validation"
)

const goodSpec = `# Todo App Specification

## Overview

A small todo application.

## Functional Requirements

- FR-1.1 The system SHALL store todos.
- FR-1.2 The system SHALL list todos.
- FR-1.3 WHEN a todo is completed THEN the system SHALL mark it done.

## Technical Requirements

- TR-1.1 The API SHALL respond within 200ms.
- TR-1.2 Data SHALL persist across restarts.
`

const goodTasks = `# Tasks

- [ ] 1. Set up project
  - [ ] 1.1 Create repository
  - [ ] 1.2 Configure CI
  - _Requirements: FR-1.1_
`

func TestSpecRuleset(t *testing.T) {
	result := validation.Validate(goodSpec, For(metadata.DocumentTypeSpec))
	require.True(t, result.Passed, "errors: %v", result.Errors)
	assert.Empty(t, result.Warnings)

	bare := validation.Validate("## Overview\nNothing formal.", For(metadata.DocumentTypeSpec))
	assert.False(t, bare.Passed)
	joined := strings.Join(bare.Errors, "\n")
	assert.Contains(t, joined, "Missing document title")
	assert.Contains(t, joined, "Functional Requirements")
	assert.Contains(t, joined, "FR-X.X")
	assert.Contains(t, joined, "TR-X.X")
	assert.Len(t, bare.Warnings, 2, "SHALL count and EARS warnings")
}

func TestTasksRuleset(t *testing.T) {
	result := validation.Validate(goodTasks, For(metadata.DocumentTypeTasks))
	assert.True(t, result.Passed, "errors: %v", result.Errors)
	assert.Empty(t, result.Warnings)

	result = validation.Validate("# Tasks\n\nJust prose.", For(metadata.DocumentTypeTasks))
	assert.False(t, result.Passed)
	assert.Len(t, result.Errors, 2)
	assert.Len(t, result.Warnings, 1)
}

func TestPlanAndReadmeOnlyWarn(t *testing.T) {
	for _, dt := range []metadata.DocumentType{metadata.DocumentTypePlan, metadata.DocumentTypeReadme} {
		result := validation.Validate("", For(dt))
		assert.True(t, result.Passed, "%s rules are advisory", dt)
		assert.NotEmpty(t, result.Warnings)
	}
}

func TestForFile(t *testing.T) {
	meta, ok := ForFile("examples/greenfield/todo/README.md")
	require.True(t, ok)
	assert.Equal(t, metadata.DocumentTypeReadme, meta.Type())

	_, ok = ForFile("design.md")
	assert.False(t, ok)
}

func TestForReturnsIndependentCopies(t *testing.T) {
	a := For(metadata.DocumentTypeSpec)
	a.Rules = a.Rules[:1]
	b := For(metadata.DocumentTypeSpec)
	assert.Greater(t, len(b.Rules), 1)
}

func TestExamplesIndex(t *testing.T) {
	readme := "# Example Specifications and Workflows\n\n## Directory Structure\n\n## How to Use These Examples\n"
	assert.True(t, validation.Validate(readme, ExamplesIndex()).Passed)
	assert.False(t, validation.Validate("# Examples\n", ExamplesIndex()).Passed)
}

func TestPhrase(t *testing.T) {
	meta := &metadata.Metadata{Rules: []metadata.Rule{
		Phrase("Privacy & Analytics", false, metadata.SeverityError, "README missing privacy section"),
		Phrase("quick start (5 min)", true, metadata.SeverityWarning, ""),
	}}

	result := validation.Validate("## Privacy & Analytics\nSee the Quick Start (5 min) guide.", meta)
	assert.True(t, result.Passed)
	assert.Empty(t, result.Warnings)

	result = validation.Validate("## Privacy and Analytics", meta)
	assert.Equal(t, []string{"README missing privacy section"}, result.Errors)
	assert.Equal(t, []string{"Pattern for 'quick start (5 min)' not found"}, result.Warnings)
}
