package journeys

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

func TestDefaults(t *testing.T) {
	js := Defaults()
	require.Len(t, js, 5)

	var userTypes []string
	for _, j := range js {
		userTypes = append(userTypes, j.UserType)
	}
	assert.Equal(t, []string{"new_developer", "experienced_developer", "product_manager", "team_lead", "specialist"}, userTypes)
	assert.Equal(t, "Complete Onboarding", js[0].Name)
	assert.Len(t, js[0].Steps, 5)
	assert.Equal(t, "README.md", js[0].Steps[0].File)
}

func TestParseRejectsIncompleteJourneys(t *testing.T) {
	_, err := Parse([]byte(`
journeys:
  - name: Onboarding
    steps:
      - name: Landing
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_type is required")
	assert.Contains(t, err.Error(), "name and file are required")

	_, err = Parse([]byte("journeys: ["))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journeys.yaml")
	writeFile(t, filepath.Dir(path), "journeys.yaml", `
journeys:
  - user_type: reviewer
    name: Review
    steps:
      - name: Checklist
        file: docs/checklist.md
        required: [sign-off]
`)
	js, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, js, 1)
	assert.Equal(t, []string{"sign-off"}, js[0].Steps[0].Required)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestJourneyEvaluation(t *testing.T) {
	root := t.TempDir()
	padding := strings.Repeat("Lorem ipsum dolor sit amet. ", 10)

	writeFile(t, root, "docs/start.md", "# Getting Started\nYour FIRST SPEC, step by step.\n"+padding)
	writeFile(t, root, "docs/short.md", "first spec")
	writeFile(t, root, "docs/partial.md", "# Partial\nOnly the first spec.\n"+padding)
	writeFile(t, root, "docs/ok1.md", "first spec step by step "+padding)
	writeFile(t, root, "docs/ok2.md", "first spec step by step "+padding)
	writeFile(t, root, "docs/ok3.md", "first spec step by step "+padding)

	step := func(name, file string) Step {
		return Step{Name: name, File: file, Required: []string{"first spec", "step by step"}, Optional: []string{"video"}, Criteria: "Actionable first steps"}
	}
	js := []Journey{
		{
			UserType: "new_developer",
			Name:     "Onboarding",
			Steps: []Step{
				step("Start", "docs/start.md"),
				step("Short", "docs/short.md"),
				step("Partial", "docs/partial.md"),
				step("Missing", "docs/missing.md"),
			},
		},
		{
			UserType: "team_lead",
			Name:     "Rollout",
			Steps: []Step{
				step("One", "docs/ok1.md"),
				step("Two", "docs/ok2.md"),
				step("Three", "docs/ok3.md"),
				step("Four", "docs/start.md"),
				step("Five", "docs/short.md"),
			},
		},
	}

	r, err := aggregation.Aggregate(context.Background(), Items(root, js))
	require.NoError(t, err)
	assert.Equal(t, 9, r.Total)
	assert.Equal(t, aggregation.Counts{Total: 4, Passed: 1, Failed: 3}, r.GroupBreakdown["new_developer"])

	start, ok := r.Lookup("Onboarding / Start")
	require.True(t, ok)
	assert.True(t, start.Passed, "phrases match ignoring case: %v", start.Errors)
	assert.Equal(t, []string{`docs/start.md could mention "video"`}, start.Warnings)

	short, _ := r.Lookup("Onboarding / Short")
	assert.Contains(t, short.Errors, "docs/short.md is shorter than 200 characters")

	missing, _ := r.Lookup("Onboarding / Missing")
	assert.Contains(t, missing.Errors[0], "document unreadable")

	sums := Summaries(js, r)
	require.Len(t, sums, 2)

	assert.Equal(t, 1, sums[0].CompletedSteps)
	assert.Equal(t, 25.0, sums[0].SuccessRate)
	assert.False(t, sums[0].Succeeded)
	assert.Len(t, sums[0].Issues, 3)
	assert.Contains(t, sums[0].Recommendations, "Improve docs/short.md for Actionable first steps")

	assert.Equal(t, 4, sums[1].CompletedSteps)
	assert.Equal(t, 80.0, sums[1].SuccessRate)
	assert.True(t, sums[1].Succeeded)
}
