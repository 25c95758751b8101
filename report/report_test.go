package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brock-run/spec-driven-development/aggregation"
	"github.com/brock-run/spec-driven-development/validation"
)

var generated = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func sampleReport() *aggregation.Report {
	agg := &aggregation.Aggregator{Now: func() time.Time { return generated }}
	return agg.Build([]aggregation.Entry{
		{
			Result: &validation.Result{DocumentID: "templates/api/spec.md", DocumentType: "spec", Passed: true,
				Errors: []string{}, Warnings: []string{"Required placeholder '[feature_name]' not found"}},
			Group: "spec",
		},
		{
			Result: &validation.Result{DocumentID: "templates/api/plan.md", DocumentType: "plan", Passed: false,
				Errors: []string{"Required section 'Architecture' not found"}, Warnings: []string{}},
			Group: "plan",
		},
		{
			Result:   &validation.Result{DocumentID: "suite:links", Passed: true, Errors: []string{}, Warnings: []string{}},
			Group:    "optional",
			Optional: true,
			Duration: 90 * time.Second,
		},
	})
}

func TestNewDocument(t *testing.T) {
	r := sampleReport()
	score := aggregation.Summarize(r, aggregation.DefaultWeights)
	doc := New(r, score, Options{Name: "templates", RunID: "run-1"})

	assert.Equal(t, "run-1", doc.Summary.RunID)
	assert.Equal(t, 3, doc.Summary.Total)
	assert.Equal(t, 2, doc.Summary.Passed)
	assert.Equal(t, 1, doc.Summary.Warnings)
	assert.InDelta(t, 66.666, doc.Summary.PassRate, 0.01)
	assert.InDelta(t, 60.0, doc.Summary.QualityScore, 1e-9)
	assert.Equal(t, generated, doc.Summary.GeneratedAt)

	assert.Equal(t, TierSummary{Total: 2, Passed: 1, Failed: 1, PassRate: 50}, doc.TierBreakdown.Required)
	assert.Equal(t, 1, doc.TierBreakdown.Optional.Total)

	require.Len(t, doc.DetailedResults, 3)
	assert.Equal(t, "templates/api/spec.md", doc.DetailedResults[0].ID)
	assert.True(t, doc.DetailedResults[0].Required)
	assert.False(t, doc.DetailedResults[2].Required)
	assert.Equal(t, 90.0, doc.DetailedResults[2].Duration)
	assert.Contains(t, doc.DetailedResults[1].ErrorSummary, "Architecture")

	require.Len(t, doc.CriticalIssues, 1)
	assert.Equal(t, "templates/api/plan.md", doc.CriticalIssues[0].Unit)

	recs := strings.Join(doc.Recommendations, "\n")
	assert.Contains(t, recs, "Fix 1 critical failures")
	assert.Contains(t, recs, "Optimize 1 slow-running checks")
	assert.Contains(t, recs, "missing placeholders")
	assert.Contains(t, recs, "Quality below 80%")
	assert.Contains(t, recs, "Consider running optional checks", "a single optional result is too few")
}

func TestNewDocumentDefaults(t *testing.T) {
	doc := New(aggregation.Build(nil), 0, Options{})
	assert.Equal(t, "validation", doc.Summary.Name)
	assert.Len(t, doc.Summary.RunID, 36)
	assert.Empty(t, doc.DetailedResults)
	assert.NotNil(t, doc.CriticalIssues)
	assert.Len(t, doc.Recommendations, 1)
}

func TestRecommendationsForGoodRun(t *testing.T) {
	r := aggregation.Build([]aggregation.Entry{
		{Result: &validation.Result{DocumentID: "a", Passed: true}},
		{Result: &validation.Result{DocumentID: "b", Passed: true}, Optional: true},
		{Result: &validation.Result{DocumentID: "c", Passed: true}, Optional: true},
	})
	doc := New(r, 100, Options{})
	assert.Empty(t, doc.Recommendations)

	doc = New(r, 85, Options{})
	assert.Equal(t, []string{"Good quality, consider addressing optional improvements"}, doc.Recommendations)
}

func TestPersistedKeys(t *testing.T) {
	doc := New(sampleReport(), 60, Options{Name: "templates"})
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"summary", "tier_breakdown", "group_breakdown", "detailed_results", "critical_issues", "recommendations"} {
		assert.Contains(t, raw, key)
	}
}

func TestWriteAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test-results")
	doc := New(sampleReport(), 60, Options{Name: "templates"})

	paths, err := Write(dir, doc)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "templates-report.json"), paths[0])
	assert.Equal(t, filepath.Join(dir, "templates-summary.json"), paths[1])

	loaded, err := Load(paths[0])
	require.NoError(t, err)
	assert.Equal(t, doc.Summary.RunID, loaded.Summary.RunID)
	assert.Len(t, loaded.DetailedResults, 3)

	var summary Summary
	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 3, summary.Total)
}

func TestWriteMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics", "sddcheck.prom")
	require.NoError(t, WriteMetrics(path, sampleReport(), 60))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, `sddcheck_units{outcome="passed"} 2`)
	assert.Contains(t, text, `sddcheck_units{outcome="failed"} 1`)
	assert.Contains(t, text, `sddcheck_tier_units{outcome="failed",tier="required"} 1`)
	assert.Contains(t, text, `sddcheck_group_units{group="plan",outcome="failed"} 1`)
	assert.Contains(t, text, "sddcheck_quality_score 60")
	assert.Contains(t, text, "sddcheck_warnings 1")
}
