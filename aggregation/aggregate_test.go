package aggregation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/brock-run/spec-driven-development/metadata"
	"github.com/brock-run/spec-driven-development/validation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func overviewMeta(docType metadata.DocumentType, domain string) *metadata.Metadata {
	return &metadata.Metadata{
		Template: metadata.Template{Name: "t", Type: docType, Domain: domain},
		Sections: []metadata.Section{{Name: "Overview", Required: true}},
	}
}

func TestAggregateEmpty(t *testing.T) {
	r, err := Aggregate(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, r.Total)
	assert.Equal(t, 0, r.Passed)
	assert.Equal(t, 0, r.Failed)
	assert.Empty(t, r.Entries)
	assert.Empty(t, r.GroupBreakdown)
	assert.False(t, r.Blocking())
	assert.Equal(t, 0.0, Summarize(r, DefaultWeights))
}

func TestAggregateIsolatesUnreadableDocument(t *testing.T) {
	meta := overviewMeta(metadata.DocumentTypeSpec, "api")
	items := []Item{
		{ID: "a.md", Text: "## Overview\n", Metadata: meta},
		{ID: "b.md", ReadErr: errors.New("input/output error"), Metadata: meta},
		{ID: "c.md", Text: "## Overview\n", Metadata: meta},
	}

	r, err := Aggregate(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, r.Entries, 3)

	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 2, r.Passed)
	assert.Equal(t, 1, r.Failed)

	results := r.Results()
	assert.Equal(t, "a.md", results[0].DocumentID)
	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed)
	require.Len(t, results[1].Errors, 1)
	assert.Contains(t, results[1].Errors[0], "document unreadable")
	assert.True(t, results[2].Passed)
}

func TestAggregateMalformedMetadataDoesNotAbort(t *testing.T) {
	items := []Item{
		{ID: "bad.md", Text: "## Overview", MetadataErr: &metadata.ConfigError{Problems: []string{"missing required key 'template'"}}},
		{ID: "good.md", Text: "## Overview", Metadata: overviewMeta(metadata.DocumentTypePlan, "")},
	}
	r, err := Aggregate(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Failed)

	bad, ok := r.Lookup("bad.md")
	require.True(t, ok)
	assert.NotEmpty(t, bad.Misconfigured)
}

func TestAggregatePreservesInputOrder(t *testing.T) {
	var items []Item
	for i := 0; i < 200; i++ {
		items = append(items, Item{
			ID:       fmt.Sprintf("doc-%03d.md", i),
			Text:     "## Overview",
			Metadata: overviewMeta(metadata.DocumentTypeSpec, ""),
		})
	}

	agg := &Aggregator{Workers: 8, Now: func() time.Time { return fixedNow }}
	first, err := agg.Aggregate(context.Background(), items)
	require.NoError(t, err)
	for i, res := range first.Results() {
		require.Equal(t, items[i].ID, res.DocumentID)
	}

	second, err := agg.Aggregate(context.Background(), items)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("reports differ (-first +second):\n%s", diff)
	}
}

func TestAggregateDuplicateIDsKept(t *testing.T) {
	meta := overviewMeta(metadata.DocumentTypeSpec, "")
	r, err := Aggregate(context.Background(), []Item{
		{ID: "same.md", Text: "## Overview", Metadata: meta},
		{ID: "same.md", Text: "", Metadata: meta},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Total)
	assert.True(t, r.Entries[0].Result.Passed)
	assert.False(t, r.Entries[1].Result.Passed)
}

func TestGroupBreakdownAndTiers(t *testing.T) {
	items := []Item{
		{ID: "api/spec.md", Text: "## Overview", Metadata: overviewMeta(metadata.DocumentTypeSpec, "api")},
		{ID: "api/plan.md", Text: "", Metadata: overviewMeta(metadata.DocumentTypePlan, "api")},
		{ID: "web/spec.md", Text: "## Overview", Metadata: overviewMeta(metadata.DocumentTypeSpec, "web"), Optional: true},
		{ID: "web/notes.md", Text: "", Optional: true, Group: "notes"},
	}

	agg := &Aggregator{Group: ByDomain, Now: func() time.Time { return fixedNow }}
	r, err := agg.Aggregate(context.Background(), items)
	require.NoError(t, err)

	want := map[string]Counts{
		"api":   {Total: 2, Passed: 1, Failed: 1},
		"web":   {Total: 1, Passed: 1},
		"notes": {Total: 1, Passed: 1},
	}
	if diff := cmp.Diff(want, r.GroupBreakdown); diff != "" {
		t.Errorf("group breakdown mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Counts{Total: 2, Passed: 1, Failed: 1}, r.Tiers.Required)
	assert.Equal(t, Counts{Total: 2, Passed: 2}, r.Tiers.Optional)
	assert.True(t, r.Blocking())
	assert.Equal(t, fixedNow, r.GeneratedAt)
}

func TestOptionalFailureDoesNotBlock(t *testing.T) {
	r := Build([]Entry{
		{Result: &validation.Result{DocumentID: "a", Passed: true}},
		{Result: &validation.Result{DocumentID: "b", Passed: false, Errors: []string{"x"}}, Optional: true},
	})
	assert.False(t, r.Blocking())
	assert.Equal(t, 1, r.Failed)
}

func TestAggregateCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := Aggregate(ctx, []Item{{ID: "a.md", Text: "x"}})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, r)
	assert.True(t, r.Incomplete)
	assert.Equal(t, 0, r.Total)
}

func TestAggregateCancelKeepsCompletedResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meta := overviewMeta(metadata.DocumentTypeSpec, "")
	items := []Item{
		{ID: "first.md", Text: "## Overview", Metadata: meta},
		{ID: "second.md", Text: "## Overview", Metadata: meta},
		{ID: "third.md", Text: "## Overview", Metadata: meta},
	}

	// The first evaluation cancels the batch; with one worker nothing else starts.
	agg := &Aggregator{
		Workers: 1,
		Group: func(id string, m *metadata.Metadata) string {
			if id == "first.md" {
				cancel()
			}
			return ByDocumentType(id, m)
		},
	}

	r, err := agg.Aggregate(ctx, items)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, r.Incomplete)
	require.Len(t, r.Entries, 1)
	assert.Equal(t, "first.md", r.Entries[0].Result.DocumentID)
	assert.True(t, r.Entries[0].Result.Passed)
}

func TestAggregateCancelAfterLastItemIsComplete(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meta := overviewMeta(metadata.DocumentTypeSpec, "")
	agg := &Aggregator{
		Workers: 1,
		Group: func(id string, m *metadata.Metadata) string {
			cancel()
			return ByDocumentType(id, m)
		},
	}

	r, err := agg.Aggregate(ctx, []Item{{ID: "only.md", Text: "## Overview", Metadata: meta}})
	require.NoError(t, err)
	assert.False(t, r.Incomplete)
	assert.Equal(t, 1, r.Passed)
}

func TestGroupFuncs(t *testing.T) {
	meta := &metadata.Metadata{Template: metadata.Template{Type: metadata.DocumentTypeTasks, Domain: "mobile", Audience: "developers"}}

	tests := []struct {
		name string
		fn   GroupFunc
		id   string
		meta *metadata.Metadata
		want string
	}{
		{"type", ByDocumentType, "x", meta, "tasks"},
		{"type nil", ByDocumentType, "x", nil, Unknown},
		{"domain", ByDomain, "x", meta, "mobile"},
		{"domain nil", ByDomain, "x", nil, Unknown},
		{"audience", ByAudience, "x", meta, "developers"},
		{"audience empty", ByAudience, "x", &metadata.Metadata{}, Unknown},
		{"directory", ByDirectory, "templates/api/spec.md", nil, "templates/api"},
		{"directory root", ByDirectory, "spec.md", nil, "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.id, tt.meta))
		})
	}

	_, ok := GroupFuncByName("domain")
	assert.True(t, ok)
	_, ok = GroupFuncByName("colour")
	assert.False(t, ok)
}
