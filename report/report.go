// Package report turns an aggregation report into the persisted JSON
// document and its companion metrics.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brock-run/spec-driven-development/aggregation"
	"github.com/brock-run/spec-driven-development/validation"
)

// DefaultSlowThreshold marks a unit as slow in recommendations.
const DefaultSlowThreshold = 60 * time.Second

const (
	maxErrorSummary = 500
	maxIssueError   = 200

	// Fewer optional results than this earns a recommendation to run more.
	minOptionalResults = 2
)

// Options tune the persisted document.
type Options struct {
	// Name prefixes the output files. Defaults to "validation".
	Name string
	// RunID identifies the run. A random UUID is used when empty.
	RunID string
	// Duration is the wall-clock time of the whole run.
	Duration time.Duration
	// SlowThreshold defaults to DefaultSlowThreshold.
	SlowThreshold time.Duration
}

// Summary is the headline block of a report.
type Summary struct {
	RunID        string    `json:"run_id"`
	Name         string    `json:"name"`
	GeneratedAt  time.Time `json:"generated_at"`
	Duration     float64   `json:"total_duration"`
	Total        int       `json:"total"`
	Passed       int       `json:"passed"`
	Failed       int       `json:"failed"`
	Warnings     int       `json:"warnings"`
	PassRate     float64   `json:"pass_rate"`
	QualityScore float64   `json:"quality_score"`
	Incomplete   bool      `json:"incomplete,omitempty"`
}

// TierSummary holds the counts of one tier with its pass rate as a percentage.
type TierSummary struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"pass_rate"`
}

// TierBreakdown splits the summary by tier.
type TierBreakdown struct {
	Required TierSummary `json:"required"`
	Optional TierSummary `json:"optional"`
}

// DetailedResult is one unit in the persisted document.
type DetailedResult struct {
	ID            string   `json:"id"`
	DocumentType  string   `json:"document_type,omitempty"`
	Group         string   `json:"group"`
	Required      bool     `json:"required"`
	Passed        bool     `json:"passed"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	Misconfigured []string `json:"misconfigured,omitempty"`
	Duration      float64  `json:"duration,omitempty"`
	ErrorSummary  string   `json:"error_summary,omitempty"`
}

// CriticalIssue is a failed required unit.
type CriticalIssue struct {
	Unit  string `json:"unit"`
	Error string `json:"error"`
}

// Document is the persisted report.
type Document struct {
	Summary         Summary                `json:"summary"`
	TierBreakdown   TierBreakdown          `json:"tier_breakdown"`
	GroupBreakdown  map[string]TierSummary `json:"group_breakdown"`
	DetailedResults []DetailedResult       `json:"detailed_results"`
	CriticalIssues  []CriticalIssue        `json:"critical_issues"`
	Recommendations []string               `json:"recommendations"`
}

// New builds the persisted document for r scored at score.
func New(r *aggregation.Report, score float64, opts Options) *Document {
	if opts.Name == "" {
		opts.Name = "validation"
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = DefaultSlowThreshold
	}

	doc := &Document{
		Summary: Summary{
			RunID:        opts.RunID,
			Name:         opts.Name,
			GeneratedAt:  r.GeneratedAt,
			Duration:     opts.Duration.Seconds(),
			Total:        r.Total,
			Passed:       r.Passed,
			Failed:       r.Failed,
			Warnings:     r.Warnings(),
			PassRate:     percent(r.Passed, r.Total),
			QualityScore: score,
			Incomplete:   r.Incomplete,
		},
		TierBreakdown: TierBreakdown{
			Required: tierSummary(r.Tiers.Required),
			Optional: tierSummary(r.Tiers.Optional),
		},
		GroupBreakdown:  make(map[string]TierSummary, len(r.GroupBreakdown)),
		DetailedResults: make([]DetailedResult, 0, len(r.Entries)),
		CriticalIssues:  []CriticalIssue{},
	}

	for group, c := range r.GroupBreakdown {
		doc.GroupBreakdown[group] = tierSummary(c)
	}

	for _, e := range r.Entries {
		res := e.Result
		dr := DetailedResult{
			ID:            res.DocumentID,
			DocumentType:  string(res.DocumentType),
			Group:         e.Group,
			Required:      !e.Optional,
			Passed:        res.Passed,
			Errors:        res.Errors,
			Warnings:      res.Warnings,
			Misconfigured: res.Misconfigured,
			Duration:      e.Duration.Seconds(),
		}
		if !res.Passed {
			dr.ErrorSummary = truncate(strings.Join(failures(res), "; "), maxErrorSummary)
		}
		doc.DetailedResults = append(doc.DetailedResults, dr)

		if !res.Passed && !e.Optional {
			doc.CriticalIssues = append(doc.CriticalIssues, CriticalIssue{
				Unit:  res.DocumentID,
				Error: truncate(firstFailure(res), maxIssueError),
			})
		}
	}

	doc.Recommendations = recommendations(r, score, opts.SlowThreshold)
	return doc
}

func recommendations(r *aggregation.Report, score float64, slow time.Duration) []string {
	recs := []string{}
	if r.Total == 0 {
		return append(recs, "No documents were validated, check the configured paths and patterns")
	}

	if n := r.Tiers.Required.Failed; n > 0 {
		recs = append(recs, fmt.Sprintf("Fix %d critical failures before deployment", n))
	}

	var slowCount, misconfigured, unfilled int
	for _, e := range r.Entries {
		if e.Duration > slow {
			slowCount++
		}
		if len(e.Result.Misconfigured) > 0 {
			misconfigured++
		}
		for _, w := range e.Result.Warnings {
			if strings.HasPrefix(w, "Required placeholder") {
				unfilled++
				break
			}
		}
	}
	if misconfigured > 0 {
		recs = append(recs, fmt.Sprintf("Repair the metadata of %d documents with misconfigured rules", misconfigured))
	}
	if slowCount > 0 {
		recs = append(recs, fmt.Sprintf("Optimize %d slow-running checks", slowCount))
	}
	if unfilled > 0 {
		recs = append(recs, fmt.Sprintf("Review %d documents with missing placeholders", unfilled))
	}
	if r.Tiers.Optional.Total < minOptionalResults {
		recs = append(recs, "Consider running optional checks for comprehensive validation")
	}

	switch {
	case score < 80:
		recs = append(recs, "Quality below 80%, review and improve failing areas")
	case score < 90:
		recs = append(recs, "Good quality, consider addressing optional improvements")
	}
	return recs
}

func tierSummary(c aggregation.Counts) TierSummary {
	return TierSummary{
		Total:    c.Total,
		Passed:   c.Passed,
		Failed:   c.Failed,
		PassRate: percent(c.Passed, c.Total),
	}
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func failures(res *validation.Result) []string {
	out := make([]string, 0, len(res.Misconfigured)+len(res.Errors))
	out = append(out, res.Misconfigured...)
	return append(out, res.Errors...)
}

func firstFailure(res *validation.Result) string {
	if f := failures(res); len(f) > 0 {
		return f[0]
	}
	return "failed"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
