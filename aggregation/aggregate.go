// Package aggregation runs the validator over a batch of documents and
// assembles the results into a single report.
package aggregation

import (
	"context"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brock-run/spec-driven-development/metadata"
	"github.com/brock-run/spec-driven-development/validation"
)

// Item is one document to validate. Text is already loaded; a failed read is
// carried in ReadErr and a malformed sidecar in MetadataErr.
type Item struct {
	ID          string
	Text        string
	ReadErr     error
	Metadata    *metadata.Metadata
	MetadataErr error
	// Optional places the item in the optional scoring tier.
	Optional bool
	// Group overrides the aggregator's GroupFunc for this item.
	Group string
}

// Entry is one evaluated unit of a report.
type Entry struct {
	Result   *validation.Result `json:"result"`
	Group    string             `json:"group"`
	Optional bool               `json:"optional"`
	// Duration is set for units that wrap an external run.
	Duration time.Duration `json:"duration,omitempty"`
}

// Counts tallies units.
type Counts struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

func (c *Counts) add(passed bool) {
	c.Total++
	if passed {
		c.Passed++
	} else {
		c.Failed++
	}
}

// PassRate returns Passed/Total, or 0 for an empty tally.
func (c Counts) PassRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Passed) / float64(c.Total)
}

// Tiers splits counts between required and optional units.
type Tiers struct {
	Required Counts `json:"required"`
	Optional Counts `json:"optional"`
}

// Report is the read-only summary of one run. Entries follow input order.
type Report struct {
	Total          int               `json:"total"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Entries        []Entry           `json:"results"`
	GroupBreakdown map[string]Counts `json:"group_breakdown"`
	Tiers          Tiers             `json:"tiers"`
	GeneratedAt    time.Time         `json:"generated_at"`
	// Incomplete is set when the run was cancelled before every item finished.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Results returns the validation results in input order.
func (r *Report) Results() []*validation.Result {
	out := make([]*validation.Result, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Result
	}
	return out
}

// Lookup returns the first result with the given id.
func (r *Report) Lookup(id string) (*validation.Result, bool) {
	for _, e := range r.Entries {
		if e.Result.DocumentID == id {
			return e.Result, true
		}
	}
	return nil, false
}

// Warnings counts warnings across every result.
func (r *Report) Warnings() int {
	n := 0
	for _, e := range r.Entries {
		n += len(e.Result.Warnings)
	}
	return n
}

// Blocking reports whether any required unit failed. Warnings and optional
// failures never block.
func (r *Report) Blocking() bool {
	return r.Tiers.Required.Failed > 0
}

// Aggregator validates items and builds reports.
type Aggregator struct {
	// Group assigns the breakdown key. Defaults to ByDocumentType.
	Group GroupFunc
	// Workers bounds concurrent validations. Defaults to GOMAXPROCS.
	Workers int
	// Now stamps GeneratedAt. Defaults to time.Now.
	Now func() time.Time
}

// Evaluate validates every item concurrently and returns entries in input
// order. If ctx is cancelled before every item finished, the entries
// completed so far are returned, still in input order, together with the
// context error.
func (a *Aggregator) Evaluate(ctx context.Context, items []Item) ([]Entry, error) {
	entries := make([]Entry, len(items))
	done := make([]bool, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())

	for i := range items {
		i := i // per-iteration copy (go 1.21 loop semantics)
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries[i] = a.evaluate(items[i])
			done[i] = true
			return nil
		})
	}

	err := g.Wait()
	if !slices.Contains(done, false) {
		return entries, nil
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		completed := make([]Entry, 0, len(items))
		for i, ok := range done {
			if ok {
				completed = append(completed, entries[i])
			}
		}
		return completed, err
	}
	return entries, nil
}

func (a *Aggregator) evaluate(it Item) Entry {
	var res *validation.Result
	switch {
	case it.ReadErr != nil:
		res = validation.Unreadable(it.ID, it.ReadErr)
	case it.MetadataErr != nil:
		res = validation.Invalid(it.ID, it.MetadataErr)
	default:
		res = validation.ValidateDocument(it.ID, it.Text, it.Metadata)
	}

	group := it.Group
	if group == "" {
		group = a.groupFunc()(it.ID, it.Metadata)
	}
	return Entry{Result: res, Group: group, Optional: it.Optional}
}

// Build assembles a report from entries that were already evaluated.
func (a *Aggregator) Build(entries []Entry) *Report {
	r := &Report{
		Entries:        make([]Entry, len(entries)),
		GroupBreakdown: make(map[string]Counts),
		GeneratedAt:    a.now(),
	}
	copy(r.Entries, entries)

	for _, e := range entries {
		passed := e.Result.Passed
		r.Total++
		if passed {
			r.Passed++
		}

		c := r.GroupBreakdown[e.Group]
		c.add(passed)
		r.GroupBreakdown[e.Group] = c

		if e.Optional {
			r.Tiers.Optional.add(passed)
		} else {
			r.Tiers.Required.add(passed)
		}
	}
	r.Failed = r.Total - r.Passed
	return r
}

// Aggregate evaluates items and builds the report. On cancellation the
// report holds the completed entries, is marked Incomplete and is returned
// with the context error.
func (a *Aggregator) Aggregate(ctx context.Context, items []Item) (*Report, error) {
	entries, err := a.Evaluate(ctx, items)
	r := a.Build(entries)
	if err != nil {
		r.Incomplete = true
		return r, err
	}
	return r, nil
}

// Build assembles a report with a default Aggregator.
func Build(entries []Entry) *Report {
	return (&Aggregator{}).Build(entries)
}

// Aggregate validates items with a default Aggregator.
func Aggregate(ctx context.Context, items []Item) (*Report, error) {
	return (&Aggregator{}).Aggregate(ctx, items)
}

func (a *Aggregator) workers() int {
	if a.Workers > 0 {
		return a.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (a *Aggregator) groupFunc() GroupFunc {
	if a.Group != nil {
		return a.Group
	}
	return ByDocumentType
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
