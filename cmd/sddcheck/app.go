package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/brock-run/spec-driven-development/aggregation"
	"github.com/brock-run/spec-driven-development/config"
	"github.com/brock-run/spec-driven-development/journeys"
	"github.com/brock-run/spec-driven-development/layout"
	"github.com/brock-run/spec-driven-development/report"
	"github.com/brock-run/spec-driven-development/source"
	"github.com/brock-run/spec-driven-development/suites"
)

// errChecksFailed is returned when a run finished but did not pass.
var errChecksFailed = errors.New("checks failed")

// Run is one completed check run.
type Run struct {
	Name     string
	Report   *aggregation.Report
	Score    float64
	Document *report.Document
	// Files are the report files written for the run.
	Files []string
	// Warning is shown when the run was skipped.
	Warning string
	// Journeys is set for journey runs.
	Journeys []journeys.Summary
}

// Failed reports whether the run blocks or scores below minScore.
func (r *Run) Failed(minScore float64) bool {
	return r.Report.Blocking() || r.Score < minScore
}

// App wires configuration to the checkers.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger, now: time.Now}
}

func (a *App) aggregator() (*aggregation.Aggregator, error) {
	group, ok := aggregation.GroupFuncByName(a.cfg.Templates.GroupBy)
	if !ok {
		return nil, fmt.Errorf("unknown grouping %q", a.cfg.Templates.GroupBy)
	}
	return &aggregation.Aggregator{Group: group, Workers: a.cfg.Workers, Now: a.now}, nil
}

func (a *App) templateLoader() *source.Loader {
	return &source.Loader{
		Root:    a.cfg.Templates.Dir,
		HTML:    source.NewHTMLConverter(),
		Builtin: !a.cfg.Templates.DisableBuiltin,
	}
}

// Templates validates every template document and optionally regenerates
// the template index.
func (a *App) Templates(ctx context.Context, generateIndex bool) (*Run, error) {
	start := a.now()
	paths, err := source.Discover(a.cfg.Templates.Dir, a.cfg.Templates.Pattern, a.cfg.Templates.Skip)
	if err != nil {
		return nil, fmt.Errorf("discover templates: %w", err)
	}
	a.logger.Info("Validating templates", "dir", a.cfg.Templates.Dir, "count", len(paths))

	agg, err := a.aggregator()
	if err != nil {
		return nil, err
	}
	r, err := agg.Aggregate(ctx, a.templateLoader().Items(paths))
	if err != nil {
		a.logger.Warn("Template validation interrupted", "completed", r.Total, "error", err)
	}

	if generateIndex {
		if _, ierr := a.Index(); ierr != nil {
			return nil, ierr
		}
	}
	return a.finish("template-validation", r, start, err)
}

// Index writes the template index and returns its path.
func (a *App) Index() (string, error) {
	entries, err := source.BuildIndex(a.cfg.Templates.Dir, a.cfg.Templates.Pattern)
	if err != nil {
		return "", fmt.Errorf("build index: %w", err)
	}
	if err := source.WriteIndex(a.cfg.Templates.Index, entries); err != nil {
		return "", err
	}
	a.logger.Info("Wrote template index", "path", a.cfg.Templates.Index, "templates", len(entries))
	return a.cfg.Templates.Index, nil
}

// Examples checks the examples tree and validates every example document.
func (a *App) Examples(ctx context.Context) (*Run, error) {
	start := a.now()
	ex, err := layout.CheckExamples(a.cfg.Examples.Dir, a.cfg.Examples.Categories)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Validating examples", "dir", a.cfg.Examples.Dir, "projects", len(ex.Projects))

	agg := &aggregation.Aggregator{Workers: a.cfg.Workers, Now: a.now}
	entries, err := agg.Evaluate(ctx, ex.Items)
	r := agg.Build(append(ex.Entries, entries...))
	r.Incomplete = err != nil
	return a.finish("example-validation", r, start, err)
}

// Journeys evaluates the configured user journeys.
func (a *App) Journeys(ctx context.Context) (*Run, error) {
	start := a.now()
	js := journeys.Defaults()
	if a.cfg.Journeys.File != "" {
		var err error
		if js, err = journeys.LoadFile(a.cfg.Journeys.File); err != nil {
			return nil, err
		}
	}

	agg := &aggregation.Aggregator{Workers: a.cfg.Workers, Now: a.now}
	r, err := agg.Aggregate(ctx, journeys.Items(a.cfg.Journeys.Root, js))
	run, ferr := a.finish("user-journey", r, start, err)
	if run != nil {
		run.Journeys = journeys.Summaries(js, r)
	}
	return run, ferr
}

// Community checks the files and README sections a community launch needs.
func (a *App) Community(ctx context.Context) (*Run, error) {
	start := a.now()
	root := a.cfg.Community.Root
	entries := layout.CheckPaths(root, a.cfg.CommunityChecks())

	agg := &aggregation.Aggregator{Workers: a.cfg.Workers, Now: a.now}
	phraseEntries, err := agg.Evaluate(ctx, layout.PhraseItems(root, a.cfg.CommunityPhrases()))
	r := agg.Build(append(entries, phraseEntries...))
	r.Incomplete = err != nil
	return a.finish("community-launch", r, start, err)
}

// Suites runs the external check suites.
func (a *App) Suites(ctx context.Context, includeOptional bool) (*Run, error) {
	start := a.now()
	runner := suites.NewRunner(".", a.workers(), a.logger).WithDefaultTimeout(a.cfg.Suites.DefaultTimeout)
	out, err := runner.RunFile(ctx, a.cfg.Suites.File, includeOptional || a.cfg.Suites.IncludeOptional)
	if out == nil {
		return nil, err
	}

	agg := &aggregation.Aggregator{Now: a.now}
	r := agg.Build(suites.Entries(out.Results))
	r.Incomplete = err != nil
	run, ferr := a.finish("comprehensive-test", r, start, err)
	if run != nil {
		run.Warning = out.Warning
	}
	return run, ferr
}

// All runs every check in turn and a combined report over all of them.
func (a *App) All(ctx context.Context, includeOptional bool) ([]*Run, error) {
	start := a.now()
	steps := []func(context.Context) (*Run, error){
		func(ctx context.Context) (*Run, error) { return a.Templates(ctx, false) },
		a.Examples,
		a.Journeys,
		a.Community,
		func(ctx context.Context) (*Run, error) { return a.Suites(ctx, includeOptional) },
	}

	var runs []*Run
	var entries []aggregation.Entry
	for _, step := range steps {
		run, err := step(ctx)
		if run != nil {
			runs = append(runs, run)
			entries = append(entries, prefixed(run)...)
		}
		if err != nil {
			if ctx.Err() != nil {
				return runs, err
			}
			a.logger.Error("Check run failed", "error", err)
			pterm.Error.Printf("%v\n", err)
		}
	}

	combined := (&aggregation.Aggregator{Now: a.now}).Build(entries)
	all, err := a.finish("all", combined, start, nil)
	if all != nil {
		runs = append(runs, all)
	}
	return runs, err
}

// prefixed regroups a run's entries under the run name for the combined report.
func prefixed(run *Run) []aggregation.Entry {
	out := make([]aggregation.Entry, len(run.Report.Entries))
	for i, e := range run.Report.Entries {
		e.Group = run.Name + "/" + e.Group
		out[i] = e
	}
	return out
}

// finish scores r and persists the report and metrics.
// runErr is an interruption from the run itself; the partial report is
// still written before it is returned.
func (a *App) finish(name string, r *aggregation.Report, start time.Time, runErr error) (*Run, error) {
	score := aggregation.Summarize(r, a.cfg.Scoring.Weights)
	doc := report.New(r, score, report.Options{
		Name:          name,
		Duration:      a.now().Sub(start),
		SlowThreshold: a.cfg.Report.SlowThreshold,
	})

	run := &Run{Name: name, Report: r, Score: score, Document: doc}
	files, err := report.Write(a.cfg.Report.Dir, doc)
	if err != nil {
		return nil, fmt.Errorf("write %s report: %w", name, err)
	}
	run.Files = files

	if a.cfg.Report.MetricsFile != "" {
		if err := report.WriteMetrics(a.cfg.Report.MetricsFile, r, score); err != nil {
			return nil, fmt.Errorf("write metrics: %w", err)
		}
	}

	a.logger.Info("Check run finished",
		"name", name,
		"run_id", doc.Summary.RunID,
		"total", r.Total,
		"failed", r.Failed,
		"score", score)
	return run, runErr
}

func (a *App) workers() int {
	if a.cfg.Workers > 0 {
		return a.cfg.Workers
	}
	return 1
}

// Revalidate validates the templates affected by changed paths and returns
// their report. Changed sidecar metadata revalidates its document.
func (a *App) Revalidate(ctx context.Context, changed []string) (*aggregation.Report, error) {
	paths, err := source.Discover(a.cfg.Templates.Dir, a.cfg.Templates.Pattern, a.cfg.Templates.Skip)
	if err != nil {
		return nil, err
	}
	targets := affected(paths, changed)
	if len(targets) == 0 {
		return nil, nil
	}
	agg, err := a.aggregator()
	if err != nil {
		return nil, err
	}
	return agg.Aggregate(ctx, a.templateLoader().Items(targets))
}

// affected returns the documents among paths that changed themselves or
// whose sidecar metadata changed.
func affected(paths, changed []string) []string {
	set := make(map[string]bool, len(changed))
	for _, c := range changed {
		set[c] = true
	}
	var out []string
	for _, p := range paths {
		if set[p] || set[source.MetaPath(p)] {
			out = append(out, p)
		}
	}
	return out
}

// printRun renders a run summary to the terminal.
func printRun(run *Run) {
	d := run.Document
	pterm.DefaultSection.Printf("%s (%s)", run.Name, d.Summary.RunID)
	if run.Warning != "" {
		pterm.Warning.Println(run.Warning)
	}

	pterm.Printf("Units: %d  Passed: %s  Failed: %s  Warnings: %s\n",
		d.Summary.Total,
		pterm.Green(d.Summary.Passed),
		pterm.Red(d.Summary.Failed),
		pterm.Yellow(d.Summary.Warnings))
	pterm.Printf("Pass rate: %.1f%%  Quality score: %s\n", d.Summary.PassRate, pterm.LightCyan(fmt.Sprintf("%.1f", d.Summary.QualityScore)))

	if len(d.GroupBreakdown) > 0 {
		groups := make([]string, 0, len(d.GroupBreakdown))
		for g := range d.GroupBreakdown {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		data := pterm.TableData{{"Group", "Total", "Passed", "Failed", "Pass rate"}}
		for _, g := range groups {
			s := d.GroupBreakdown[g]
			data = append(data, []string{g, fmt.Sprint(s.Total), fmt.Sprint(s.Passed), fmt.Sprint(s.Failed), fmt.Sprintf("%.1f%%", s.PassRate)})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}

	for _, res := range d.DetailedResults {
		if res.Passed {
			continue
		}
		problems := make([]string, 0, len(res.Misconfigured)+len(res.Errors))
		problems = append(problems, res.Misconfigured...)
		problems = append(problems, res.Errors...)
		pterm.Error.Printf("%s: %s\n", res.ID, strings.Join(problems, "; "))
	}

	for _, j := range run.Journeys {
		if j.Succeeded {
			pterm.Success.Printf("%s: %d/%d steps (%.0f%%)\n", j.Journey, j.CompletedSteps, j.TotalSteps, j.SuccessRate)
		} else {
			pterm.Warning.Printf("%s: %d/%d steps (%.0f%%)\n", j.Journey, j.CompletedSteps, j.TotalSteps, j.SuccessRate)
		}
	}

	for _, rec := range d.Recommendations {
		pterm.Info.Println(rec)
	}
	if d.Summary.Incomplete {
		pterm.Warning.Println("Run was interrupted; report is incomplete")
	}
	for _, f := range run.Files {
		pterm.Printf("Report: %s\n", f)
	}
}

// printResults renders individual results in watch mode.
func printResults(r *aggregation.Report) {
	for _, res := range r.Results() {
		switch {
		case !res.Passed:
			pterm.Error.Printf("%s\n%s", res.DocumentID, res.FormatFeedback())
		case len(res.Warnings) > 0:
			pterm.Warning.Printf("%s: %s\n", res.DocumentID, strings.Join(res.Warnings, "; "))
		default:
			pterm.Success.Printf("%s\n", res.DocumentID)
		}
	}
}
