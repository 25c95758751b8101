package suites

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of running a suites file.
type Outcome struct {
	Results []Result
	// Skipped is set when there was no suites file to run.
	Skipped bool
	Warning string
}

// Runner executes suites below a root directory.
type Runner struct {
	root           string
	workers        int
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewRunner creates a Runner rooted at root. Commands run in root unless a
// suite names its own working directory. workers <= 0 runs suites one at a
// time.
func NewRunner(root string, workers int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		root:           root,
		workers:        workers,
		defaultTimeout: DefaultTimeout,
		logger:         logger,
	}
}

// WithDefaultTimeout sets the timeout for suites that declare none.
func (r *Runner) WithDefaultTimeout(d time.Duration) *Runner {
	if d > 0 {
		r.defaultTimeout = d
	}
	return r
}

// RunFile loads suites from path and runs the selected ones. A missing file
// yields a skipped outcome with a warning rather than an error.
func (r *Runner) RunFile(ctx context.Context, path string, includeOptional bool) (*Outcome, error) {
	suites, err := LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("No suites file found, skipping", "path", path)
			return &Outcome{
				Skipped: true,
				Warning: fmt.Sprintf("No suites file found at %s. Suite run skipped.", path),
			}, nil
		}
		return nil, err
	}

	results, err := r.Run(ctx, Select(suites, includeOptional))
	return &Outcome{Results: results}, err
}

// Run executes suites concurrently and returns results in input order. If
// ctx is cancelled the results completed so far are returned with the
// context error.
func (r *Runner) Run(ctx context.Context, suites []Suite) ([]Result, error) {
	results := make([]Result, len(suites))
	done := make([]bool, len(suites))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i := range suites {
		i := i // per-iteration copy (go 1.21 loop semantics)
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := r.runSuite(gctx, suites[i])
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = res
			done[i] = true
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		completed := make([]Result, 0, len(suites))
		for i, ok := range done {
			if ok {
				completed = append(completed, results[i])
			}
		}
		return completed, err
	}
	return results, nil
}

func (r *Runner) runSuite(ctx context.Context, s Suite) Result {
	res := Result{
		Name:     s.Name,
		Command:  s.Command,
		Required: s.Required,
		ExitCode: -1,
	}

	args := splitCommand(s.Command)
	if len(args) == 0 {
		res.Err = errors.New("empty command")
		return res
	}

	workDir := r.root
	if s.WorkingDir != "" {
		workDir = filepath.Join(r.root, s.WorkingDir)
	}

	timeout := s.TimeoutOr(r.defaultTimeout)
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, args[0], args[1:]...)
	cmd.Dir = workDir
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Running suite", "suite", s.Name, "command", s.Command, "timeout", timeout)
	start := time.Now()
	runErr := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.Err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case runErr == nil:
		res.ExitCode = 0
		res.Passed = true
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.Err = fmt.Errorf("run %s: %w", args[0], runErr)
	}

	r.logger.Info("Suite finished",
		"suite", s.Name,
		"passed", res.Passed,
		"exit_code", res.ExitCode,
		"duration", res.Duration)
	return res
}

// splitCommand tokenises a command on spaces, keeping single- and
// double-quoted tokens together. No shell is involved; wrap complex
// commands in "sh -c '...'".
func splitCommand(cmd string) []string {
	var tokens []string
	var current strings.Builder
	inSingle, inDouble, quoted := false, false, false

	flush := func() {
		if current.Len() > 0 || quoted {
			tokens = append(tokens, current.String())
			current.Reset()
		}
		quoted = false
	}

	for _, c := range cmd {
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			quoted = true
		case c == '"' && !inSingle:
			inDouble = !inDouble
			quoted = true
		case (c == ' ' || c == '\t') && !inSingle && !inDouble:
			flush()
		default:
			current.WriteRune(c)
		}
	}
	flush()
	return tokens
}
