// Package main provides the sddcheck binary entry point.
// sddcheck validates spec-driven development templates, examples and guides
// against their metadata and reports a weighted quality score.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/brock-run/spec-driven-development/config"
	"github.com/brock-run/spec-driven-development/source"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "sddcheck"
)

const skipConfig = "skip-config"

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errChecksFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// cli holds state shared by every subcommand once flags are parsed.
type cli struct {
	configPath  string
	logLevel    string
	reportDir   string
	metricsFile string
	workers     int

	cfg    *config.Config
	logger *slog.Logger
}

func rootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Validate spec-driven development documents",
		Long: `sddcheck validates markdown templates, example projects and user guides
against their metadata rules and writes JSON reports with a weighted
quality score.

It exits 0 when every required check passes, 1 when a required check fails
or the quality score is below scoring.min_score, and 2 on an internal error.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.logger = newLogger(c.logLevel)
			slog.SetDefault(c.logger)
			if cmd.Annotations[skipConfig] != "" {
				return nil
			}
			return c.loadConfig(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "Config file path (YAML)")
	pf.StringVar(&c.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&c.reportDir, "report-dir", "", "Directory for JSON reports")
	pf.StringVar(&c.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
	pf.IntVar(&c.workers, "workers", 0, "Concurrent validations (0 = number of CPUs)")

	cmd.AddCommand(
		c.templatesCmd(),
		c.examplesCmd(),
		c.journeysCmd(),
		c.communityCmd(),
		c.suitesCmd(),
		c.allCmd(),
		c.indexCmd(),
		c.watchCmd(),
		c.configCmd(),
		&cobra.Command{
			Use:         "version",
			Short:       "Print version information",
			Annotations: map[string]string{skipConfig: "true"},
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func (c *cli) loadConfig(cmd *cobra.Command) error {
	loader := config.NewLoader(c.logger)

	var err error
	if c.configPath != "" {
		c.cfg, err = loader.LoadExplicit(c.configPath)
	} else {
		c.cfg, err = loader.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("report-dir") {
		c.cfg.Report.Dir = c.reportDir
	}
	if flags.Changed("metrics-file") {
		c.cfg.Report.MetricsFile = c.metricsFile
	}
	if flags.Changed("workers") {
		c.cfg.Workers = c.workers
	}
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *cli) app() *App {
	return NewApp(c.cfg, c.logger)
}

// conclude prints runs and turns a failing outcome into errChecksFailed.
func (c *cli) conclude(runErr error, runs ...*Run) error {
	failed := false
	for _, run := range runs {
		if run == nil {
			continue
		}
		printRun(run)
		if run.Failed(c.cfg.Scoring.MinScore) {
			failed = true
		}
	}
	if runErr != nil {
		return runErr
	}
	if failed {
		pterm.Error.Println("Validation failed")
		return errChecksFailed
	}
	pterm.Success.Println("All required checks passed")
	return nil
}

func (c *cli) templatesCmd() *cobra.Command {
	var generateIndex bool
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Validate templates against their metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := c.app().Templates(cmd.Context(), generateIndex)
			return c.conclude(err, run)
		},
	}
	cmd.Flags().BoolVar(&generateIndex, "generate-index", false, "Also write the template index")
	return cmd
}

func (c *cli) examplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Validate the examples tree and its documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := c.app().Examples(cmd.Context())
			return c.conclude(err, run)
		},
	}
}

func (c *cli) journeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "journeys",
		Short: "Check that each reader's journey through the guides is complete",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := c.app().Journeys(cmd.Context())
			return c.conclude(err, run)
		},
	}
}

func (c *cli) communityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "community",
		Short: "Check the files a community launch depends on",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := c.app().Community(cmd.Context())
			return c.conclude(err, run)
		},
	}
}

func (c *cli) suitesCmd() *cobra.Command {
	var includeOptional bool
	cmd := &cobra.Command{
		Use:   "suites",
		Short: "Run the external check suites",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := c.app().Suites(cmd.Context(), includeOptional)
			return c.conclude(err, run)
		},
	}
	cmd.Flags().BoolVar(&includeOptional, "include-optional", false, "Also run optional suites")
	return cmd
}

func (c *cli) allCmd() *cobra.Command {
	var includeOptional bool
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run every check and a combined report",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := c.app().All(cmd.Context(), includeOptional)
			return c.conclude(err, runs...)
		},
	}
	cmd.Flags().BoolVar(&includeOptional, "include-optional", false, "Also run optional suites")
	return cmd
}

func (c *cli) indexCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Write the template index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" {
				c.cfg.Templates.Index = output
			}
			path, err := c.app().Index()
			if err != nil {
				return err
			}
			pterm.Success.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Index file (default templates.index)")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Revalidate templates as they change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.watch(cmd.Context())
		},
	}
}

func (c *cli) watch(ctx context.Context) error {
	app := c.app()
	run, err := app.Templates(ctx, false)
	if err != nil {
		return err
	}
	printRun(run)

	w, err := source.NewWatcher(c.cfg.Templates.Dir, c.cfg.WatchOptions(), c.logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Close()
		return err
	}
	defer func() { _ = w.Close() }()

	pterm.Info.Printf("Watching %s (Ctrl+C to stop)\n", c.cfg.Templates.Dir)
	for batch := range w.Batches() {
		r, err := app.Revalidate(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Revalidation failed", "error", err)
			continue
		}
		if r != nil {
			printResults(r)
		}
	}
	return nil
}

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a default " + config.ProjectConfigFile + " to the current directory",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.NewLoader(c.logger).InitProject(force)
			if err != nil {
				return err
			}
			pterm.Success.Printf("Created %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
