package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/config"
	"github.com/Aman-CERP/amanscan/internal/discovery"
	scanerrors "github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/output"
	"github.com/Aman-CERP/amanscan/internal/progress"
	"github.com/Aman-CERP/amanscan/internal/watcher"
)

// scanOptions holds the flags that override config for a scan. Only flags the
// user actually set are applied.
type scanOptions struct {
	recursive      bool
	noRecursive    bool
	maxDepth       int
	progress       string
	showErrors     bool
	hideErrors     bool
	verbose        bool
	cache          bool
	noCache        bool
	ignore         []string
	noIgnore       bool
	followSymlinks bool
	monitor        bool
	duration       int
	json           bool
	files          bool
}

func newScanOptions() *scanOptions {
	return &scanOptions{}
}

func (o *scanOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	o.registerKeyFlags(cmd)
	f.BoolVar(&o.recursive, "recursive", true, "Descend into subdirectories")
	f.StringVar(&o.progress, "progress", "", "Progress display: "+joinModes())
	f.BoolVar(&o.showErrors, "show-errors", true, "Print the issue summary after the scan")
	f.BoolVar(&o.hideErrors, "hide-errors", false, "Do not print the issue summary")
	f.BoolVar(&o.verbose, "verbose", false, "Print each issue as it is recorded")
	f.BoolVar(&o.cache, "cache", true, "Use the scan cache")
	f.BoolVar(&o.noCache, "no-cache", false, "Always walk the tree and skip the cache")
	f.BoolVar(&o.monitor, "monitor", false, "Watch the tree for changes after the scan")
	f.IntVar(&o.duration, "duration", 30, "Monitoring duration in seconds (0 runs until interrupted)")
	f.BoolVar(&o.json, "json", false, "Print the result as JSON")
	f.BoolVar(&o.files, "files", false, "Include the discovered files in the output")
}

// registerKeyFlags registers the flags that change the cache key.
func (o *scanOptions) registerKeyFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&o.noRecursive, "no-recursive", false, "Only list the root directory")
	f.IntVar(&o.maxDepth, "max-depth", -1, "Maximum entry depth (-1 for unlimited)")
	f.StringArrayVar(&o.ignore, "ignore", nil, "Additional ignore pattern (repeatable)")
	f.BoolVar(&o.noIgnore, "no-ignore", false, "Disable the built-in ignore patterns")
	f.BoolVar(&o.followSymlinks, "follow-symlinks", false, "Follow symbolic links to directories")
}

func joinModes() string {
	modes := progress.Modes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// apply overrides cfg with the flags set on cmd.
func (o *scanOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("recursive") {
		cfg.Scan.Recursive = o.recursive
	}
	if changed("no-recursive") {
		cfg.Scan.Recursive = !o.noRecursive
	}
	if changed("max-depth") {
		if o.maxDepth < -1 {
			return fmt.Errorf("--max-depth must be -1 (unlimited) or non-negative, got %d", o.maxDepth)
		}
		cfg.Scan.MaxDepth = o.maxDepth
	}
	if changed("ignore") {
		cfg.Scan.Ignore = append(cfg.Scan.Ignore, o.ignore...)
	}
	if changed("no-ignore") {
		cfg.Scan.DefaultIgnores = !o.noIgnore
	}
	if changed("follow-symlinks") {
		cfg.Scan.FollowSymlinks = o.followSymlinks
	}
	if changed("progress") {
		if _, err := progress.ParseMode(o.progress); err != nil {
			return fmt.Errorf("--progress: %w", err)
		}
		cfg.Progress.Mode = o.progress
	}
	if changed("show-errors") {
		cfg.Errors.Show = o.showErrors
	}
	if changed("hide-errors") {
		cfg.Errors.Show = !o.hideErrors
	}
	if changed("verbose") {
		cfg.Errors.Verbose = o.verbose
	}
	if changed("cache") {
		cfg.Cache.Enabled = o.cache
	}
	if changed("no-cache") {
		cfg.Cache.Enabled = !o.noCache
	}
	if changed("duration") {
		if o.duration < 0 {
			return fmt.Errorf("--duration must be non-negative, got %d", o.duration)
		}
		cfg.Watch.Duration = time.Duration(o.duration) * time.Second
	}
	return nil
}

// loadConfig layers config for root and applies flag overrides.
func loadConfig(cmd *cobra.Command, g *globalOptions, o *scanOptions, root string) (*config.Config, error) {
	cfg, err := config.LoadWithFile(root, g.configPath)
	if err != nil {
		return nil, usageError(err)
	}
	if o != nil {
		if err := o.apply(cmd, cfg); err != nil {
			return nil, usageError(err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, usageError(fmt.Errorf("invalid configuration: %w", err))
	}
	return cfg, nil
}

// openStore opens the record store configured by cfg.
func openStore(cfg *config.Config) (*cache.Store, error) {
	dir := cfg.Cache.Dir
	if dir == "" {
		d, err := cache.DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return cache.NewStore(dir, cache.WithMaxAge(cfg.Cache.MaxAge))
}

func runScan(cmd *cobra.Command, g *globalOptions, o *scanOptions, root string) error {
	cfg, err := loadConfig(cmd, g, o, root)
	if err != nil {
		return err
	}
	if err := g.useLogFile(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()
	out := output.NewStyled(stdout, progress.IsTTY(stdout) && !progress.DetectNoColor())
	errOut := output.NewStyled(stderr, progress.IsTTY(stderr) && !progress.DetectNoColor())

	mode, _ := progress.ParseMode(cfg.Progress.Mode)
	tracker := progress.New(stderr, progress.Options{
		Mode:           mode,
		RedrawInterval: cfg.Progress.RedrawInterval,
		Interactive:    progress.IsTTY(stderr) && !progress.DetectCI(),
	})
	stopCancel := context.AfterFunc(ctx, tracker.Cancel)
	defer stopCancel()

	var store *cache.Store
	if cfg.Cache.Enabled {
		store, err = openStore(cfg)
		if err != nil {
			errOut.Warningf("cache unavailable, scanning without it: %v", err)
			slog.Warn("cache unavailable", slog.String("error", err.Error()))
		}
	}

	engine, err := discovery.New(discovery.Options{
		Store:    store,
		Progress: tracker,
		Errors: scanerrors.CollectorOptions{
			Verbose: cfg.Errors.Verbose,
			Hidden:  !cfg.Errors.Show,
			Output:  stderr,
		},
		Logger: slog.Default(),
	})
	if err != nil {
		return err
	}

	res, err := engine.Scan(ctx, cfg.ScanRequest(root))
	tracker.Finish()
	if err != nil {
		return err
	}

	if o.json {
		if err := out.JSON(jsonResult(res, o.files)); err != nil {
			return err
		}
	} else {
		out.Summary(res, output.SummaryOptions{
			ShowErrors: cfg.Errors.Show,
			Verbose:    cfg.Errors.Verbose,
			Files:      o.files,
		})
	}

	if !o.monitor {
		return nil
	}
	if res.Partial {
		errOut.Warning("scan was interrupted, not monitoring")
		return nil
	}
	return monitor(ctx, engine, cfg, res, out, errOut, o.json)
}

func monitor(ctx context.Context, engine *discovery.Engine, cfg *config.Config, res *discovery.Result,
	out, errOut *output.Writer, jsonOutput bool) error {
	opts := cfg.WatchOptions()
	if opts.Duration > 0 {
		errOut.Statusf("~", "Monitoring %s for %s (Ctrl+C to stop)", res.Root, opts.Duration)
	} else {
		errOut.Statusf("~", "Monitoring %s (Ctrl+C to stop)", res.Root)
	}

	err := engine.Monitor(ctx, res.Root, opts, func(ev watcher.Event, delta cache.Delta) {
		if jsonOutput {
			_ = out.JSON(monitorEvent{Event: ev, Delta: delta})
			return
		}
		out.Event(ev, delta)
	})
	if err != nil {
		return err
	}

	// issues recorded while monitoring, after the ones already reported
	records := engine.ErrorRecords()
	if cfg.Errors.Show && !jsonOutput && len(records) > len(res.Errors.Records) {
		extra := records[len(res.Errors.Records):]
		errOut.ErrorReport(discovery.ErrorReport{
			Summary: scanerrors.Summarize(extra),
			Records: extra,
		}, cfg.Errors.Verbose)
	}
	errOut.Success("Monitoring stopped")
	return nil
}

// monitorEvent is the JSON line printed for each change while monitoring.
type monitorEvent struct {
	Event watcher.Event `json:"event"`
	Delta cache.Delta   `json:"delta"`
}

// jsonResult drops the listings unless files were requested.
func jsonResult(res *discovery.Result, files bool) *discovery.Result {
	if files {
		return res
	}
	trimmed := *res
	trimmed.Entries = nil
	trimmed.Directories = nil
	return &trimmed
}
