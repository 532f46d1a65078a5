package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanscan/internal/logging"
	"github.com/Aman-CERP/amanscan/internal/progress"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	scanID  string
	noColor bool
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View amanscan debug logs",
		Long: `View and tail the log file written with --debug or logging.file.

By default, shows the last 50 lines. Use -f to follow new entries in
real-time (like 'tail -f').`,
		Example: `  amanscan logs                     # Show last 50 lines
  amanscan logs -n 200 --level warn # Warnings and errors only
  amanscan logs --scan-id <id>      # Entries of one scan
  amanscan logs -f --filter walker  # Follow entries matching a pattern`,
		Args: wrapArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Filter by pattern (regex)")
	cmd.Flags().StringVar(&opts.scanID, "scan-id", "", "Only entries of one scan")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Custom log file path")

	return cmd
}

func runLogs(ctx context.Context, out io.Writer, opts logsOptions) error {
	if opts.lines <= 0 {
		return usageError(fmt.Errorf("--lines must be positive, got %d", opts.lines))
	}

	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return err
	}

	cfg := logging.ViewerConfig{
		Level:   opts.level,
		ScanID:  opts.scanID,
		NoColor: opts.noColor || progress.DetectNoColor() || !progress.IsTTY(out),
	}
	if opts.filter != "" {
		re, err := regexp.Compile(opts.filter)
		if err != nil {
			return usageError(fmt.Errorf("invalid filter pattern: %w", err))
		}
		cfg.Pattern = re
	}

	viewer := logging.NewViewer(cfg, out)
	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)

	if !opts.follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch := make(chan logging.LogEntry)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(ch)
		return viewer.Follow(gctx, path, ch)
	})
	g.Go(func() error {
		for e := range ch {
			_, _ = fmt.Fprintln(out, viewer.FormatEntry(e))
		}
		return nil
	})
	return g.Wait()
}
