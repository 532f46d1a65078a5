// Package cmd provides the CLI commands for amanscan.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	scanerrors "github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/logging"
	"github.com/Aman-CERP/amanscan/internal/profiling"
	"github.com/Aman-CERP/amanscan/pkg/version"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitUsage    = 1
	ExitCritical = 2
)

// exitError carries an explicit exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: ExitUsage, err: err}
}

// ExitCode maps an error returned by a command to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if se, ok := scanerrors.As(err); ok && se.Severity == scanerrors.SeverityCritical {
		if se.Kind == scanerrors.KindInvalidRequest {
			return ExitUsage
		}
		return ExitCritical
	}
	return ExitUsage
}

// globalOptions holds persistent flags and the resources they start.
type globalOptions struct {
	configPath   string
	debug        bool
	profileCPU   string
	profileMem   string
	profileTrace string

	profile        *profiling.Session
	loggingCleanup func()
}

func (g *globalOptions) start(cmd *cobra.Command) error {
	if g.debug {
		cleanup, err := logging.SetupDefault(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		g.loggingCleanup = cleanup
		slog.Info("Debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version),
			slog.String("command", cmd.CommandPath()))
	} else {
		logging.Quiet(cmd.ErrOrStderr())
	}

	opts := profiling.Options{CPU: g.profileCPU, Heap: g.profileMem, Trace: g.profileTrace}
	if opts.Enabled() {
		session, err := profiling.Start(opts, slog.Default())
		if err != nil {
			return err
		}
		g.profile = session
	}
	return nil
}

// useLogFile switches to file logging from config unless --debug already did.
func (g *globalOptions) useLogFile(level, path string) error {
	if g.debug || path == "" {
		return nil
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.FilePath = path
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return err
	}
	g.closeLogging()
	g.loggingCleanup = cleanup
	return nil
}

func (g *globalOptions) closeLogging() {
	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
}

// stop is idempotent; it runs from PersistentPostRunE and again after Execute
// so profiles are flushed when a command fails.
func (g *globalOptions) stop() error {
	var err error
	if g.profile != nil {
		err = g.profile.Stop()
		g.profile = nil
	}
	g.closeLogging()
	return err
}

// NewRootCmd creates the root command for the amanscan CLI.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *globalOptions) {
	g := &globalOptions{}
	opts := newScanOptions()

	cmd := &cobra.Command{
		Use:   "amanscan [root]",
		Short: "Discover files and keep an incremental scan cache",
		Long: `amanscan walks a directory tree, applies gitignore-style exclusion
patterns and records what it finds in a per-request cache, so repeated
scans report only what was added, modified or removed.

With --monitor it keeps watching the tree after the scan and folds each
change into the cached record.`,
		Example: `  amanscan .
  amanscan ~/src/project --max-depth 3 --ignore '*.log' --progress detailed
  amanscan . --monitor --duration 120`,
		Version:       version.Version,
		Args:          wrapArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, g, opts, args[0])
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.start(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return g.stop()
		},
	}

	cmd.SetVersionTemplate("amanscan version {{.Version}}\n")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	opts.register(cmd)

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file layered over user and project config")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging to ~/.amanscan/logs/")
	cmd.PersistentFlags().StringVar(&g.profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&g.profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newCacheCmd(g))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newDoctorCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd, g
}

// wrapArgs turns argument validation failures into usage errors.
func wrapArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return usageError(fn(cmd, args))
	}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	cmd, g := newRootCmd()
	return execute(cmd, g)
}

func execute(cmd *cobra.Command, g *globalOptions) int {
	err := cmd.Execute()
	if stopErr := g.stop(); err == nil && stopErr != nil {
		err = stopErr
	}
	if err != nil {
		printError(cmd.ErrOrStderr(), cmd, err)
	}
	return ExitCode(err)
}

func printError(w io.Writer, cmd *cobra.Command, err error) {
	var ee *exitError
	if errors.As(err, &ee) && ee.code == ExitUsage {
		_, _ = fmt.Fprintf(w, "Error: %v\nRun '%s --help' for usage.\n", err, cmd.CommandPath())
		return
	}
	_, _ = fmt.Fprint(w, scanerrors.FormatForCLI(err))
}
