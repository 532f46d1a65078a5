package cmd

import (
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/output"
	"github.com/Aman-CERP/amanscan/internal/preflight"
)

// errChecksFailed is returned when a required check fails.
var errChecksFailed = errors.New("system check failed")

func newDoctorCmd(g *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor [root]",
		Short: "Check that scanning and monitoring can run",
		Long: `Check that scanning and monitoring can run.

Verifies the root is a readable directory, the cache directory is writable
with free space, and the descriptor and inotify limits allow native watching.
Exits 2 when a required check fails.`,
		Args: wrapArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			cfg, err := loadConfig(cmd, g, nil, root)
			if err != nil {
				return err
			}

			target := preflight.Target{Root: root}
			if abs, err := filepath.Abs(root); err == nil {
				target.Root = abs
			}
			if cfg.Cache.Enabled {
				target.CacheDir = cfg.Cache.Dir
				if target.CacheDir == "" {
					if target.CacheDir, err = cache.DefaultDir(); err != nil {
						return err
					}
				}
			}

			checker := preflight.New(preflight.WithOutput(cmd.OutOrStdout()), preflight.WithVerbose(verbose))
			results := checker.RunAll(cmd.Context(), target)

			if jsonOutput {
				if err := output.New(cmd.OutOrStdout()).JSON(doctorOutput{
					Status: checker.SummaryStatus(results),
					Checks: results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return &exitError{code: ExitCritical, err: errChecksFailed}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for passing checks")

	return cmd
}

type doctorOutput struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}
