package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/config"
	"github.com/Aman-CERP/amanscan/internal/discovery"
	"github.com/Aman-CERP/amanscan/internal/output"
	"github.com/Aman-CERP/amanscan/internal/progress"
)

// newCacheCmd creates the cache command group.
func newCacheCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the scan cache",
		Long: `Inspect and maintain the scan cache.

Each scan request (root, depth, patterns, symlink policy) has its own record.
Records older than cache.max_age are ignored by scans and removed by prune.`,
	}

	cmd.AddCommand(newCacheInfoCmd(g))
	cmd.AddCommand(newCacheClearCmd(g))
	cmd.AddCommand(newCachePruneCmd(g))
	cmd.AddCommand(newCacheInvalidateCmd(g))

	return cmd
}

// cacheConfig loads config from the working directory.
func cacheConfig(cmd *cobra.Command, g *globalOptions) (*config.Config, error) {
	return loadConfig(cmd, g, nil, ".")
}

func newCacheInfoCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "List cached scan records",
		Args:  wrapArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cacheConfig(cmd, g)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			infos, err := store.List()
			if err != nil {
				return err
			}

			out := output.NewStyled(cmd.OutOrStdout(), progress.IsTTY(cmd.OutOrStdout()) && !progress.DetectNoColor())
			if jsonOutput {
				if infos == nil {
					infos = []cache.Info{}
				}
				return out.JSON(cacheInfoOutput{Dir: store.Dir(), Records: infos})
			}
			out.CacheInfo(store.Dir(), infos)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type cacheInfoOutput struct {
	Dir     string       `json:"dir"`
	Records []cache.Info `json:"records"`
}

func newCacheClearCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached scan record",
		Args:  wrapArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cacheConfig(cmd, g)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			n, err := store.Clear()
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Removed %d record(s) from %s", n, store.Dir())
			return nil
		},
	}
}

func newCachePruneCmd(g *globalOptions) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove expired and corrupt records",
		Args:  wrapArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cacheConfig(cmd, g)
			if err != nil {
				return err
			}
			age := cfg.Cache.MaxAge
			if cmd.Flags().Changed("max-age") {
				age = maxAge
			}
			if age <= 0 {
				return usageError(fmt.Errorf("max age must be positive, got %s", age))
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			n, err := store.Prune(age)
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Pruned %d record(s) older than %s", n, age)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Remove records older than this (default: cache.max_age)")
	return cmd
}

func newCacheInvalidateCmd(g *globalOptions) *cobra.Command {
	opts := newScanOptions()

	cmd := &cobra.Command{
		Use:   "invalidate [root]",
		Short: "Drop the cached record of one scan request",
		Long: `Drop the cached record of one scan request.

The record is selected by the same options a scan would use, so pass the
same --max-depth, --ignore and related flags that the scan was run with.`,
		Args: wrapArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			cfg, err := loadConfig(cmd, g, opts, root)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			engine, err := discovery.New(discovery.Options{Store: store})
			if err != nil {
				return err
			}
			key, err := engine.Invalidate(cfg.ScanRequest(root))
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Invalidated %s (%s)", root, key)
			return nil
		},
	}

	opts.registerKeyFlags(cmd)
	return cmd
}
