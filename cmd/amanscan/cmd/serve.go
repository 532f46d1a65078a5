package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/discovery"
	scanerrors "github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/logging"
	"github.com/Aman-CERP/amanscan/internal/mcp"
	"github.com/Aman-CERP/amanscan/internal/progress"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var (
		transport string
		addr      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve scan, update and error tools over MCP",
		Long: `Serve the discovery engine as an MCP server.

Tools: scan, update_context, error_summary, handle_error, invalidate_cache.
With the stdio transport, stdout carries only protocol messages and logs go
to ~/.amanscan/logs/amanscan.log.`,
		Args: wrapArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, g, transport, addr)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "Listen address for the http transport")

	return cmd
}

func runServe(cmd *cobra.Command, g *globalOptions, transport, addr string) error {
	if transport != "stdio" && transport != "http" {
		return usageError(fmt.Errorf("unknown transport %q (supported: stdio, http)", transport))
	}

	cfg, err := loadConfig(cmd, g, nil, ".")
	if err != nil {
		return err
	}

	if !g.debug {
		logCfg := logging.ServeConfig(cfg.Logging.Level)
		if cfg.Logging.File != "" {
			logCfg.FilePath = cfg.Logging.File
		}
		cleanup, err := logging.SetupDefault(logCfg)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		g.closeLogging()
		g.loggingCleanup = cleanup
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *cache.Store
	if cfg.Cache.Enabled {
		if store, err = openStore(cfg); err != nil {
			slog.Warn("cache unavailable", slog.String("error", err.Error()))
		}
	}

	engine, err := discovery.New(discovery.Options{
		Store:    store,
		Progress: progress.New(nil, progress.Options{Mode: progress.ModeSilent}),
		Errors:   scanerrors.CollectorOptions{Hidden: true, Logger: slog.Default()},
		Logger:   slog.Default(),
	})
	if err != nil {
		return err
	}

	srv, err := mcp.NewServer(engine, cfg, slog.Default())
	if err != nil {
		return err
	}
	return srv.Serve(ctx, transport, addr)
}
