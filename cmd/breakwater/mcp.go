package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/breakwater-ai/breakwater/pkg/audit"
	"github.com/breakwater-ai/breakwater/pkg/experiment"
	"github.com/breakwater-ai/breakwater/pkg/gateway"
	"github.com/breakwater-ai/breakwater/pkg/ledger"
	"github.com/breakwater-ai/breakwater/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve gateway introspection tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)

			led, err := ledger.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init ledger: %w", err)
			}
			defer func() { _ = led.Close() }()

			var auditor *audit.Logger
			if cfg.Audit.Enabled {
				auditor, err = audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("init audit log: %w", err)
				}
				defer func() { _ = auditor.Close() }()
			}

			// Spend, budget, and audit tools read the shared databases.
			// Breaker and memory cache state are local to this process.
			deps := gateway.Deps{Ledger: led}
			if cfg.Cache.Enabled {
				deps.Cache, err = newCacheStore(cfg)
				if err != nil {
					return fmt.Errorf("init cache: %w", err)
				}
				defer func() { _ = deps.Cache.Close() }()
			}
			if cfg.Budget.LimitUSD > 0 {
				deps.Meter, err = seedMeter(cmd.Context(), cfg.Budget, led)
				if err != nil {
					return fmt.Errorf("seed budget meter: %w", err)
				}
			}
			if len(cfg.Experiments) > 0 {
				deps.Experiments, err = experiment.New(toExperiments(cfg.Experiments))
				if err != nil {
					return fmt.Errorf("init experiments: %w", err)
				}
			}

			gw, err := gateway.New(cfg, deps)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().Str("config", configPath).Msg("starting mcp server on stdio")
			return mcp.New(gw, led, auditor, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}
