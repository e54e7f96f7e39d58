package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/breakwater-ai/breakwater/pkg/audit"
	"github.com/breakwater-ai/breakwater/pkg/breaker"
	"github.com/breakwater-ai/breakwater/pkg/cache"
	"github.com/breakwater-ai/breakwater/pkg/config"
	"github.com/breakwater-ai/breakwater/pkg/experiment"
	"github.com/breakwater-ai/breakwater/pkg/gateway"
	"github.com/breakwater-ai/breakwater/pkg/ledger"
	"github.com/breakwater-ai/breakwater/pkg/meter"
	"github.com/breakwater-ai/breakwater/pkg/metrics"
	"github.com/breakwater-ai/breakwater/pkg/models"
	"github.com/breakwater-ai/breakwater/pkg/server"
	"github.com/breakwater-ai/breakwater/pkg/telemetry"
	"github.com/breakwater-ai/breakwater/pkg/upstream"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("load env file: %w", err)
				}
			} else {
				_ = godotenv.Load()
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			setupLogging(cfg.LogLevel)

			shutdownTracing, err := telemetry.Init(cfg.Telemetry)
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(ctx)
			}()

			led, err := ledger.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init ledger: %w", err)
			}
			defer func() { _ = led.Close() }()

			collector := metrics.NewCollector()

			deps := gateway.Deps{
				Ledger:  led,
				Metrics: collector,
			}

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
				collector.BudgetRemaining.Set(deps.Meter.Status().RemainingUSD)
			}

			deps.Breaker = breaker.New(
				cfg.Breaker.FailureThreshold,
				cfg.Breaker.Cooldown,
				breaker.WithOnTransition(func(from, to models.BreakerState) {
					collector.SetBreakerState(to)
					log.Warn().
						Str("from", string(from)).
						Str("to", string(to)).
						Msg("breaker state change")
				}),
			)

			deps.Upstream = upstream.NewHTTP(cfg.Upstream)

			if cfg.Audit.Enabled {
				deps.Audit, err = audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("init audit log: %w", err)
				}
				defer func() { _ = deps.Audit.Close() }()
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

			srv := server.New(cfg, gw, collector)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().
				Str("config", configPath).
				Int("tools", len(cfg.Tools)).
				Str("provider", cfg.Upstream.Provider).
				Msg("starting breakwater")
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "breakwater.yaml", "path to config file")
	cmd.Flags().StringVar(&envFile, "env-file", "", "load environment variables from this file")
	return cmd
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func newCacheStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedis(cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB), nil
	case "sqlite":
		dbPath := cfg.Cache.DBPath
		if dbPath == "" {
			dbPath = cfg.DBPath
		}
		return cache.NewSQLite(dbPath)
	default:
		return cache.NewMemory(), nil
	}
}

// seedMeter restores the window's spend from the ledger so a restart does
// not reset the ceiling.
func seedMeter(ctx context.Context, cfg config.BudgetConfig, led ledger.Ledger) (*meter.Meter, error) {
	start := meter.WindowStart(cfg.Window, time.Now().UTC())
	spent, err := led.SpentSince(ctx, start)
	if err != nil {
		return nil, err
	}
	return meter.New(cfg.Window, cfg.LimitUSD, meter.WithSpent(spent)), nil
}

func toExperiments(cfgs []config.ExperimentConfig) []experiment.Experiment {
	out := make([]experiment.Experiment, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, experiment.Experiment{Name: c.Name, Variants: c.Variants})
	}
	return out
}
