package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/breakwater-ai/breakwater/pkg/cache"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openSharedCache(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats(context.Background())
			if err != nil {
				return err
			}
			total := stats.Hits + stats.Misses
			hitRate := float64(0)
			if total > 0 {
				hitRate = float64(stats.Hits) / float64(total) * 100
			}
			fmt.Printf("Backend:  %s\nEntries:  %d\nHits:     %d\nMisses:   %d\nHit rate: %.1f%%\n",
				stats.Backend, stats.Entries, stats.Hits, stats.Misses, hitRate)
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openSharedCache(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			n, err := c.Clear(context.Background(), expiredOnly)
			if err != nil {
				return err
			}
			if expiredOnly {
				fmt.Printf("Cleared %d expired cache entries.\n", n)
			} else {
				fmt.Printf("Cleared %d cache entries.\n", n)
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

// openSharedCache connects to the configured backend when its state is
// shared between processes. The memory backend lives inside the server
// process; its stats are on /status.
func openSharedCache(configPath string) (cache.Store, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	switch cfg.Cache.Backend {
	case "redis":
		c := cache.NewRedis(cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB)
		if err := c.Ping(context.Background()); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Cache.Redis.Addr, err)
		}
		return c, nil
	case "sqlite":
		dbPath := cfg.Cache.DBPath
		if dbPath == "" {
			dbPath = cfg.DBPath
		}
		return cache.NewSQLite(dbPath)
	default:
		return nil, fmt.Errorf("cache backend is %q; the memory cache is in-process, see GET /status", cfg.Cache.Backend)
	}
}
