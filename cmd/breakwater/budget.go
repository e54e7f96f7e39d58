package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/breakwater-ai/breakwater/pkg/ledger"
	"github.com/breakwater-ai/breakwater/pkg/meter"
)

func newBudgetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show the current budget window against the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Budget.LimitUSD <= 0 {
				fmt.Println("No budget ceiling is configured; all spend is admitted.")
				return nil
			}

			led, err := ledger.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = led.Close() }()

			start := meter.WindowStart(cfg.Budget.Window, time.Now().UTC())
			spent, err := led.SpentSince(context.Background(), start)
			if err != nil {
				return err
			}

			remaining := cfg.Budget.LimitUSD - spent
			if remaining < 0 {
				remaining = 0
			}
			pct := spent / cfg.Budget.LimitUSD * 100

			fmt.Printf("Window:    %s (since %s)\n", cfg.Budget.Window, start.Format("2006-01-02 15:04 MST"))
			fmt.Printf("Limit:     $%.4f\n", cfg.Budget.LimitUSD)
			fmt.Printf("Spent:     $%.4f (%.1f%%)\n", spent, pct)
			fmt.Printf("Remaining: $%.4f\n", remaining)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}
