package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/breakwater-ai/breakwater/pkg/config"
	"github.com/breakwater-ai/breakwater/pkg/ledger"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		tool       string
		recent     int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show upstream spend statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			led, err := ledger.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = led.Close() }()

			ctx := context.Background()

			// Recent call view
			if recent > 0 {
				rows, err := led.Recent(ctx, recent)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Println("No upstream calls recorded.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tTOOL\tPROVIDER\tMODEL\tPROMPT\tCOMPLETION\tCOST USD")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.4f\n",
						r.CreatedAt.Format("2006-01-02T15:04:05"), r.Tool, r.Provider, r.Model,
						r.PromptTokens, r.CompletionTokens, r.CostUSD)
				}
				return w.Flush()
			}

			// Default: spend summary per tool and model
			summaries, err := led.Summary(ctx, tool)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No spend recorded.")
				return nil
			}

			var total float64
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOOL\tMODEL\tREQUESTS\tPROMPT\tCOMPLETION\tCOST USD")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.4f\n",
					s.Tool, s.Model, s.RequestCount, s.PromptTokens, s.CompletionTokens, s.CostUSD)
				total += s.CostUSD
			}
			fmt.Fprintf(w, "TOTAL\t\t\t\t\t%.4f\n", total)
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&tool, "tool", "", "filter by tool name")
	cmd.Flags().IntVar(&recent, "recent", 0, "show the N most recent upstream calls")
	return cmd
}

// loadConfig falls back to defaults when no path is given, matching how the
// read-only commands are used against a local database.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
