package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/breakwater-ai/breakwater/pkg/experiment"
)

func newExperimentCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Inspect experiment assignments",
	}

	var subject string
	assignCmd := &cobra.Command{
		Use:   "assign <experiment>",
		Short: "Show which variant a subject is assigned to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			router, err := openRouter(configPath)
			if err != nil {
				return err
			}
			a, err := router.Assign(args[0], subject)
			if err != nil {
				return err
			}
			path := "fallback"
			if a.Upstream {
				path = "upstream"
			}
			fmt.Printf("%s: subject %q is in variant %q (%s path)\n", a.Experiment, a.Subject, a.Variant, path)
			return nil
		},
	}
	assignCmd.Flags().StringVar(&subject, "subject", "", "subject identity to bucket")

	var subjects int
	distributionCmd := &cobra.Command{
		Use:   "distribution <experiment>",
		Short: "Show the variant distribution over synthetic subjects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			router, err := openRouter(configPath)
			if err != nil {
				return err
			}

			counts := make(map[string]int)
			for i := 0; i < subjects; i++ {
				a, err := router.Assign(args[0], fmt.Sprintf("subject-%d", i))
				if err != nil {
					return err
				}
				counts[a.Variant]++
			}

			names := make([]string, 0, len(counts))
			for name := range counts {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VARIANT\tSUBJECTS\tSHARE")
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%d\t%.1f%%\n", name, counts[name], float64(counts[name])/float64(subjects)*100)
			}
			return w.Flush()
		},
	}
	distributionCmd.Flags().IntVar(&subjects, "subjects", 10000, "number of synthetic subjects to bucket")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.AddCommand(assignCmd, distributionCmd)
	return cmd
}

func openRouter(configPath string) (*experiment.Router, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if len(cfg.Experiments) == 0 {
		return nil, fmt.Errorf("no experiments configured")
	}
	return experiment.New(toExperiments(cfg.Experiments))
}
