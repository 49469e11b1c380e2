package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"botsim/internal/driver"
	"botsim/internal/orchestrator"
	"botsim/internal/schema"
)

func newSimulateCmd(flags *rootFlags) *cobra.Command {
	var remediate bool
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive every (intent, mode) goal set against the live bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := flags.load()
			if err != nil {
				return err
			}
			logger := flags.logger()

			orch, err := orchestrator.New(run, logger)
			if err != nil {
				return err
			}
			defer orch.Close()

			res, err := orch.Simulate(cmd.Context())
			if res != nil {
				printSimulateSummary(res)
			}
			if err != nil {
				return err
			}
			if remediate {
				report, err := orch.Remediate(cmd.Context())
				if err != nil {
					return err
				}
				printAggregated(report)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remediate, "remediate", false, "run the analysis after simulation")
	return cmd
}

// printSimulateSummary renders the per-job table the operator reads first.
func printSimulateSummary(res *orchestrator.SimulateResult) {
	fmt.Println(bold("\nSimulation summary"))
	fmt.Printf("%-30s %8s %8s %8s %8s %8s %9s\n",
		"intent/mode", "episodes", "success", "intent", "ner", "other", "rate")

	jobs := make([]string, 0, len(res.Completed))
	for key := range res.Completed {
		jobs = append(jobs, key)
	}
	sort.Strings(jobs)

	for _, key := range jobs {
		printSummaryRow(key, res.Completed[key])
	}
	for _, key := range res.Skipped {
		fmt.Printf("%-30s %s\n", key, yellow("skipped (chat log exists)"))
	}
	for _, failure := range res.Failures {
		fmt.Printf("%-30s %s\n", failure.Intent+"/"+failure.Mode, red("failed: "+failure.Err.Error()))
	}
}

func printSummaryRow(key string, result *driver.Result) {
	s := result.Summary
	rate := fmt.Sprintf("%.2f", s.SuccessRate)
	colored := rate
	switch {
	case s.SuccessRate >= 0.8:
		colored = green(rate)
	case s.SuccessRate >= 0.5:
		colored = yellow(rate)
	default:
		colored = red(rate)
	}
	fmt.Printf("%-30s %8d %8d %8d %8d %8d %9s\n",
		key, s.TotalEpisodes, s.Success, s.IntentErrors, s.NERErrors, s.OtherErrors, colored)
	if result.Discarded > 0 {
		fmt.Printf("%-30s %s\n", "", yellow(fmt.Sprintf("%d sessions discarded", result.Discarded)))
	}
}

func printOverall(label string, s schema.RunSummary) {
	fmt.Printf("%s episodes=%d success_rate=%.2f avg_turns=%.1f\n",
		cyan(label), s.TotalEpisodes, s.SuccessRate, s.AverageTurns)
}
