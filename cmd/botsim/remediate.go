package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"botsim/internal/orchestrator"
	"botsim/internal/remediator"
)

func newRemediateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remediate",
		Short: "Analyze persisted chat logs and write the remediation reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := flags.load()
			if err != nil {
				return err
			}
			orch, err := orchestrator.New(run, flags.logger())
			if err != nil {
				return err
			}
			defer orch.Close()

			report, err := orch.Remediate(cmd.Context())
			if err != nil {
				return err
			}
			printAggregated(report)
			fmt.Printf("%s %s\n", green("report written to"), run.AggregatedReportPath())
			return nil
		},
	}
}

func printAggregated(report *remediator.AggregatedReport) {
	fmt.Println(bold("\nRemediation summary for " + report.BotName))

	modes := make([]string, 0, len(report.Modes))
	for mode := range report.Modes {
		modes = append(modes, mode)
	}
	sort.Strings(modes)

	for _, modeName := range modes {
		mode := report.Modes[modeName]
		printOverall(modeName, mode.Overall)
		if mode.CM != nil {
			fmt.Printf("  intent accuracy %.2f over %d intents\n", mode.CM.Accuracy, len(mode.CM.Labels))
			for _, cluster := range mode.CM.Clusters {
				if len(cluster) > 1 {
					fmt.Printf("  %s %v\n", yellow("confusable:"), cluster)
				}
			}
		}
		intents := make([]string, 0, len(mode.Intents))
		for intent := range mode.Intents {
			intents = append(intents, intent)
		}
		sort.Strings(intents)
		for _, intent := range intents {
			ir := mode.Intents[intent]
			if len(ir.IntentSuggestions) == 0 && len(ir.NERSuggestions) == 0 {
				continue
			}
			fmt.Printf("  %s\n", cyan(intent))
			for _, hint := range ir.IntentSuggestions {
				fmt.Printf("    - %s\n", hint)
			}
			slots := make([]string, 0, len(ir.NERSuggestions))
			for slot := range ir.NERSuggestions {
				slots = append(slots, slot)
			}
			sort.Strings(slots)
			for _, slot := range slots {
				for _, hint := range ir.NERSuggestions[slot] {
					fmt.Printf("    - [%s] %s\n", slot, hint)
				}
			}
		}
	}
}
