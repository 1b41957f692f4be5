package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/orchestrator"
)

var (
	triggerDate string
	triggerAt   string
	triggerJSON bool
)

var triggerCmd = &cobra.Command{
	Use:   "trigger [job-type]",
	Short: "Run one job now and print its report",
	Long: "With a job type the run is a manual override. Without one the job\n" +
		"is resolved from the window table at --at (default now).",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inv := orchestrator.Invocation{ScheduledDate: triggerDate}
		if len(args) == 1 {
			inv.Override = args[0]
		}
		if triggerAt != "" {
			at, err := time.Parse(time.RFC3339, triggerAt)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			inv.At = at
		}

		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.orch.Trigger(cmd.Context(), inv)
		if err != nil {
			return err
		}
		if err := printReport(report, triggerJSON); err != nil {
			return err
		}
		if report.Status == core.RunFailed {
			return fmt.Errorf("run %s failed", report.RunID)
		}
		return nil
	},
}

func printReport(r *orchestrator.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Printf("%s  %-13s %-10s %-8s tracked=%t  %s\n",
		r.RunID, r.JobType, r.ScheduledDate, r.Status, r.Tracked, r.Duration.Round(time.Millisecond))
	for _, w := range r.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, e := range r.Errors {
		fmt.Printf("  error:   %s\n", e)
	}
	if !r.Verdict.OK && r.Verdict.Reason != "" {
		fmt.Printf("  rejected: %s\n", r.Verdict.Reason)
	}
	return nil
}

func init() {
	triggerCmd.Flags().StringVar(&triggerDate, "date", "", "Scheduled date to attribute the run to (YYYY-MM-DD)")
	triggerCmd.Flags().StringVar(&triggerAt, "at", "", "Resolve the window table at this RFC3339 instant")
	triggerCmd.Flags().BoolVar(&triggerJSON, "json", false, "JSON output")
	rootCmd.AddCommand(triggerCmd)
}
