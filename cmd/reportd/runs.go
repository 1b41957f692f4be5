package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

var (
	runsJobType string
	runsDate    string
	runsStatus  string
	runsLimit   int
	runsJSON    bool
)

var errNoStore = errors.New("no run store configured (DATABASE_DRIVER is empty)")

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List tracked runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := core.RunFilter{
			ScheduledDate: runsDate,
			Status:        core.RunStatus(runsStatus),
			Limit:         runsLimit,
		}
		if runsJobType != "" {
			jt, err := core.ParseJobType(runsJobType)
			if err != nil {
				return err
			}
			filter.JobType = jt
		}
		if filter.Status != "" && !filter.Status.Valid() {
			return fmt.Errorf("unknown status %q", runsStatus)
		}

		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.store == nil {
			return errNoStore
		}

		runs, err := a.store.ListRuns(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if runsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}
		for _, r := range runs {
			fmt.Printf("%s  %-13s %-10s %-8s %-9s stages=%d warnings=%d errors=%d  %s\n",
				r.ID, r.JobType, r.ScheduledDate, r.Status, r.TriggerSource,
				len(r.Stages), len(r.Warnings), len(r.Errors), r.StartedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsJobType, "job-type", "", "Filter by job type")
	runsCmd.Flags().StringVar(&runsDate, "date", "", "Filter by scheduled date (YYYY-MM-DD)")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "Filter by status (running|success|partial|failed)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 50, "Max rows")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "JSON output")
	rootCmd.AddCommand(runsCmd)
}
