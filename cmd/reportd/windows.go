package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-report-runs/pkg/schedule"
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "Print the window table and each window's next fire",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := schedule.NewResolver(schedule.WithLocation(cfg.Location))
		if err != nil {
			return err
		}
		now := time.Now().In(r.Location())
		for _, w := range r.Windows() {
			next := w.Next(now)
			fmt.Printf("%-22s %-13s %-16s %-9s next=%s\n",
				w.Name, w.JobType, w.Spec, w.Attribution, next.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(windowsCmd)
}
