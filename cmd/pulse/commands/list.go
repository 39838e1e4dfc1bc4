package commands

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/pulse/am"
	"github.com/teranos/pulse/display"
	"github.com/teranos/pulse/pulse/schedule"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List jobs, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(_ *am.Config, store schedule.JobStore) error {
				jobs, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if display.ShouldOutputJSON(cmd) {
					if jobs == nil {
						jobs = []*schedule.Job{}
					}
					return display.OutputJSON(cmd.OutOrStdout(), jobs)
				}
				if len(jobs) == 0 {
					display.Info(cmd.OutOrStdout(), "No jobs. Add one with 'pulse add <name> --schedule 1h --command ...'")
					return nil
				}
				return display.Table(cmd.OutOrStdout(), jobHeaders, jobRows(jobs, time.Now()))
			})
		},
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

var jobHeaders = []string{"NAME", "SCHEDULE", "COMMAND", "ENABLED", "RUNS", "LAST RUN", "STATUS", "NEXT RUN"}

func jobRows(jobs []*schedule.Job, now time.Time) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		status := "-"
		if j.LastStatus != nil {
			status = *j.LastStatus
		}
		rows = append(rows, []string{
			j.Name,
			j.Schedule,
			display.Truncate(j.Command, 40),
			strconv.FormatBool(j.Enabled),
			strconv.Itoa(j.RunCount),
			display.Relative(j.LastRunAt, now),
			status,
			display.Relative(j.NextRunAt, now),
		})
	}
	return rows
}
