package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/pulse/am"
	"github.com/teranos/pulse/display"
	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/logger"
	"github.com/teranos/pulse/pulse/schedule"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Run a job now and record the outcome",
		Long: `Run a job immediately, outside its schedule.

The run is recorded exactly like a daemon tick: a log entry is appended and
the job's next run is recomputed from the finish time. Exits non-zero when
the command fails.`,
		Args: requireName,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(cfg *am.Config, store schedule.JobStore) error {
				d := schedule.NewDaemon(store, schedule.NewShellExecutor(cfg),
					schedule.DaemonConfigFrom(cfg), logger.ComponentLogger("pulse"))

				entry, err := d.RunNow(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				if display.ShouldOutputJSON(cmd) {
					if err := display.OutputJSON(cmd.OutOrStdout(), entry); err != nil {
						return err
					}
				} else {
					printRun(cmd, entry)
				}

				if entry.Status != schedule.StatusSuccess {
					return errors.Mark(
						errors.Newf("job %s failed: %s", args[0], entry.Error),
						errors.ErrExecutionFailure)
				}
				return nil
			})
		},
	}
	cmd.Flags().Bool("json", false, "Output the log entry as JSON")
	return cmd
}

func printRun(cmd *cobra.Command, entry *schedule.LogEntry) {
	out := cmd.OutOrStdout()
	if entry.Output != "" {
		_, _ = out.Write([]byte(entry.Output))
		if entry.Output[len(entry.Output)-1] != '\n' {
			_, _ = out.Write([]byte("\n"))
		}
	}
	if entry.Status == schedule.StatusSuccess {
		display.Success(out, "%s succeeded in %dms", entry.JobName, entry.DurationMs)
		return
	}
	display.Error(out, "%s failed in %dms: %s", entry.JobName, entry.DurationMs, entry.Error)
}
