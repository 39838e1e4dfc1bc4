package commands

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/pulse/am"
	"github.com/teranos/pulse/display"
	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/pulse/schedule"
)

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <name>",
		Short: "Show a job's execution logs, newest first",
		Long: `Show a job's execution logs, newest first.

--since takes an RFC3339 instant or a look-back interval (30m, 2h, 1d).

Examples:
  pulse logs backup
  pulse logs backup --limit 5 --since 1d
  pulse logs backup --json | jq '.[0].output'`,
		Args: requireName,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			sinceRaw, _ := cmd.Flags().GetString("since")
			since, err := parseSince(sinceRaw, time.Now())
			if err != nil {
				return err
			}

			return withStore(cmd.Context(), func(_ *am.Config, store schedule.JobStore) error {
				if _, err := store.Get(cmd.Context(), args[0]); err != nil {
					return err
				}
				logs, err := store.ListLogs(cmd.Context(), args[0], limit, since)
				if err != nil {
					return err
				}
				if display.ShouldOutputJSON(cmd) {
					if logs == nil {
						logs = []*schedule.LogEntry{}
					}
					return display.OutputJSON(cmd.OutOrStdout(), logs)
				}
				if len(logs) == 0 {
					display.Info(cmd.OutOrStdout(), "No runs recorded for %s", args[0])
					return nil
				}
				return display.Table(cmd.OutOrStdout(), logHeaders, logRows(logs))
			})
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum entries to show (0 = all)")
	cmd.Flags().String("since", "", "Only runs started at or after this instant or look-back interval")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

var logHeaders = []string{"STARTED", "STATUS", "DURATION", "OUTPUT", "ERROR"}

func logRows(logs []*schedule.LogEntry) [][]string {
	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		started := l.StartedAt
		rows = append(rows, []string{
			display.Timestamp(&started),
			l.Status,
			strconv.FormatInt(l.DurationMs, 10) + "ms",
			display.Truncate(firstLine(l.Output), 40),
			display.Truncate(firstLine(l.Error), 40),
		})
	}
	return rows
}

// parseSince accepts an RFC3339 instant or an interval counted back from now
func parseSince(raw string, now time.Time) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	s, err := schedule.ParseSchedule(raw)
	if err != nil {
		return nil, errors.WithHint(
			errors.NewInvalidInputError("--since: %q is neither an interval nor an RFC3339 instant", raw),
			"examples: 30m, 1d, 2026-03-14T09:00:00Z")
	}
	if s.Kind == schedule.KindAt {
		return &s.At, nil
	}
	t := now.Add(-s.Interval)
	return &t, nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i] + " …"
		}
	}
	return s
}
