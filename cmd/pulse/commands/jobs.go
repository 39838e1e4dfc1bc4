package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/pulse/am"
	"github.com/teranos/pulse/display"
	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/pulse/schedule"
	"github.com/teranos/pulse/sym"
)

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name> --schedule <schedule> --command <command>",
		Short: "Add a job",
		Long: `Add a job. It is picked up by the daemon on its next tick, which
computes the first run time; nothing runs at add time.

Examples:
  pulse add backup --schedule 1d --command './scripts/backup.sh'
  pulse add ping --schedule 30s --command 'curl -fsS https://example.com' --on-failure retry --retries 3
  pulse add release --schedule 2026-03-14T09:00:00Z --command 'make release'`,
		Args: requireName,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := specFromFlags(args[0], cmd.Flags())
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(_ *am.Config, store schedule.JobStore) error {
				job, err := store.Create(cmd.Context(), spec)
				if err != nil {
					return err
				}
				if display.ShouldOutputJSON(cmd) {
					return display.OutputJSON(cmd.OutOrStdout(), job)
				}
				display.Success(cmd.OutOrStdout(), "Added job %s (%s %s)", job.Name, sym.AT, job.Schedule)
				if !job.Enabled {
					display.Info(cmd.OutOrStdout(), "Job is disabled; run 'pulse enable %s' to schedule it", job.Name)
				}
				return nil
			})
		},
	}
	registerJobFlags(cmd.Flags())
	cmd.Flags().Bool("disabled", false, "Create the job disabled")
	cmd.Flags().Bool("json", false, "Output the created job as JSON")
	return cmd
}

func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <name> [flags]",
		Short: "Change a job's fields",
		Long: `Change a job. Only the flags you pass are updated; everything else is kept.
Changing the schedule or --start-at makes the daemon compute a fresh next run.
Pass an empty value (--end-at "") to clear a time constraint.`,
		Args: requireName,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := patchFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			if patch.IsEmpty() {
				return errors.WithHint(
					errors.NewInvalidInputError("nothing to change for job %q", args[0]),
					"pass at least one of --schedule, --command, --on-failure, --retries, --timeout, --start-at, --end-at, --max-runs")
			}
			return withStore(cmd.Context(), func(_ *am.Config, store schedule.JobStore) error {
				job, err := store.Update(cmd.Context(), args[0], patch)
				if err != nil {
					return err
				}
				if display.ShouldOutputJSON(cmd) {
					return display.OutputJSON(cmd.OutOrStdout(), job)
				}
				display.Success(cmd.OutOrStdout(), "Updated job %s", job.Name)
				return nil
			})
		},
	}
	registerJobFlags(cmd.Flags())
	cmd.Flags().Bool("json", false, "Output the updated job as JSON")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <name> --force",
		Aliases: []string{"rm"},
		Short:   "Remove a job and its logs",
		Long:    "Remove a job and its execution logs. This cannot be undone, so --force is required.",
		Args:    requireName,
		RunE: func(cmd *cobra.Command, args []string) error {
			if force, _ := cmd.Flags().GetBool("force"); !force {
				return errors.WithHint(
					errors.NewInvalidInputError("refusing to remove job %q without --force", args[0]),
					"removal deletes the job and its logs permanently")
			}
			return withStore(cmd.Context(), func(_ *am.Config, store schedule.JobStore) error {
				removed, err := store.Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return errors.NewNotFoundError("job %q not found", args[0])
				}
				display.Success(cmd.OutOrStdout(), "Removed job %s", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolP("force", "f", false, "Confirm permanent removal")
	return cmd
}

func newEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <name>",
		Short: "Enable a job",
		Long:  "Enable a job. The daemon computes a fresh next run on its next tick.",
		Args:  requireName,
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEnabled(cmd, args[0], true)
		},
	}
}

func newDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <name>",
		Short: "Disable a job",
		Long:  "Disable a job. Disabled jobs are never run by the daemon but keep their logs.",
		Args:  requireName,
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEnabled(cmd, args[0], false)
		},
	}
}

func setEnabled(cmd *cobra.Command, name string, enabled bool) error {
	return withStore(cmd.Context(), func(_ *am.Config, store schedule.JobStore) error {
		if err := store.SetEnabled(cmd.Context(), name, enabled); err != nil {
			return err
		}
		state := "Disabled"
		if enabled {
			state = "Enabled"
		}
		display.Success(cmd.OutOrStdout(), "%s job %s", state, name)
		return nil
	})
}
