package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/pulse/am"
	"github.com/teranos/pulse/display"
	"github.com/teranos/pulse/pulse/jobfile"
	"github.com/teranos/pulse/pulse/schedule"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Create jobs from a YAML or JSON job file",
		Long: `Create jobs from a job file.

The whole file is validated before anything is written. Jobs whose name
already exists are skipped unless --replace is given, in which case they are
updated in place and keep their run history.

Example file:

  jobs:
    - name: backup
      schedule: 1d
      command: ./scripts/backup.sh
      on_failure: retry
      retries: 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			replace, _ := cmd.Flags().GetBool("replace")

			specs, err := jobfile.Load(args[0])
			if err != nil {
				return err
			}

			return withStore(cmd.Context(), func(_ *am.Config, store schedule.JobStore) error {
				summary, err := jobfile.Apply(cmd.Context(), store, specs, replace)
				if err != nil {
					return err
				}
				if display.ShouldOutputJSON(cmd) {
					return display.OutputJSON(cmd.OutOrStdout(), summary)
				}
				out := cmd.OutOrStdout()
				display.Success(out, "Imported %s: %d created, %d updated, %d skipped",
					args[0], len(summary.Created), len(summary.Updated), len(summary.Skipped))
				if len(summary.Skipped) > 0 {
					display.Warning(out, "Skipped existing jobs (use --replace to update): %v", summary.Skipped)
				}
				return nil
			})
		},
	}
	cmd.Flags().Bool("replace", false, "Update jobs that already exist")
	cmd.Flags().Bool("json", false, "Output the summary as JSON")
	return cmd
}
