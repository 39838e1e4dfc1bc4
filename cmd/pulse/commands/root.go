// Package commands implements the pulse CLI.
package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teranos/pulse/am"
	"github.com/teranos/pulse/display"
	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/logger"
	"github.com/teranos/pulse/sym"
)

// NewRootCmd builds the full command tree. Each call returns fresh commands
// so flag state never leaks between invocations.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pulse",
		Short: sym.Pulse + " Recurring job scheduler",
		Long: sym.Pulse + ` pulse - recurring job scheduler

Jobs are shell commands with a schedule. They are stored in the workspace
(.pulse/) and run by a background daemon, one at a time.

Schedules:
  30s, 15m, 2h, 1d            every N seconds/minutes/hours/days
  @hourly, @daily             presets
  2026-03-14T09:00:00Z        once, at an RFC3339 instant

Examples:
  pulse add backup --schedule 1d --command './scripts/backup.sh'
  pulse list
  pulse logs backup --limit 5
  pulse daemon start
  pulse daemon status`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbosity, _ := cmd.Flags().GetCount("verbose")
			configPath, _ := cmd.Flags().GetString("config")

			am.Reset()
			am.SetConfigPath(configPath)

			if err := logger.Initialize(display.ShouldOutputJSON(cmd), verbosity); err != nil {
				return errors.Wrap(err, "failed to initialize logger")
			}
			logger.Logger.Debugw("logger ready", "level", logger.LevelName(verbosity))
			return nil
		},
	}

	root.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	root.PersistentFlags().String("config", "", "Path to a pulse.toml (default: search upward from the current directory)")

	root.AddCommand(
		newAddCmd(),
		newEditCmd(),
		newListCmd(),
		newRemoveCmd(),
		newEnableCmd(),
		newDisableCmd(),
		newLogsCmd(),
		newRunCmd(),
		newImportCmd(),
		newDaemonCmd(),
		newAmCmd(),
		newVersionCmd(),
	)
	return root
}

// PrintError renders err with its taxonomy kind and any hints
func PrintError(w io.Writer, err error) {
	display.Error(w, "[%s] %v", errors.Kind(err), err)
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintf(w, "  hint: %s\n", hint)
	}
}
