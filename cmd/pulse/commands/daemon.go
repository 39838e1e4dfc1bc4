package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/pulse/am"
	"github.com/teranos/pulse/display"
	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/logger"
	"github.com/teranos/pulse/pulse/schedule"
	"github.com/teranos/pulse/pulse/supervisor"
	"github.com/teranos/pulse/sym"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: sym.Pulse + " Control the background scheduler",
		Long: sym.Pulse + ` Control the background scheduler.

The daemon polls the job store, runs due jobs one at a time and records
each outcome. Its PID and log live under the workspace (.pulse/).`,
	}
	cmd.AddCommand(
		newDaemonStartCmd(),
		newDaemonStopCmd(),
		newDaemonStatusCmd(),
		newDaemonRunCmd(),
	)
	return cmd
}

// newSupervisor builds the supervisor for the configured workspace. The
// child re-invokes this binary as "daemon run --detached".
func newSupervisor(cmd *cobra.Command, cfg *am.Config) *supervisor.Supervisor {
	args := []string{"daemon", "run", "--detached"}
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		args = append(args, "--config", p)
	}
	if v, _ := cmd.Flags().GetCount("verbose"); v > 0 {
		args = append(args, "-"+strings.Repeat("v", v))
	}
	return supervisor.New(supervisor.Config{
		PIDFile: cfg.PIDFilePath(),
		Args:    args,
		Dir:     cfg.WorkspaceDir(),
		LogFile: cfg.LogFilePath(),
	}, logger.ComponentLogger("supervisor"))
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := am.Load()
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			sup := newSupervisor(cmd, cfg)

			before, err := sup.Status()
			if err != nil {
				return err
			}
			if before.Running {
				display.Info(cmd.OutOrStdout(), "Daemon already running (pid %d)", before.PID)
				return nil
			}

			st, err := sup.Start()
			if err != nil {
				return err
			}
			display.Success(cmd.OutOrStdout(), "%s Daemon started (pid %d), logging to %s",
				sym.PulseOpen, st.PID, cfg.LogFilePath())
			return nil
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		Long: `Stop the background daemon.

The daemon finishes the command it is running before it exits. If that
takes longer than the stop timeout, stop reports an error and the PID file
stays in place until the daemon is gone, so status keeps showing it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := am.Load()
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			sup := newSupervisor(cmd, cfg)

			before, err := sup.Status()
			if err != nil {
				return err
			}
			if !before.Running {
				display.Info(cmd.OutOrStdout(), "Daemon not running")
				return nil
			}
			if _, err := sup.Stop(); err != nil {
				return err
			}
			display.Success(cmd.OutOrStdout(), "%s Daemon stopped (pid %d)", sym.PulseClose, before.PID)
			return nil
		},
	}
}

// daemonStatus is the JSON shape of 'daemon status'
type daemonStatus struct {
	supervisor.Status
	PIDFile string `json:"pid_file"`
	LogFile string `json:"log_file"`
}

func newDaemonStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := am.Load()
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			st, err := newSupervisor(cmd, cfg).Status()
			if err != nil {
				return err
			}

			if display.ShouldOutputJSON(cmd) {
				return display.OutputJSON(cmd.OutOrStdout(), daemonStatus{
					Status:  st,
					PIDFile: cfg.PIDFilePath(),
					LogFile: cfg.LogFilePath(),
				})
			}

			out := cmd.OutOrStdout()
			if !st.Running {
				display.Info(out, "Daemon not running")
				return nil
			}
			display.Success(out, "%s Daemon running (pid %d)", sym.Pulse, st.PID)
			rows := [][]string{
				{"pid file", cfg.PIDFilePath()},
				{"log file", cfg.LogFilePath()},
			}
			if !st.StartedAt.IsZero() {
				rows = append(rows, []string{"uptime", time.Since(st.StartedAt).Round(time.Second).String()})
			}
			if st.RSSBytes > 0 {
				rows = append(rows, []string{"memory", formatBytes(st.RSSBytes)})
			}
			return display.Table(out, []string{"FIELD", "VALUE"}, rows)
		},
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func newDaemonRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler loop in the foreground",
		Long: `Run the scheduler loop in the foreground until interrupted.

This is what 'daemon start' spawns. Ctrl-C stops the loop after the command
in flight finishes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := am.Load()
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}

			if detached, _ := cmd.Flags().GetBool("detached"); detached {
				verbosity, _ := cmd.Flags().GetCount("verbose")
				if verbosity < logger.VerbosityInfo {
					verbosity = logger.VerbosityInfo
				}
				if err := logger.InitializeFile(cfg.LogFilePath(), verbosity); err != nil {
					return err
				}
			}

			store, err := schedule.OpenStore(cmd.Context(), cfg, logger.ComponentLogger("db"))
			if err != nil {
				return err
			}
			defer store.Close()

			d := schedule.NewDaemon(store, schedule.NewShellExecutor(cfg),
				schedule.DaemonConfigFrom(cfg), logger.ComponentLogger("pulse"))

			if path := am.ActiveConfigPath(); path != "" {
				stopWatch := watchConfig(path, d)
				defer stopWatch()
			}

			return supervisor.RunLoop(cmd.Context(), d, cfg.PIDFilePath(), logger.ComponentLogger("supervisor"))
		},
	}
	cmd.Flags().Bool("detached", false, "Log to the daemon log file instead of stderr")
	_ = cmd.Flags().MarkHidden("detached")
	return cmd
}

// watchConfig applies daemon settings from path whenever it changes.
// A watcher that cannot start is logged and otherwise ignored.
func watchConfig(path string, d *schedule.Daemon) func() {
	log := logger.ComponentLogger("config")
	w, err := am.NewConfigWatcher(path)
	if err != nil {
		log.Warnw("Config hot reload disabled", logger.FieldPath, path, logger.FieldError, err)
		return func() {}
	}
	w.OnReload(func(cfg *am.Config) error {
		d.ApplyConfig(schedule.DaemonConfigFrom(cfg))
		log.Infow("Applied reloaded config", logger.FieldPath, path,
			logger.FieldInterval, cfg.PollInterval())
		return nil
	})
	am.SetGlobalWatcher(w)
	w.Start()
	return func() {
		am.SetGlobalWatcher(nil)
		_ = w.Stop()
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
