package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teranos/pulse/am"
	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/logger"
	"github.com/teranos/pulse/pulse/schedule"
)

// openStore loads configuration and opens the configured job store.
// The caller closes the store.
func openStore(ctx context.Context) (*am.Config, schedule.JobStore, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}
	store, err := schedule.OpenStore(ctx, cfg, logger.ComponentLogger("db"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// withStore runs fn against an open store and closes it afterwards
func withStore(ctx context.Context, fn func(cfg *am.Config, store schedule.JobStore) error) error {
	cfg, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

// registerJobFlags adds the flags shared by add and edit
func registerJobFlags(flags *pflag.FlagSet) {
	flags.String("schedule", "", "Interval (30s, 15m, 2h, 1d), @hourly, @daily, or an RFC3339 instant")
	flags.String("command", "", "Shell command to run, or @heartbeat")
	flags.String("on-failure", "", "Failure policy: notify, retry, ignore (default notify)")
	flags.Int("retries", 0, "Retry budget for --on-failure retry")
	flags.Int("timeout", 0, "Kill the command after this many seconds (0 = configured default)")
	flags.String("start-at", "", "Do not run before this RFC3339 instant")
	flags.String("end-at", "", "Disable the job after this RFC3339 instant")
	flags.Int("max-runs", 0, "Disable the job after this many runs (0 = unlimited)")
}

// parseInstant parses an RFC3339 flag value; empty means unset
func parseInstant(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, errors.WithHint(
			errors.NewInvalidInputError("--%s: %q is not an RFC3339 instant", flag, value),
			"example: 2026-03-14T09:00:00Z")
	}
	return &t, nil
}

// specFromFlags builds a create spec from the add flags
func specFromFlags(name string, flags *pflag.FlagSet) (schedule.JobSpec, error) {
	spec := schedule.JobSpec{Name: name}
	spec.Schedule, _ = flags.GetString("schedule")
	spec.Command, _ = flags.GetString("command")
	spec.OnFailure, _ = flags.GetString("on-failure")
	spec.Retries, _ = flags.GetInt("retries")
	spec.TimeoutSeconds, _ = flags.GetInt("timeout")
	spec.MaxRuns, _ = flags.GetInt("max-runs")
	spec.Disabled, _ = flags.GetBool("disabled")

	var err error
	startAt, _ := flags.GetString("start-at")
	if spec.StartAt, err = parseInstant("start-at", startAt); err != nil {
		return spec, err
	}
	endAt, _ := flags.GetString("end-at")
	if spec.EndAt, err = parseInstant("end-at", endAt); err != nil {
		return spec, err
	}
	return spec, nil
}

// patchFromFlags builds a patch holding only the flags the user set.
// An explicitly empty --start-at or --end-at clears the constraint.
func patchFromFlags(flags *pflag.FlagSet) (schedule.JobPatch, error) {
	var patch schedule.JobPatch

	if flags.Changed("schedule") {
		v, _ := flags.GetString("schedule")
		patch.Schedule = &v
	}
	if flags.Changed("command") {
		v, _ := flags.GetString("command")
		patch.Command = &v
	}
	if flags.Changed("on-failure") {
		v, _ := flags.GetString("on-failure")
		patch.OnFailure = &v
	}
	if flags.Changed("retries") {
		v, _ := flags.GetInt("retries")
		patch.Retries = &v
	}
	if flags.Changed("timeout") {
		v, _ := flags.GetInt("timeout")
		patch.TimeoutSeconds = &v
	}
	if flags.Changed("max-runs") {
		v, _ := flags.GetInt("max-runs")
		patch.MaxRuns = &v
	}
	for _, name := range []string{"start-at", "end-at"} {
		if !flags.Changed(name) {
			continue
		}
		raw, _ := flags.GetString(name)
		t, err := parseInstant(name, raw)
		if err != nil {
			return patch, err
		}
		if t == nil {
			t = &time.Time{}
		}
		if name == "start-at" {
			patch.StartAt = t
		} else {
			patch.EndAt = t
		}
	}
	return patch, nil
}

// requireName is the cobra Args validator for <name> commands
func requireName(cmd *cobra.Command, args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.NewInvalidInputError("%s expects exactly one job name", cmd.CommandPath())
	}
	return nil
}
