package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/pulse/am"
	"github.com/teranos/pulse/display"
	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/sym"
)

func newAmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "am",
		Aliases: []string{"config"},
		Short:   sym.Prefix(sym.AM, "Inspect and manage configuration"),
		Long: `Inspect and manage configuration.

Settings merge in order: built-in defaults, /etc/pulse/pulse.toml,
~/.pulse/pulse.toml, the nearest pulse.toml above the current directory,
--config, then PULSE_* environment variables (PULSE_DATABASE_BACKEND, ...).`,
	}
	cmd.AddCommand(
		newAmShowCmd(),
		newAmSourcesCmd(),
		newAmInitCmd(),
		newAmValidateCmd(),
	)
	return cmd
}

func newAmShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			if display.ShouldOutputJSON(cmd) {
				format = "json"
			}
			cfg, err := am.Load()
			if err != nil {
				return err
			}
			data, err := am.Marshal(cfg, format)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().String("format", "toml", "Output format: toml, json or yaml")
	return cmd
}

func newAmSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Show where each setting comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := am.Introspect()
			if err != nil {
				return err
			}
			if display.ShouldOutputJSON(cmd) {
				return display.OutputJSON(cmd.OutOrStdout(), settings)
			}
			rows := make([][]string, 0, len(settings))
			for _, s := range settings {
				rows = append(rows, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
			}
			return display.Table(cmd.OutOrStdout(), []string{"KEY", "VALUE", "SOURCE", "FROM"}, rows)
		},
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func newAmInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default pulse.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("path")
			force, _ := cmd.Flags().GetBool("force")
			if err := am.WriteDefault(path, force); err != nil {
				return err
			}
			display.Success(cmd.OutOrStdout(), "Wrote %s", path)
			return nil
		},
	}
	cmd.Flags().String("path", am.ProjectConfigName, "Where to write the file")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

func newAmValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a config file, or the merged configuration",
		Long: `Check a config file, or the merged configuration.

Keys that match no setting are reported as warnings, or as errors with --strict.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strict, _ := cmd.Flags().GetBool("strict")
			out := cmd.OutOrStdout()

			path := am.ActiveConfigPath()
			if len(args) == 1 {
				path = args[0]
				if _, err := am.LoadFromFile(path); err != nil {
					return errors.Mark(err, errors.ErrInvalidInput)
				}
			} else if _, err := am.Load(); err != nil {
				return err
			}

			if path != "" {
				unknown, err := am.UnknownKeys(path)
				if err != nil {
					return errors.Mark(err, errors.ErrInvalidInput)
				}
				for _, key := range unknown {
					display.Warning(out, "%s: unknown key %s", path, key)
				}
				if strict && len(unknown) > 0 {
					return errors.WithHint(
						errors.NewInvalidInputError("%s has %d unknown key(s)", path, len(unknown)),
						"run 'pulse am show' to see every valid key")
				}
			}

			if path == "" {
				display.Success(out, "Configuration is valid (built-in defaults)")
			} else {
				display.Success(out, "%s is valid", path)
			}
			return nil
		},
	}
	cmd.Flags().Bool("strict", false, "Treat unknown keys as errors")
	return cmd
}
