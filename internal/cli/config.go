package cli

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jask/powerpolicy/internal/config"
	"github.com/jask/powerpolicy/internal/database"
)

func Config(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "inspect or create the config file",
	}
	cmd.AddCommand(configInit(opts))
	cmd.AddCommand(configShow(opts))
	return cmd
}

func configPath(opts *Options) string {
	if opts.ConfigPath != "" {
		return opts.ConfigPath
	}
	return config.Path()
}

func configInit(opts *Options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "write a config file with the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(opts)
			if _, err := os.Stat(path); err == nil && !force {
				return errors.Errorf("%s already exists (use --force to overwrite)", path)
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if err := config.SaveTo(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShow(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config         %s\n", configPath(opts))
			fmt.Fprintf(out, "api.base_url   %s\n", cfg.API.BaseURL)
			fmt.Fprintf(out, "api.timeout    %s\n", cfg.API.Timeout)
			fmt.Fprintf(out, "session.path   %s (persist=%t)\n", cfg.Session.Path, cfg.Session.Persist)
			fmt.Fprintf(out, "history.path   %s (limit=%d)\n", cfg.History.Path, cfg.History.Limit)
			fmt.Fprintf(out, "history.schema %s\n", schemaVersion(cfg.History.Path))
			fmt.Fprintf(out, "log.path       %s (%s)\n", cfg.Log.Path, cfg.Log.Level)
			fmt.Fprintf(out, "ui.timezone    %s\n", cfg.UI.Timezone)
			return nil
		},
	}
}

// schemaVersion describes the migration state of the history database
// without creating it.
func schemaVersion(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "none (not created yet)"
	}
	v, ok, err := database.MigrationVersion(path)
	switch {
	case err != nil:
		return fmt.Sprintf("unknown (%v)", err)
	case !ok:
		return "none"
	}
	return fmt.Sprintf("v%d", v)
}
