// Package cli wires configuration, logging and the session into the
// powerpolicy commands.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/powerpolicy/internal/config"
	"github.com/jask/powerpolicy/internal/logging"
	"github.com/jask/powerpolicy/internal/session"
)

// Options are the persistent flags shared by every command.
type Options struct {
	ConfigPath string
	Server     string
	Verbose    bool
}

// env is what a command runs with once config and logging are set up.
type env struct {
	cfg     config.Config
	log     *zap.Logger
	session session.Store
}

func Execute(ctx context.Context) error {
	return RootCmd(&Options{}, os.Stdin, os.Stdout).ExecuteContext(ctx)
}

// RootCmd represents the base command when called without any subcommands.
// With no subcommand it starts the terminal UI.
func RootCmd(opts *Options, in io.Reader, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "powerpolicy",
		Short:         "browse policies, notifications and attestation reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts)
			if err != nil {
				return err
			}
			defer e.log.Sync() //nolint:errcheck
			return runTUI(cmd.Context(), e)
		},
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(out)

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default $POWERPOLICY_CONFIG or ~/.config/powerpolicy/config.toml)")
	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "API base URL, overrides api.base_url")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(Login(opts))
	cmd.AddCommand(Logout(opts))
	cmd.AddCommand(Whoami(opts))
	cmd.AddCommand(Demo(opts))
	cmd.AddCommand(Config(opts))
	cmd.AddCommand(History(opts))

	return cmd
}

func loadConfig(opts *Options) (config.Config, error) {
	cfg, err := config.LoadFrom(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Server != "" {
		cfg.API.BaseURL = opts.Server
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func setup(opts *Options) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	log.Debug("config loaded", zap.String("base_url", cfg.API.BaseURL))

	var store session.Store = session.NewMemory()
	if cfg.Session.Persist {
		f, err := session.OpenFile(cfg.Session.Path, log.Named("session"))
		if err != nil {
			return nil, err
		}
		store = f
	}
	return &env{cfg: cfg, log: log, session: store}, nil
}
