package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/powerpolicy/internal/auth"
	"github.com/jask/powerpolicy/internal/session"
)

func Login(opts *Options) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "sign in and store the session for later runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts)
			if err != nil {
				return err
			}
			defer e.log.Sync() //nolint:errcheck

			if password == "" {
				// one line from stdin so the password stays out of shell history
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.Wrap(err, "read password from stdin")
				}
				password = strings.TrimRight(line, "\r\n")
			}

			flow := auth.NewPasswordFlow(e.cfg.API.BaseURL, e.cfg.API.Timeout)
			tok, err := flow.Login(cmd.Context(), username, password)
			if err != nil {
				e.log.Info("login failed", zap.String("user", username), zap.Error(err))
				return err
			}
			e.session.Set(tok)
			e.log.Info("signed in", zap.String("user", username))
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func Logout(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts)
			if err != nil {
				return err
			}
			defer e.log.Sync() //nolint:errcheck
			e.session.Clear()
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func Whoami(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "show who the stored session belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts)
			if err != nil {
				return err
			}
			defer e.log.Sync() //nolint:errcheck
			who, err := session.Who(e.session)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), who)
			return nil
		},
	}
}
