package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jask/powerpolicy/internal/database"
	"github.com/jask/powerpolicy/internal/database/repository"
)

var historyKinds = []string{repository.KindSearch, repository.KindVersion}

func History(opts *Options) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "list or clear remembered searches and version ids",
	}
	cmd.PersistentFlags().StringVar(&kind, "kind", "", "search or version (default both)")

	kinds := func() ([]string, error) {
		if kind == "" {
			return historyKinds, nil
		}
		for _, k := range historyKinds {
			if k == kind {
				return []string{k}, nil
			}
		}
		return nil, errors.Errorf("unknown kind %q", kind)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "show remembered values, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := kinds()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			db, err := database.OpenMigrated(cfg.History.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			repo := repository.NewHistoryRepo(db)
			for _, k := range ks {
				entries, err := repo.List(cmd.Context(), k, 0)
				if err != nil {
					return errors.Wrapf(err, "list %s history", k)
				}
				for _, e := range entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-30s %3d  %s\n", e.Kind, e.Value, e.Uses, e.UsedAt.Local().Format("2006-01-02 15:04"))
				}
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "forget remembered values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := kinds()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			db, err := database.OpenMigrated(cfg.History.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := repository.NewHistoryRepo(db).Clear(cmd.Context(), ks...); err != nil {
				return errors.Wrap(err, "clear history")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		},
	}

	cmd.AddCommand(list, clearCmd)
	return cmd
}
