package cli

import (
	"context"
	"database/sql"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jask/powerpolicy/internal/api"
	"github.com/jask/powerpolicy/internal/auth"
	"github.com/jask/powerpolicy/internal/database"
	"github.com/jask/powerpolicy/internal/database/repository"
	"github.com/jask/powerpolicy/internal/service"
	"github.com/jask/powerpolicy/internal/tui"
)

// openRecall opens the history database. Recall is a convenience, so a
// failure only disables it.
func openRecall(e *env) (*service.RecallService, *sql.DB) {
	db, err := database.OpenMigrated(e.cfg.History.Path)
	if err != nil {
		e.log.Warn("recall disabled", zap.String("path", e.cfg.History.Path), zap.Error(err))
		return nil, nil
	}
	return &service.RecallService{History: repository.NewHistoryRepo(db), Limit: e.cfg.History.Limit}, db
}

func newClient(e *env) (*api.Client, error) {
	return api.New(e.session, api.Options{
		BaseURL:   e.cfg.API.BaseURL,
		Timeout:   e.cfg.API.Timeout,
		RateLimit: e.cfg.API.RateLimit,
		Burst:     e.cfg.API.Burst,
		Logger:    e.log.Named("api"),
	})
}

func runTUI(ctx context.Context, e *env) error {
	client, err := newClient(e)
	if err != nil {
		return err
	}
	recall, db := openRecall(e)
	if db != nil {
		defer db.Close()
	}

	app := tui.New(ctx, tui.Deps{
		Session: e.session,
		API:     client,
		Auth:    auth.NewPasswordFlow(e.cfg.API.BaseURL, e.cfg.API.Timeout),
		Recall:  recall,
		Log:     e.log,
		UI:      e.cfg.UI,
	})
	e.log.Info("starting tui", zap.String("base_url", client.BaseURL()))
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
