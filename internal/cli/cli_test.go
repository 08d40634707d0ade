package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jask/powerpolicy/internal/auth"
	"github.com/jask/powerpolicy/internal/config"
	"github.com/jask/powerpolicy/internal/database"
	"github.com/jask/powerpolicy/internal/database/repository"
	"github.com/jask/powerpolicy/internal/fixture"
	"github.com/jask/powerpolicy/internal/service"
	"github.com/jask/powerpolicy/internal/session"
)

// writeConfig points every path at a temp dir and the API at baseURL.
func writeConfig(t *testing.T, baseURL string) (string, config.Config) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)
	cfg.API.BaseURL = baseURL
	cfg.Session.Path = filepath.Join(dir, "session.json")
	cfg.History.Path = filepath.Join(dir, "history.db")
	cfg.Log.Path = filepath.Join(dir, "powerpolicy.log")
	require.NoError(t, config.SaveTo(path, cfg))
	return path, cfg
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := RootCmd(&Options{}, strings.NewReader(stdin), &out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fixtureServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(fixture.New(fixture.Sample()).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestLoginWhoamiLogout(t *testing.T) {
	path, cfg := writeConfig(t, fixtureServer(t))

	out, err := execute(t, "admin\n", "--config", path, "login", "-u", "admin")
	require.NoError(t, err)
	require.Equal(t, "Signed in as admin.\n", out)

	stored, err := session.OpenFile(cfg.Session.Path, nil)
	require.NoError(t, err)
	_, ok := stored.Get()
	require.True(t, ok, "session persisted")

	out, err = execute(t, "", "--config", path, "whoami")
	require.NoError(t, err)
	require.Equal(t, "admin\n", out)

	out, err = execute(t, "", "--config", path, "logout")
	require.NoError(t, err)
	require.Equal(t, "Signed out.\n", out)

	_, err = execute(t, "", "--config", path, "whoami")
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	path, _ := writeConfig(t, fixtureServer(t))

	_, err := execute(t, "", "--config", path, "login", "-u", "admin", "-p", "nope")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = execute(t, "", "--config", path, "whoami")
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestUnreadableSessionFileReadsAsSignedOut(t *testing.T) {
	path, cfg := writeConfig(t, fixtureServer(t))
	require.NoError(t, os.WriteFile(cfg.Session.Path, []byte(`{"token":"AAAA"}`), 0o600))

	_, err := execute(t, "", "--config", path, "whoami")
	require.ErrorIs(t, err, session.ErrNoSession)

	require.NoError(t, os.WriteFile(cfg.Session.Path, []byte(`{"token":"AAAA"}`), 0o600))
	out, err := execute(t, "", "--config", path, "logout")
	require.NoError(t, err)
	require.Equal(t, "Signed out.\n", out)

	require.NoError(t, os.WriteFile(cfg.Session.Path, []byte("garbage"), 0o600))
	out, err = execute(t, "", "--config", path, "login", "-u", "admin", "-p", "admin")
	require.NoError(t, err)
	require.Equal(t, "Signed in as admin.\n", out)

	out, err = execute(t, "", "--config", path, "whoami")
	require.NoError(t, err)
	require.Equal(t, "admin\n", out)
}

func TestServerFlagOverridesConfig(t *testing.T) {
	path, _ := writeConfig(t, "http://127.0.0.1:1")

	out, err := execute(t, "", "--config", path, "--server", fixtureServer(t), "login", "-u", "reader", "-p", "reader")
	require.NoError(t, err)
	require.Contains(t, out, "reader")

	_, err = execute(t, "", "--config", path, "--server", "not a url", "whoami")
	require.Error(t, err)
}

func TestConfigInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := execute(t, "", "--config", path, "config", "init")
	require.NoError(t, err)
	require.Contains(t, out, path)

	_, err = execute(t, "", "--config", path, "config", "init")
	require.ErrorContains(t, err, "already exists")

	_, err = execute(t, "", "--config", path, "--server", "http://policies.internal:8000", "config", "init", "--force")
	require.NoError(t, err)
	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)
	require.Equal(t, "http://policies.internal:8000", cfg.API.BaseURL)
}

func TestConfigShowReportsHistorySchema(t *testing.T) {
	path, cfg := writeConfig(t, "http://127.0.0.1:1")

	out, err := execute(t, "", "--config", path, "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, "history.schema none (not created yet)")
	_, err = os.Stat(cfg.History.Path)
	require.True(t, os.IsNotExist(err), "show does not create the database")

	db, err := database.OpenMigrated(cfg.History.Path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err = execute(t, "", "--config", path, "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, "history.schema v1")
}

func TestHistoryListAndClear(t *testing.T) {
	path, cfg := writeConfig(t, "http://127.0.0.1:1")
	db, err := database.OpenMigrated(cfg.History.Path)
	require.NoError(t, err)
	recall := &service.RecallService{History: repository.NewHistoryRepo(db)}
	ctx := context.Background()
	require.NoError(t, recall.Record(ctx, repository.KindSearch, "remote"))
	require.NoError(t, recall.Record(ctx, repository.KindVersion, "2"))
	require.NoError(t, db.Close())

	out, err := execute(t, "", "--config", path, "history", "list")
	require.NoError(t, err)
	require.Contains(t, out, "remote")
	require.Contains(t, out, "version")

	_, err = execute(t, "", "--config", path, "history", "clear", "--kind", "search")
	require.NoError(t, err)

	out, err = execute(t, "", "--config", path, "history", "list")
	require.NoError(t, err)
	require.NotContains(t, out, "remote")
	require.Contains(t, out, "version")

	_, err = execute(t, "", "--config", path, "history", "list", "--kind", "bogus")
	require.ErrorContains(t, err, "unknown kind")
}

func TestDemoServerAcceptsSampleLogin(t *testing.T) {
	srv, baseURL, err := startDemo("127.0.0.1:0", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	resp, err := http.PostForm(baseURL+"/auth/token", url.Values{
		"username":   {"admin"},
		"password":   {"admin"},
		"grant_type": {"password"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
