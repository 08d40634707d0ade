package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/jask/powerpolicy/internal/database"
)

func openHistory(t *testing.T) *HistoryRepo {
	t.Helper()
	db, err := database.OpenMigrated(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewHistoryRepo(db)
}

func TestHistoryTouchAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openHistory(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Touch(ctx, KindSearch, "budget", base))
	require.NoError(t, repo.Touch(ctx, KindSearch, "travel", base.Add(time.Minute)))
	require.NoError(t, repo.Touch(ctx, KindSearch, "budget", base.Add(2*time.Minute)))
	require.NoError(t, repo.Touch(ctx, KindVersion, "2", base))

	got, err := repo.List(ctx, KindSearch, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "budget", got[0].Value)
	require.Equal(t, 2, got[0].Uses)
	require.True(t, got[0].UsedAt.Equal(base.Add(2*time.Minute)))
	require.Equal(t, "travel", got[1].Value)

	got, err = repo.List(ctx, KindSearch, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	versions, err := repo.List(ctx, KindVersion, 10)
	require.NoError(t, err)
	require.Len(t, versions, 1)
}

func TestHistoryPrune(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openHistory(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, v := range []string{"a", "b", "c", "d"} {
		require.NoError(t, repo.Touch(ctx, KindSearch, v, base.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, repo.Touch(ctx, KindVersion, "1", base))

	n, err := repo.Prune(ctx, KindSearch, 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	got, err := repo.List(ctx, KindSearch, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "d", got[0].Value)
	require.Equal(t, "c", got[1].Value)

	versions, err := repo.List(ctx, KindVersion, 0)
	require.NoError(t, err)
	require.Len(t, versions, 1, "prune is per kind")

	require.NoError(t, repo.Clear(ctx, KindSearch))
	got, err = repo.List(ctx, KindSearch, 0)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestHistoryErrorsPropagate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO recall_entries").WillReturnError(errors.New("disk full"))
	require.EqualError(t, repo.Touch(ctx, KindSearch, "x", time.Now()), "disk full")

	mock.ExpectQuery("SELECT id, kind, value, uses, used_at FROM recall_entries").
		WithArgs(KindSearch, -1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "value", "uses", "used_at"}).
			AddRow("1", KindSearch, "budget", "not-a-number", time.Now()))
	_, err = repo.List(ctx, KindSearch, 0)
	require.Error(t, err)

	mock.ExpectQuery("SELECT id, kind, value, uses, used_at FROM recall_entries").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "value", "uses", "used_at"}).
			AddRow("1", KindSearch, "budget", 1, time.Now()).
			RowError(0, errors.New("io error")))
	_, err = repo.List(ctx, KindSearch, 5)
	require.EqualError(t, err, "io error")

	mock.ExpectExec("DELETE FROM recall_entries").
		WithArgs(KindVersion, KindVersion, 3).
		WillReturnResult(sqlmock.NewResult(0, 4))
	n, err := repo.Prune(ctx, KindVersion, 3)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM recall_entries").WithArgs(KindSearch).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM recall_entries").WithArgs(KindVersion).WillReturnError(errors.New("locked"))
	mock.ExpectRollback()
	require.EqualError(t, repo.Clear(ctx, KindSearch, KindVersion), "locked")

	require.NoError(t, mock.ExpectationsWereMet())
}
