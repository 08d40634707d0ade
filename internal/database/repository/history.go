package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/jask/powerpolicy/internal/database"
)

// Recall kinds.
const (
	KindSearch  = "search"
	KindVersion = "version"
)

// RecallEntry is one remembered input.
type RecallEntry struct {
	ID     string
	Kind   string
	Value  string
	Uses   int
	UsedAt time.Time
}

// HistoryRepo handles recall_entries.
type HistoryRepo struct {
	db *sql.DB
}

func NewHistoryRepo(db *sql.DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// Touch records a use of value, inserting it on first use.
func (r *HistoryRepo) Touch(ctx context.Context, kind, value string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO recall_entries(id, kind, value, uses, used_at)
	VALUES (?, ?, ?, 1, ?)
	ON CONFLICT(kind, value) DO UPDATE SET
	 uses=uses+1,
	 used_at=excluded.used_at;
	`, uuid.NewString(), kind, value, at.UTC())
	return err
}

// List returns the most recently used entries of kind, newest first.
func (r *HistoryRepo) List(ctx context.Context, kind string, limit int) ([]RecallEntry, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, kind, value, uses, used_at FROM recall_entries
	WHERE kind = ?
	ORDER BY used_at DESC, uses DESC
	LIMIT ?`, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecallEntry
	for rows.Next() {
		var e RecallEntry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Value, &e.Uses, &e.UsedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune keeps the keep most recent entries of kind and deletes the rest.
func (r *HistoryRepo) Prune(ctx context.Context, kind string, keep int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	DELETE FROM recall_entries
	WHERE kind = ? AND id NOT IN (
	 SELECT id FROM recall_entries WHERE kind = ? ORDER BY used_at DESC, uses DESC LIMIT ?
	)`, kind, kind, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Clear deletes every entry of the given kinds in one transaction.
func (r *HistoryRepo) Clear(ctx context.Context, kinds ...string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, kind := range kinds {
			if _, err := tx.ExecContext(ctx, `DELETE FROM recall_entries WHERE kind = ?`, kind); err != nil {
				return err
			}
		}
		return nil
	})
}
