package state

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/nmiodice/strava-drive-export/internal/database"
)

// PostgresCursorStore keeps one cursor row per export name.
type PostgresCursorStore struct {
	db   *database.DB
	name string
}

var _ CursorStore = (*PostgresCursorStore)(nil)

func NewPostgresCursorStore(db *database.DB, name string) *PostgresCursorStore {
	return &PostgresCursorStore{db: db, name: name}
}

// EnsureSchema creates the cursor table if it does not exist yet.
func (s *PostgresCursorStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Pool.Exec(ctx, createCursorTableSQL); err != nil {
		return fmt.Errorf("creating ExportCursor table: %w", err)
	}
	return nil
}

func (s *PostgresCursorStore) LastCursor(ctx context.Context) (*Cursor, error) {
	var cursor *Cursor

	err := s.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, "SELECT since, run_id, updated_at FROM ExportCursor WHERE name = $1", s.name)

		c := Cursor{}
		if err := row.Scan(&c.Since, &c.RunID, &c.UpdatedAt); err != nil {
			if err == pgx.ErrNoRows {
				return nil
			}
			return fmt.Errorf("fetching export cursor: %w", err)
		}
		c.Since = c.Since.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		cursor = &c

		return nil
	})

	return cursor, err
}

func (s *PostgresCursorStore) SaveCursor(ctx context.Context, c Cursor) error {
	return s.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, upsertCursorSQL, s.name, c.Since, c.RunID, c.UpdatedAt)

		var name string
		if err := row.Scan(&name); err != nil {
			return fmt.Errorf("saving export cursor: %w", err)
		}

		return nil
	})
}

var createCursorTableSQL = `
CREATE TABLE IF NOT EXISTS ExportCursor (
	name       TEXT PRIMARY KEY,
	since      TIMESTAMPTZ NOT NULL,
	run_id     TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

var upsertCursorSQL = `
INSERT INTO
	ExportCursor
	(name, since, run_id, updated_at)
VALUES
	($1, $2, $3, $4)
ON CONFLICT
	(name)
	DO UPDATE SET since=EXCLUDED.since, run_id=EXCLUDED.run_id, updated_at=EXCLUDED.updated_at
RETURNING
	name`
