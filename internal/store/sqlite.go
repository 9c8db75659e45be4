package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/thermocert/thermocert/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	category   TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	body       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS results_updated_at ON results(updated_at);
`

// SQLite persists results as JSON documents in a single table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path, creating its parent
// directory if needed.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Save inserts or replaces e.
func (s *SQLite) Save(ctx context.Context, e *Entry) error {
	body, err := json.Marshal(e.Result)
	if err != nil {
		return fmt.Errorf("store: encode result %s: %w", e.Result.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO results (id, name, category, status, created_at, updated_at, body)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	category = excluded.category,
	status = excluded.status,
	updated_at = excluded.updated_at,
	body = excluded.body`,
		e.Result.ID, e.Result.Name, string(e.Result.Category), string(e.Result.Summary.Status),
		e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano(), string(body),
	)
	if err != nil {
		return fmt.Errorf("store: save result %s: %w", e.Result.ID, err)
	}
	return nil
}

// Delete removes the result id. Deleting an unknown id is not an error.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete result %s: %w", id, err)
	}
	return nil
}

// LoadAll returns every persisted entry, oldest first.
func (s *SQLite) LoadAll(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT created_at, updated_at, body FROM results ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: load results: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var (
			created, updated int64
			body             string
		)
		if err := rows.Scan(&created, &updated, &body); err != nil {
			return nil, fmt.Errorf("store: scan result: %w", err)
		}
		var res types.TestResult
		if err := json.Unmarshal([]byte(body), &res); err != nil {
			return nil, fmt.Errorf("store: decode result: %w", err)
		}
		out = append(out, &Entry{
			Result:    &res,
			CreatedAt: time.Unix(0, created),
			UpdatedAt: time.Unix(0, updated),
		})
	}
	return out, rows.Err()
}

// Prune deletes results not updated since before and returns how many were
// removed.
func (s *SQLite) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE updated_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return res.RowsAffected()
}
