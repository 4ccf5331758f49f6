// Package store implements the SessionRepository port
// against libSQL, plus the audit event log the flow runner appends to on
// every transition: same driver, same connection PRAGMAs, same
// embed-migration approach, narrowed to the three tables microfactory
// actually needs (sessions, events, secrets).
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/microfactory-run/microfactory/internal/ports"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// LibSQLStore implements ports.SessionRepository plus the event log over
// a single libSQL database file.
type LibSQLStore struct {
	db *sql.DB
}

var _ ports.SessionRepository = (*LibSQLStore)(nil)

// Open opens (creating if needed) the libSQL database at path, applies
// connection PRAGMAs, and runs pending migrations.
func Open(ctx context.Context, path string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	s := &LibSQLStore{db: db}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// DB returns the underlying *sql.DB for advanced use (event log queries).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Save persists a Context snapshot atomically: last-writer-wins on
// concurrent writes to the same id. A single UPSERT under
// libSQL's default transaction semantics gives readers of the same id
// either the old row or the new one, never a partial write.
func (s *LibSQLStore) Save(ctx context.Context, id string, snapshot []byte, summary ports.SessionSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, snapshot, status, updated_at, provider, model, domain)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			snapshot=excluded.snapshot, status=excluded.status, updated_at=excluded.updated_at,
			provider=excluded.provider, model=excluded.model, domain=excluded.domain
	`, id, snapshot, summary.Status, summary.UpdatedAt, summary.Provider, summary.Model, summary.Domain)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodePersistence, "save session %s: %s", id, err.Error()).WithCause(err).WithSession(id)
	}
	return nil
}

// Load retrieves a snapshot and its summary, ok=false if not found.
func (s *LibSQLStore) Load(ctx context.Context, id string) ([]byte, ports.SessionSummary, bool, error) {
	var snapshot []byte
	var summary ports.SessionSummary
	summary.ID = id

	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot, status, updated_at, provider, model, domain FROM sessions WHERE id = ?`, id,
	).Scan(&snapshot, &summary.Status, &summary.UpdatedAt, &summary.Provider, &summary.Model, &summary.Domain)
	if err == sql.ErrNoRows {
		return nil, ports.SessionSummary{}, false, nil
	}
	if err != nil {
		return nil, ports.SessionSummary{}, false, schema.NewErrorf(schema.ErrCodePersistence, "load session %s: %s", id, err.Error()).WithCause(err).WithSession(id)
	}
	return snapshot, summary, true, nil
}

// List returns the most recently updated sessions, up to limit.
func (s *LibSQLStore) List(ctx context.Context, limit int) ([]ports.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, updated_at, provider, model, domain FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePersistence, "list sessions: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []ports.SessionSummary
	for rows.Next() {
		var summary ports.SessionSummary
		if err := rows.Scan(&summary.ID, &summary.Status, &summary.UpdatedAt, &summary.Provider, &summary.Model, &summary.Domain); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodePersistence, "scan session row: %s", err.Error()).WithCause(err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Delete removes a session and its event log entries.
func (s *LibSQLStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodePersistence, "begin delete tx: %s", err.Error()).WithCause(err).WithSession(id)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, id); err != nil {
		return schema.NewErrorf(schema.ErrCodePersistence, "delete events for %s: %s", id, err.Error()).WithCause(err).WithSession(id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return schema.NewErrorf(schema.ErrCodePersistence, "delete session %s: %s", id, err.Error()).WithCause(err).WithSession(id)
	}
	if err := tx.Commit(); err != nil {
		return schema.NewErrorf(schema.ErrCodePersistence, "commit delete tx: %s", err.Error()).WithCause(err).WithSession(id)
	}
	return nil
}
