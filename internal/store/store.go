// Package store persists application state that must survive restarts: saved
// queries and the query audit log. It is backed by its own SQLite database,
// separate from the data warehouse being queried.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tabletalk/tabletalk/internal/model"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store manages saved queries and the query log.
type Store struct {
	db *sqlx.DB
}

// New creates a store rooted at dataDir. Pass empty string for in-memory.
func New(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "tabletalk.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS saved_queries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			question TEXT NOT NULL,
			sql_text TEXT NOT NULL,
			run_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS query_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			question TEXT NOT NULL,
			sql_text TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			latency_ms REAL NOT NULL DEFAULT 0,
			row_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_saved_queries_user ON saved_queries(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_query_log_user ON query_log(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_query_log_created ON query_log(created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Saved queries
// ---------------------------------------------------------------------------

// SaveQuery stores a bookmarked query for a user and returns it with its
// generated ID.
func (s *Store) SaveQuery(ctx context.Context, userID, name, question, sqlText string) (*model.SavedQuery, error) {
	sq := &model.SavedQuery{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     name,
		Question: question,
		SQL:      sqlText,
	}
	const q = `INSERT INTO saved_queries (id, user_id, name, question, sql_text)
		VALUES (:id, :user_id, :name, :question, :sql_text)`
	if _, err := s.db.NamedExecContext(ctx, q, sq); err != nil {
		return nil, fmt.Errorf("save query: %w", err)
	}
	return s.GetSavedQuery(ctx, userID, sq.ID)
}

// GetSavedQuery fetches one saved query owned by userID.
func (s *Store) GetSavedQuery(ctx context.Context, userID, id string) (*model.SavedQuery, error) {
	var sq model.SavedQuery
	const q = `SELECT id, user_id, name, question, sql_text, run_count, created_at
		FROM saved_queries WHERE id = ? AND user_id = ?`
	if err := s.db.GetContext(ctx, &sq, q, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get saved query: %w", err)
	}
	return &sq, nil
}

// ListSavedQueries returns a user's saved queries, newest first.
func (s *Store) ListSavedQueries(ctx context.Context, userID string) ([]model.SavedQuery, error) {
	out := []model.SavedQuery{}
	const q = `SELECT id, user_id, name, question, sql_text, run_count, created_at
		FROM saved_queries WHERE user_id = ? ORDER BY created_at DESC, id`
	if err := s.db.SelectContext(ctx, &out, q, userID); err != nil {
		return nil, fmt.Errorf("list saved queries: %w", err)
	}
	return out, nil
}

// SearchSavedQueries matches a user's saved queries by name or question text.
func (s *Store) SearchSavedQueries(ctx context.Context, userID, term string) ([]model.SavedQuery, error) {
	out := []model.SavedQuery{}
	pattern := "%" + term + "%"
	const q = `SELECT id, user_id, name, question, sql_text, run_count, created_at
		FROM saved_queries
		WHERE user_id = ? AND (name LIKE ? OR question LIKE ?)
		ORDER BY created_at DESC, id`
	if err := s.db.SelectContext(ctx, &out, q, userID, pattern, pattern); err != nil {
		return nil, fmt.Errorf("search saved queries: %w", err)
	}
	return out, nil
}

// TouchSavedQuery increments a saved query's run counter.
func (s *Store) TouchSavedQuery(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE saved_queries SET run_count = run_count + 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("touch saved query: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSavedQuery removes one saved query owned by userID.
func (s *Store) DeleteSavedQuery(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM saved_queries WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete saved query: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Query log
// ---------------------------------------------------------------------------

// Append writes one audit record.
func (s *Store) Append(ctx context.Context, rec model.QueryLogRecord) error {
	const q = `INSERT INTO query_log (user_id, question, sql_text, status, error_message, latency_ms, row_count)
		VALUES (:user_id, :question, :sql_text, :status, :error_message, :latency_ms, :row_count)`
	if _, err := s.db.NamedExecContext(ctx, q, rec); err != nil {
		return fmt.Errorf("append query log: %w", err)
	}
	return nil
}

// RecentLogs returns the newest limit audit records.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]model.QueryLogRecord, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}
	out := []model.QueryLogRecord{}
	const q = `SELECT id, user_id, question, sql_text, status, error_message, latency_ms, row_count, created_at
		FROM query_log ORDER BY id DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	return out, nil
}
