// Package catalog maintains an in-memory snapshot of the target database
// schema. The snapshot is rebuilt by introspecting the live database and
// swapped in atomically, so readers always see a complete, consistent view
// and never block on a refresh in progress.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tabletalk/tabletalk/internal/model"
)

// Snapshot is one immutable view of the database schema. Table names are
// lowercased and unique.
type Snapshot struct {
	Tables    map[string]model.Table
	FetchedAt time.Time
}

// TableNames returns the sorted table names in the snapshot.
func (s *Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for n := range s.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Catalog introspects a database and caches the result for a configurable
// TTL. A stale snapshot is still served while a fresh one is being built;
// only the very first access blocks on introspection.
type Catalog struct {
	db         *sqlx.DB
	dialect    string
	schemaName string
	ttl        time.Duration
	logger     *slog.Logger

	current    atomic.Pointer[Snapshot]
	refreshing atomic.Bool
}

// New creates a catalog for the given database handle. dialect is one of
// postgres, mysql, sqlite, sqlserver. schemaName may be empty, in which case
// the dialect default is used (public for postgres, dbo for sqlserver).
func New(db *sqlx.DB, dialect, schemaName string, ttl time.Duration, logger *slog.Logger) *Catalog {
	if schemaName == "" {
		switch dialect {
		case "postgres":
			schemaName = "public"
		case "sqlserver":
			schemaName = "dbo"
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		db:         db,
		dialect:    dialect,
		schemaName: schemaName,
		ttl:        ttl,
		logger:     logger,
	}
}

// Snapshot returns the current schema snapshot. The first call introspects
// synchronously. Later calls return the cached snapshot immediately; when it
// has passed the TTL, a refresh is kicked off in the background and the stale
// snapshot is served in the meantime.
func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := c.current.Load()
	if snap == nil {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
		return c.current.Load(), nil
	}

	if time.Since(snap.FetchedAt) > c.ttl && c.refreshing.CompareAndSwap(false, true) {
		go func() {
			defer c.refreshing.Store(false)
			rctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := c.Refresh(rctx); err != nil {
				c.logger.Warn("schema refresh failed, serving stale snapshot",
					"error", err, "snapshot_age", time.Since(snap.FetchedAt).String())
			}
		}()
	}
	return snap, nil
}

// Refresh introspects the database and atomically replaces the snapshot.
// On failure the previous snapshot, if any, stays in place.
func (c *Catalog) Refresh(ctx context.Context) error {
	var (
		tables map[string]model.Table
		err    error
	)
	switch c.dialect {
	case "sqlite":
		tables, err = c.introspectSQLite(ctx)
	case "mysql":
		tables, err = c.introspectInfoSchema(ctx, mysqlColumnsQuery)
	case "postgres", "sqlserver":
		tables, err = c.introspectInfoSchema(ctx, c.db.Rebind(schemaColumnsQuery), c.schemaName)
	default:
		return fmt.Errorf("unsupported dialect %q", c.dialect)
	}
	if err != nil {
		return fmt.Errorf("introspect schema: %w", err)
	}

	c.current.Store(&Snapshot{Tables: tables, FetchedAt: time.Now()})
	c.logger.Debug("schema snapshot refreshed", "tables", len(tables))
	return nil
}

// Start refreshes the snapshot on a fixed interval until ctx is cancelled.
// Run it in its own goroutine.
func (c *Catalog) Start(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := c.Refresh(rctx); err != nil {
				c.logger.Warn("periodic schema refresh failed", "error", err)
			}
			cancel()
		}
	}
}

const schemaColumnsQuery = `
	SELECT table_name, column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = ?
	ORDER BY table_name, ordinal_position`

const mysqlColumnsQuery = `
	SELECT table_name, column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = DATABASE()
	ORDER BY table_name, ordinal_position`

type columnRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
	DataType   string `db:"data_type"`
}

func (c *Catalog) introspectInfoSchema(ctx context.Context, query string, args ...interface{}) (map[string]model.Table, error) {
	var rows []columnRow
	if err := c.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	now := time.Now()
	tables := make(map[string]model.Table)
	for _, row := range rows {
		name := strings.ToLower(row.TableName)
		t, ok := tables[name]
		if !ok {
			t = model.Table{Name: name, FetchedAt: now}
		}
		t.Columns = append(t.Columns, model.Column{
			Name: strings.ToLower(row.ColumnName),
			Type: strings.ToLower(row.DataType),
		})
		tables[name] = t
	}
	return tables, nil
}

// tableInfoRow holds a row from PRAGMA table_info().
type tableInfoRow struct {
	CID     int     `db:"cid"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	NotNull int     `db:"notnull"`
	Default *string `db:"dflt_value"`
	PK      int     `db:"pk"`
}

func (c *Catalog) introspectSQLite(ctx context.Context) (map[string]model.Table, error) {
	const namesQuery = `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	var names []string
	if err := c.db.SelectContext(ctx, &names, namesQuery); err != nil {
		return nil, err
	}

	now := time.Now()
	tables := make(map[string]model.Table, len(names))
	for _, name := range names {
		var cols []tableInfoRow
		pragma := fmt.Sprintf("PRAGMA table_info(%q)", name)
		if err := c.db.SelectContext(ctx, &cols, pragma); err != nil {
			return nil, fmt.Errorf("table_info for %q: %w", name, err)
		}

		t := model.Table{Name: strings.ToLower(name), FetchedAt: now}
		for _, col := range cols {
			t.Columns = append(t.Columns, model.Column{
				Name: strings.ToLower(col.Name),
				Type: strings.ToLower(col.Type),
			})
		}
		tables[t.Name] = t
	}
	return tables, nil
}

// FormatForPrompt renders a set of tables as compact one-line descriptions,
// one table per line, for inclusion in a generation prompt:
//
//	sales(id integer, region text, amount numeric)
//	users(id integer, name text)
func FormatForPrompt(tables map[string]model.Table) string {
	names := make([]string, 0, len(tables))
	for n := range tables {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		t := tables[name]
		b.WriteString(t.Name)
		b.WriteByte('(')
		for j, col := range t.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(col.Name)
			b.WriteByte(' ')
			b.WriteString(col.Type)
		}
		b.WriteByte(')')
	}
	return b.String()
}
