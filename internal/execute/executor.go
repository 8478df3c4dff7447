// Package execute runs an already-validated SELECT under hard resource
// bounds: a read-only transaction, a statement deadline enforced locally, and
// a cap on materialized rows. The read-only transaction is a session-level
// guarantee, so even a statement that slipped past validation cannot mutate
// anything.
package execute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tabletalk/tabletalk/internal/model"
)

// Result holds the materialized rows of one statement.
type Result struct {
	Columns []string
	Rows    []map[string]any
	Elapsed time.Duration
}

// Executor runs single statements against one database handle.
type Executor struct {
	db      *sqlx.DB
	dialect string
	timeout time.Duration
	maxRows int
	logger  *slog.Logger
}

// New creates an executor. timeout is the per-statement deadline, maxRows the
// hard cap on rows returned regardless of the statement's own LIMIT.
func New(db *sqlx.DB, dialect string, timeout time.Duration, maxRows int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{db: db, dialect: dialect, timeout: timeout, maxRows: maxRows, logger: logger}
}

// Run executes one sanitized statement and materializes its rows. The
// deadline is enforced here with a derived context, not delegated to the
// database, so a hung backend cannot hang the pipeline. The transaction is
// opened read-only and always closed, on every exit path. Failures come back
// as a Rejection with a generic message; raw database error text is logged
// but never returned, so schema details cannot leak to the caller.
//
// The deadline context is derived from context.Background rather than the
// request context: a disconnecting caller must not abandon a statement
// mid-flight, it runs to its own deadline and closes normally.
func (e *Executor) Run(ctx context.Context, sanitizedSQL string) (*Result, *model.Rejection) {
	runCtx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	start := time.Now()

	// The sqlite driver does not implement read-only transactions; there the
	// single-statement SELECT contract is the only layer. Every server-grade
	// dialect gets the session-level guarantee.
	tx, err := e.db.BeginTxx(runCtx, &sql.TxOptions{ReadOnly: e.dialect != "sqlite"})
	if err != nil {
		return nil, e.failure(sanitizedSQL, "begin transaction", err)
	}
	// Read-only means there is never anything to commit.
	defer tx.Rollback()

	if stmt := e.sessionTimeoutStatement(); stmt != "" {
		if _, err := tx.ExecContext(runCtx, stmt); err != nil {
			return nil, e.failure(sanitizedSQL, "set statement timeout", err)
		}
	}

	rows, err := tx.QueryxContext(runCtx, sanitizedSQL)
	if err != nil {
		return nil, e.failure(sanitizedSQL, "query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, e.failure(sanitizedSQL, "read columns", err)
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		if len(out) >= e.maxRows {
			break
		}
		row := make(map[string]any, len(columns))
		if err := rows.MapScan(row); err != nil {
			return nil, e.failure(sanitizedSQL, "scan row", err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, e.failure(sanitizedSQL, "iterate rows", err)
	}

	return &Result{Columns: columns, Rows: out, Elapsed: time.Since(start)}, nil
}

// sessionTimeoutStatement returns a dialect-specific statement that makes the
// database enforce the deadline on its side too. The local context deadline
// is the authoritative bound; this is the second layer.
func (e *Executor) sessionTimeoutStatement() string {
	ms := e.timeout.Milliseconds()
	switch e.dialect {
	case "postgres":
		return fmt.Sprintf("SET LOCAL statement_timeout = %d", ms)
	case "mysql":
		return fmt.Sprintf("SET SESSION max_execution_time = %d", ms)
	default:
		return ""
	}
}

func (e *Executor) failure(sqlText, stage string, err error) *model.Rejection {
	if errors.Is(err, context.DeadlineExceeded) {
		e.logger.Warn("statement deadline exceeded", "stage", stage, "timeout", e.timeout.String())
		return &model.Rejection{
			Code:    model.ReasonExecutionTimeout,
			Message: fmt.Sprintf("the query did not complete within %s; try narrowing the question", e.timeout),
		}
	}
	// The raw error may contain table names, column names, or host details.
	// Log it, return a generic message.
	e.logger.Error("query execution failed", "stage", stage, "error", err, "sql", sqlText)
	return &model.Rejection{
		Code:    model.ReasonExecutionFailed,
		Message: "the query could not be executed against the database",
	}
}
