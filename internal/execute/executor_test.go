package execute

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tabletalk/tabletalk/internal/model"
)

func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE sales (id INTEGER PRIMARY KEY, region TEXT, amount NUMERIC)`,
		`INSERT INTO sales (region, amount) VALUES ('north', 10), ('south', 20), ('north', 5)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatal(err)
		}
	}
	return db
}

func TestRunReturnsRows(t *testing.T) {
	e := New(testDB(t), "sqlite", 5*time.Second, 1000, slog.Default())

	res, rej := e.Run(context.Background(), "SELECT region, amount FROM sales ORDER BY id LIMIT 100")
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if len(res.Columns) != 2 || res.Columns[0] != "region" {
		t.Errorf("columns = %v", res.Columns)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(res.Rows))
	}
	if res.Rows[0]["region"] != "north" {
		t.Errorf("first row = %v", res.Rows[0])
	}
}

func TestRunCapsRows(t *testing.T) {
	e := New(testDB(t), "sqlite", 5*time.Second, 2, slog.Default())

	res, rej := e.Run(context.Background(), "SELECT * FROM sales")
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if len(res.Rows) != 2 {
		t.Errorf("row cap not enforced: got %d rows, want 2", len(res.Rows))
	}
}

func TestRunEmptyResultIsNotAnError(t *testing.T) {
	e := New(testDB(t), "sqlite", 5*time.Second, 1000, slog.Default())

	res, rej := e.Run(context.Background(), "SELECT * FROM sales WHERE amount > 9999")
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if len(res.Rows) != 0 || len(res.Columns) != 3 {
		t.Errorf("empty result should keep column metadata: cols=%v rows=%d", res.Columns, len(res.Rows))
	}
}

func TestRunFailureIsGeneric(t *testing.T) {
	e := New(testDB(t), "sqlite", 5*time.Second, 1000, slog.Default())

	_, rej := e.Run(context.Background(), "SELECT nope FROM missing_table")
	if rej == nil {
		t.Fatal("expected a rejection")
	}
	if rej.Code != model.ReasonExecutionFailed {
		t.Errorf("reason = %s, want %s", rej.Code, model.ReasonExecutionFailed)
	}
	// Database error text must never reach the caller.
	for _, leak := range []string{"missing_table", "nope", "no such"} {
		if strings.Contains(strings.ToLower(rej.Message), leak) {
			t.Errorf("message leaks database detail %q: %s", leak, rej.Message)
		}
	}
}

func TestRunDeadline(t *testing.T) {
	e := New(testDB(t), "sqlite", time.Nanosecond, 1000, slog.Default())

	_, rej := e.Run(context.Background(), "SELECT * FROM sales")
	if rej == nil {
		t.Fatal("expected a timeout rejection")
	}
	if rej.Code != model.ReasonExecutionTimeout {
		t.Errorf("reason = %s, want %s", rej.Code, model.ReasonExecutionTimeout)
	}
}

func TestRunIgnoresCallerCancellation(t *testing.T) {
	e := New(testDB(t), "sqlite", 5*time.Second, 1000, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The statement deadline, not the request context, bounds execution.
	res, rej := e.Run(ctx, "SELECT COUNT(*) AS n FROM sales")
	if rej != nil {
		t.Fatalf("cancelled caller must not abort execution: %v", rej)
	}
	if len(res.Rows) != 1 {
		t.Errorf("rows = %v", res.Rows)
	}
}
