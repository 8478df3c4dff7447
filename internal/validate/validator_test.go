package validate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/tabletalk/tabletalk/internal/model"
)

func TestValidateAcceptsAndAppendsLimit(t *testing.T) {
	sql, rej := Validate(
		"SELECT region, SUM(amount) AS total FROM sales GROUP BY region",
		[]string{"sales"}, 1000, 100)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	want := "SELECT region, SUM(amount) AS total FROM sales GROUP BY region LIMIT 100"
	if sql != want {
		t.Errorf("sanitized SQL = %q, want %q", sql, want)
	}
}

func TestValidateKeepsExistingLimit(t *testing.T) {
	sql, rej := Validate("SELECT * FROM sales LIMIT 50", []string{"sales"}, 1000, 100)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if sql != "SELECT * FROM sales LIMIT 50" {
		t.Errorf("sanitized SQL = %q, limit must not be rewritten", sql)
	}
}

func TestValidateRejections(t *testing.T) {
	allowed := []string{"sales", "users"}
	tests := []struct {
		name     string
		sql      string
		code     model.ReasonCode
		contains string
	}{
		{"second statement", "SELECT * FROM sales; DROP TABLE sales;", model.ReasonMultipleStatements, "single SQL statement"},
		{"not a select", "UPDATE sales SET amount = 0", model.ReasonNotReadOnly, "read-only"},
		{"delete keyword", "SELECT * FROM sales WHERE id IN (DELETE FROM users)", model.ReasonForbiddenKeyword, "DELETE"},
		{"lowercase keyword", "select * from sales where drop = 1", model.ReasonForbiddenKeyword, "DROP"},
		{"mixed case keyword", "SELECT TrUnCaTe FROM sales", model.ReasonForbiddenKeyword, "TRUNCATE"},
		{"line comment", "SELECT * FROM sales -- sneak", model.ReasonForbiddenConstruct, "line comments"},
		{"block comment", "SELECT /* hidden */ * FROM sales", model.ReasonForbiddenConstruct, "block comments"},
		{"union", "SELECT id FROM sales UNION SELECT id FROM users", model.ReasonForbiddenConstruct, "UNION"},
		{"intersect", "SELECT id FROM sales INTERSECT SELECT id FROM users", model.ReasonForbiddenConstruct, "INTERSECT"},
		{"cte", "WITH x AS (SELECT 1) SELECT * FROM x", model.ReasonNotReadOnly, "SELECT statements"},
		{"embedded cte", "SELECT * FROM sales WHERE id IN (WITH y AS (SELECT 1) SELECT 1)", model.ReasonForbiddenConstruct, "common table"},
		{"select into", "SELECT * INTO backup FROM sales", model.ReasonForbiddenConstruct, "INTO"},
		{"for update", "SELECT * FROM sales FOR UPDATE", model.ReasonForbiddenKeyword, "UPDATE"},
		{"for share", "SELECT * FROM sales FOR SHARE", model.ReasonForbiddenConstruct, "row locking"},
		{"information schema", "SELECT * FROM information_schema.tables", model.ReasonForbiddenConstruct, "system"},
		{"pg catalog", "SELECT * FROM pg_catalog.pg_tables", model.ReasonForbiddenConstruct, "system"},
		{"pg object", "SELECT pg_sleep(10)", model.ReasonForbiddenConstruct, "system"},
		{"table not allowed", "SELECT * FROM customers", model.ReasonTableNotAllowed, "customers"},
		{"join not allowed", "SELECT * FROM sales s JOIN orders o ON o.sale_id = s.id", model.ReasonTableNotAllowed, "orders"},
		{"comma list not allowed", "SELECT * FROM sales, customers", model.ReasonTableNotAllowed, "customers"},
		{"aliased comma list not allowed", "SELECT * FROM sales s, orders o WHERE o.sale_id = s.id", model.ReasonTableNotAllowed, "orders"},
		{"unterminated literal", "SELECT * FROM sales WHERE name = 'oops", model.ReasonForbiddenConstruct, "unterminated"},
		{"empty", "   ", model.ReasonNotReadOnly, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rej := Validate(tt.sql, allowed, 1000, 100)
			if rej == nil {
				t.Fatalf("expected rejection for %q, got none", tt.sql)
			}
			if rej.Code != tt.code {
				t.Errorf("reason = %s, want %s", rej.Code, tt.code)
			}
			if !strings.Contains(rej.Message, tt.contains) {
				t.Errorf("message %q does not contain %q", rej.Message, tt.contains)
			}
		})
	}
}

func TestValidateKeywordInsideLiteralIsAllowed(t *testing.T) {
	sql := "SELECT * FROM sales WHERE note = 'please do not DROP this; thanks'"
	got, rej := Validate(sql, []string{"sales"}, 1000, 100)
	if rej != nil {
		t.Fatalf("keyword inside string literal must not reject: %v", rej)
	}
	if !strings.HasPrefix(got, sql) {
		t.Errorf("sanitized SQL %q should preserve the original literal", got)
	}
}

func TestValidateEscapedQuoteInLiteral(t *testing.T) {
	_, rej := Validate("SELECT * FROM sales WHERE name = 'O''Brien'", []string{"sales"}, 1000, 100)
	if rej != nil {
		t.Fatalf("doubled-quote escape must stay inside the literal: %v", rej)
	}
}

func TestValidateLimitCeiling(t *testing.T) {
	// Explicit LIMIT above the ceiling is rejected, not clamped.
	_, rej := Validate("SELECT * FROM sales LIMIT 5000", []string{"sales"}, 1000, 100)
	if rej == nil {
		t.Fatal("expected LimitExceeded rejection")
	}
	if rej.Code != model.ReasonLimitExceeded {
		t.Errorf("reason = %s, want %s", rej.Code, model.ReasonLimitExceeded)
	}
	if !strings.Contains(rej.Message, "5000") || !strings.Contains(rej.Message, "1000") {
		t.Errorf("message should name both the requested and maximum limits: %q", rej.Message)
	}

	// At the ceiling is fine.
	if _, rej := Validate("SELECT * FROM sales LIMIT 1000", []string{"sales"}, 1000, 100); rej != nil {
		t.Errorf("LIMIT equal to the ceiling must pass: %v", rej)
	}
}

func TestValidateCommaListAllAllowed(t *testing.T) {
	_, rej := Validate("SELECT * FROM sales, users", []string{"sales", "users"}, 1000, 100)
	if rej != nil {
		t.Fatalf("comma-separated from-list within the allowlist must pass: %v", rej)
	}
}

func TestValidateSubqueryLimitDoesNotBoundOuter(t *testing.T) {
	// A LIMIT inside a subquery bounds the subquery only; the outer statement
	// still gets the default appended.
	sql, rej := Validate("SELECT * FROM sales WHERE id IN (SELECT id FROM sales LIMIT 5)",
		[]string{"sales"}, 1000, 100)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if !strings.HasSuffix(sql, " LIMIT 100") {
		t.Errorf("sanitized SQL = %q, want the default limit appended", sql)
	}
}

func TestValidateTableNotAllowedEnumeratesPermitted(t *testing.T) {
	_, rej := Validate("SELECT * FROM customers", []string{"sales"}, 1000, 100)
	if rej == nil || rej.Code != model.ReasonTableNotAllowed {
		t.Fatalf("expected TableNotAllowed, got %v", rej)
	}
	if !strings.Contains(rej.Message, "permitted tables: sales") {
		t.Errorf("message must enumerate the caller's allowlist: %q", rej.Message)
	}
	if rej.Fragment != "customers" {
		t.Errorf("fragment = %q, want the offending table name", rej.Fragment)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	inputs := []string{
		"SELECT * FROM sales",
		"SELECT * FROM customers",
		"SELECT * FROM sales LIMIT 9999",
		"SELECT * FROM sales; DROP TABLE sales",
	}
	for _, in := range inputs {
		sql1, rej1 := Validate(in, []string{"sales"}, 1000, 100)
		sql2, rej2 := Validate(in, []string{"sales"}, 1000, 100)
		if sql1 != sql2 {
			t.Errorf("non-deterministic sanitized SQL for %q", in)
		}
		if fmt.Sprintf("%v", rej1) != fmt.Sprintf("%v", rej2) {
			t.Errorf("non-deterministic verdict for %q", in)
		}
	}
}

func TestTableRefs(t *testing.T) {
	tests := []struct {
		sql  string
		want []string
	}{
		{"SELECT * FROM sales", []string{"sales"}},
		{"SELECT * FROM public.sales", []string{"sales"}},
		{"SELECT * FROM sales s INNER JOIN users u ON u.id = s.user_id", []string{"sales", "users"}},
		{"SELECT * FROM sales LEFT JOIN orders ON orders.sale_id = sales.id JOIN users ON 1=1", []string{"orders", "sales", "users"}},
		{"SELECT * FROM sales, sales", []string{"sales"}},
		{"SELECT * FROM sales, customers", []string{"customers", "sales"}},
		{"SELECT * FROM sales s, customers c, orders o", []string{"customers", "orders", "sales"}},
		{"SELECT 1", nil},
	}
	for _, tt := range tests {
		got := TableRefs(tt.sql)
		if len(got) != len(tt.want) {
			t.Errorf("TableRefs(%q) = %v, want %v", tt.sql, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("TableRefs(%q) = %v, want %v", tt.sql, got, tt.want)
				break
			}
		}
	}
}
