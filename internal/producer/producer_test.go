package producer

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/model"
)

type fakeEngine struct {
	sql string
	err error
}

func (f *fakeEngine) GenerateSQL(_ context.Context, _, _ string) (string, error) {
	return f.sql, f.err
}

func testSchema() map[string]model.Table {
	return map[string]model.Table{
		"sales": {Name: "sales", Columns: []model.Column{
			{Name: "id", Type: "integer"},
			{Name: "region", Type: "text"},
			{Name: "amount", Type: "numeric"},
		}},
		"users": {Name: "users", Columns: []model.Column{
			{Name: "id", Type: "integer"},
			{Name: "name", Type: "text"},
			{Name: "email", Type: "text"},
		}},
	}
}

func TestProduceUsesEngine(t *testing.T) {
	p := New(&fakeEngine{sql: "SELECT region FROM sales"}, slog.Default())

	cand, rej := p.Produce(context.Background(), "show regions", testSchema())
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if cand.Source != SourceGenerated {
		t.Errorf("source = %q, want %q", cand.Source, SourceGenerated)
	}
	if cand.SQL != "SELECT region FROM sales" {
		t.Errorf("sql = %q", cand.SQL)
	}
}

func TestProduceFallsBackToTemplate(t *testing.T) {
	p := New(&fakeEngine{err: llm.ErrUnavailable}, slog.Default())

	cand, rej := p.Produce(context.Background(), "how many sales are there", testSchema())
	if rej != nil {
		t.Fatalf("engine failure must degrade to template, got rejection: %v", rej)
	}
	if cand.Source != SourceTemplate {
		t.Errorf("source = %q, want %q", cand.Source, SourceTemplate)
	}
	if cand.SQL != "SELECT COUNT(*) FROM sales" {
		t.Errorf("sql = %q", cand.SQL)
	}
}

func TestProduceNoEngineNoMatch(t *testing.T) {
	p := New(nil, slog.Default())

	_, rej := p.Produce(context.Background(), "what is the meaning of life", testSchema())
	if rej == nil {
		t.Fatal("expected TemplateUnmatched rejection")
	}
	if rej.Code != model.ReasonTemplateUnmatched {
		t.Errorf("reason = %s, want %s", rej.Code, model.ReasonTemplateUnmatched)
	}
	if !strings.Contains(rej.Message, "could not understand") {
		t.Errorf("message should explain the failure: %q", rej.Message)
	}
}

func TestFromTemplatePatterns(t *testing.T) {
	schema := testSchema()
	tests := []struct {
		name     string
		question string
		want     string
	}{
		{"count", "how many sales do we have", "SELECT COUNT(*) FROM sales"},
		{"count number of", "number of users", "SELECT COUNT(*) FROM users"},
		{"sum grouped", "total amount by region in sales", "SELECT region, SUM(amount) FROM sales GROUP BY region"},
		{"average", "average amount in sales", "SELECT AVG(amount) FROM sales"},
		{"columns", "show region and amount from sales", "SELECT region, amount FROM sales"},
		{"sample", "sample rows from users", "SELECT * FROM users"},
		{"top n", "show top 5 rows from sales", "SELECT * FROM sales LIMIT 5"},
		{"bare top", "show top users", "SELECT * FROM users LIMIT 10"},
		{"singular table name", "list all user records", "SELECT * FROM users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromTemplate(tt.question, schema)
			if !ok {
				t.Fatalf("no template matched %q", tt.question)
			}
			if got != tt.want {
				t.Errorf("FromTemplate(%q) = %q, want %q", tt.question, got, tt.want)
			}
		})
	}
}

func TestFromTemplateNoMatch(t *testing.T) {
	schema := testSchema()
	for _, q := range []string{
		"",
		"tell me a joke",
		"how many customers",                // table not in schema, two tables visible
		"what is the average of everything", // no column mentioned
	} {
		if sql, ok := FromTemplate(q, schema); ok {
			t.Errorf("FromTemplate(%q) matched unexpectedly: %q", q, sql)
		}
	}
}

func TestFromTemplateSingleTableDefault(t *testing.T) {
	schema := map[string]model.Table{
		"sales": {Name: "sales", Columns: []model.Column{{Name: "amount", Type: "numeric"}}},
	}
	got, ok := FromTemplate("show me some rows", schema)
	if !ok || got != "SELECT * FROM sales" {
		t.Errorf("single-table schema should not require naming the table, got %q ok=%v", got, ok)
	}
}

func TestFromTemplateIsDeterministic(t *testing.T) {
	schema := testSchema()
	first, ok1 := FromTemplate("total amount by region in sales", schema)
	second, ok2 := FromTemplate("total amount by region in sales", schema)
	if ok1 != ok2 || first != second {
		t.Errorf("template output differs across calls: %q vs %q", first, second)
	}
}
