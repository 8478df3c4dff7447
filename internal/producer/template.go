package producer

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tabletalk/tabletalk/internal/model"
)

var (
	countIntent = regexp.MustCompile(`\b(?:count|how many|number of)\b`)
	aggIntent   = regexp.MustCompile(`\b(sum|total|average|avg|mean)\b`)
	byIntent    = regexp.MustCompile(`\bby\s+([a-z_][a-z0-9_]*)`)
	limitIntent = regexp.MustCompile(`\b(?:top|first|limit)\s+(\d+)\b`)
	listIntent  = regexp.MustCompile(`\b(?:show|list|sample|display|give|get|see|view|what|which|all|rows?|records?|entries)\b`)
)

// FromTemplate matches the question against a fixed, ordered set of intent
// patterns and builds SQL from the schema alone. It is fully deterministic:
// same question and schema, same SQL. Returns false when no pattern applies,
// never a guessed query.
//
// Patterns, in matching order:
//
//	count:      "how many orders"            → SELECT COUNT(*) FROM orders
//	agg by:     "total amount by region"     → SELECT region, SUM(amount) FROM sales GROUP BY region
//	agg:        "average amount in sales"    → SELECT AVG(amount) FROM sales
//	columns:    "show region from sales"     → SELECT region FROM sales
//	sample:     "sample rows from sales"     → SELECT * FROM sales
//
// A LIMIT is added only when the question asks for one ("top 5"); otherwise
// the statement is left unbounded and downstream validation appends the
// default.
func FromTemplate(question string, schema map[string]model.Table) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(question))
	if q == "" || len(schema) == 0 {
		return "", false
	}

	table, ok := pickTable(q, schema)
	if !ok {
		return "", false
	}
	t := schema[table]

	if countIntent.MatchString(q) {
		return "SELECT COUNT(*) FROM " + table, true
	}

	if m := aggIntent.FindStringSubmatch(q); m != nil {
		fn := "SUM"
		if m[1] == "average" || m[1] == "avg" || m[1] == "mean" {
			fn = "AVG"
		}
		if col, ok := pickColumn(q, t); ok {
			if bm := byIntent.FindStringSubmatch(q); bm != nil && hasColumn(t, bm[1]) && bm[1] != col {
				group := bm[1]
				return fmt.Sprintf("SELECT %s, %s(%s) FROM %s GROUP BY %s", group, fn, col, table, group), true
			}
			return fmt.Sprintf("SELECT %s(%s) FROM %s", fn, col, table), true
		}
	}

	cols := columnsMentioned(q, t)
	limit := limitFromQuestion(q)

	if len(cols) > 0 {
		return "SELECT " + strings.Join(cols, ", ") + " FROM " + table + limit, true
	}
	if listIntent.MatchString(q) {
		return "SELECT * FROM " + table + limit, true
	}
	return "", false
}

// pickTable returns the table the question talks about: the one whose name
// appears as a whole word, or the only table when the schema has exactly one.
// Names are tried in sorted order so ties resolve the same way every time.
func pickTable(q string, schema map[string]model.Table) (string, bool) {
	names := make([]string, 0, len(schema))
	for n := range schema {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		if wordIn(q, n) || wordIn(q, strings.TrimSuffix(n, "s")) {
			return n, true
		}
	}
	if len(names) == 1 {
		return names[0], true
	}
	return "", false
}

// pickColumn returns the first column of t mentioned in the question,
// longest names first so "user_id" wins over "id".
func pickColumn(q string, t model.Table) (string, bool) {
	cols := t.ColumnNames()
	sort.Slice(cols, func(i, j int) bool {
		if len(cols[i]) != len(cols[j]) {
			return len(cols[i]) > len(cols[j])
		}
		return cols[i] < cols[j]
	})
	for _, c := range cols {
		if wordIn(q, c) {
			return c, true
		}
	}
	return "", false
}

// columnsMentioned returns every column of t named in the question, in
// declaration order.
func columnsMentioned(q string, t model.Table) []string {
	var out []string
	for _, c := range t.Columns {
		if wordIn(q, c.Name) {
			out = append(out, c.Name)
		}
	}
	return out
}

func hasColumn(t model.Table, name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

func limitFromQuestion(q string) string {
	if m := limitIntent.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return " LIMIT " + strconv.Itoa(n)
		}
	}
	if wordIn(q, "top") || wordIn(q, "first") {
		return " LIMIT 10"
	}
	return ""
}

func wordIn(q, word string) bool {
	if word == "" {
		return false
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(q)
}
