// Package validate proves that a candidate SQL statement is safe to run: a
// single read-only SELECT, free of mutating keywords and escape constructs,
// referencing only allowlisted tables, with a bounded row limit. Validation is
// pure and deterministic; the only rewriting it ever performs is appending a
// LIMIT clause when none is present.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tabletalk/tabletalk/internal/model"
)

// forbiddenKeywords are mutating or administrative verbs that are never
// allowed as a whole token outside a quoted string literal.
var forbiddenKeywords = map[string]bool{
	"insert": true, "update": true, "delete": true, "drop": true,
	"alter": true, "truncate": true, "create": true, "grant": true,
	"revoke": true, "copy": true, "vacuum": true, "analyze": true,
	"lock": true,
}

// forbiddenConstructs are regex-detectable patterns that can combine result
// sets, redirect output, lock rows, or touch system metadata. They are checked
// in order on the literal-masked statement, so matches inside string literals
// do not count.
var forbiddenConstructs = []struct {
	pattern *regexp.Regexp
	message string
}{
	{regexp.MustCompile(`--`), "line comments are not allowed"},
	{regexp.MustCompile(`/\*`), "block comments are not allowed"},
	{regexp.MustCompile(`\bunion\b`), "UNION queries are not allowed"},
	{regexp.MustCompile(`\bintersect\b`), "INTERSECT queries are not allowed"},
	{regexp.MustCompile(`\bexcept\b`), "EXCEPT queries are not allowed"},
	{regexp.MustCompile(`\bwith\b`), "common table expressions are not allowed"},
	{regexp.MustCompile(`\binto\b`), "INTO clauses are not allowed"},
	{regexp.MustCompile(`\bfor\s+(?:update|share|no\s+key\s+update|key\s+share)\b`), "row locking clauses are not allowed"},
	{regexp.MustCompile(`\b(?:information_schema|pg_catalog|pg_[a-z0-9_]+|sqlite_master|sqlite_schema)\b`), "system catalog access is not allowed"},
	{regexp.MustCompile(`\b(?:mysql|sys|performance_schema)\s*\.`), "system schema access is not allowed"},
}

var (
	wordToken = regexp.MustCompile(`[a-z_][a-z0-9_$]*`)
	fromJoin  = regexp.MustCompile(`\b(?:from|join)\s+`)
	tableName = regexp.MustCompile(`^"?([a-zA-Z0-9_][a-zA-Z0-9_.$]*)"?`)
	// listNext consumes an optional alias and the comma between entries of a
	// comma-separated from-list, so every table in the list is extracted.
	listNext = regexp.MustCompile(`^\s*(?:(?:as\s+)?[a-z_][a-z0-9_$]*\s*)?,\s*`)
	limitNum = regexp.MustCompile(`\blimit\s+(\d+)`)
)

// Validate runs all safety checks on a candidate statement in a fixed order,
// short-circuiting at the first failure. On success it returns the sanitized
// SQL: identical to the input except that a LIMIT clause with defaultLimit is
// appended when the statement has none. An explicit LIMIT above maxLimit is
// rejected, never silently clamped, so callers are never misled into thinking
// they received all matching rows.
func Validate(sqlText string, allowedTables []string, maxLimit, defaultLimit int) (string, *model.Rejection) {
	s := strings.TrimSpace(sqlText)
	if s == "" {
		return "", &model.Rejection{
			Code:    model.ReasonNotReadOnly,
			Message: "the candidate query is empty",
		}
	}

	masked, terminated := maskLiterals(s)
	if !terminated {
		return "", &model.Rejection{
			Code:    model.ReasonForbiddenConstruct,
			Message: "unterminated string literal",
		}
	}

	// 1. Statement shape: exactly one statement, and it must be a SELECT.
	// A semicolon outside a quoted literal that is followed by anything
	// non-blank means a second statement is riding along.
	if idx := strings.IndexByte(masked, ';'); idx >= 0 {
		if strings.TrimSpace(masked[idx+1:]) != "" {
			return "", &model.Rejection{
				Code:     model.ReasonMultipleStatements,
				Message:  "only a single SQL statement is allowed",
				Fragment: strings.TrimSpace(s[idx:]),
			}
		}
		s = strings.TrimSpace(s[:idx])
		masked = masked[:idx]
	}

	lower := strings.ToLower(masked)
	if first := firstToken(lower); first != "select" {
		return "", &model.Rejection{
			Code:     model.ReasonNotReadOnly,
			Message:  "only SELECT statements are allowed; this system is read-only and cannot modify data",
			Fragment: first,
		}
	}

	// 2. Forbidden keywords as whole tokens outside string literals.
	for _, tok := range wordToken.FindAllString(lower, -1) {
		if forbiddenKeywords[tok] {
			return "", &model.Rejection{
				Code:     model.ReasonForbiddenKeyword,
				Message:  fmt.Sprintf("forbidden keyword %q detected; this system is read-only and only supports SELECT queries", strings.ToUpper(tok)),
				Fragment: tok,
			}
		}
	}

	// 3. Forbidden constructs.
	for _, fc := range forbiddenConstructs {
		if loc := fc.pattern.FindStringIndex(lower); loc != nil {
			return "", &model.Rejection{
				Code:     model.ReasonForbiddenConstruct,
				Message:  "unsafe SQL pattern: " + fc.message,
				Fragment: lower[loc[0]:loc[1]],
			}
		}
	}

	// 4 & 5. Every table referenced in the from/join graph must be in the
	// caller's allowlist. The rejection names the offender and enumerates
	// what the role is permitted to query.
	allowed := make(map[string]bool, len(allowedTables))
	permitted := make([]string, 0, len(allowedTables))
	for _, t := range allowedTables {
		lt := strings.ToLower(t)
		if !allowed[lt] {
			allowed[lt] = true
			permitted = append(permitted, lt)
		}
	}
	sort.Strings(permitted)

	for _, ref := range TableRefs(lower) {
		if !allowed[ref] {
			return "", &model.Rejection{
				Code: model.ReasonTableNotAllowed,
				Message: fmt.Sprintf("access to table %q is not permitted; permitted tables: %s",
					ref, strings.Join(permitted, ", ")),
				Fragment: ref,
			}
		}
	}

	// 6. Limit enforcement. Only a LIMIT outside all parentheses bounds the
	// statement; one inside a subquery bounds the subquery and nothing else.
	if val, frag, ok := topLevelLimit(lower); ok {
		n, err := strconv.Atoi(val)
		if err != nil || n > maxLimit {
			return "", &model.Rejection{
				Code:     model.ReasonLimitExceeded,
				Message:  fmt.Sprintf("LIMIT %s exceeds the maximum of %d; lower the limit or narrow the question", val, maxLimit),
				Fragment: frag,
			}
		}
	} else {
		s = s + " LIMIT " + strconv.Itoa(defaultLimit)
	}

	return s, nil
}

// TableRefs extracts the set of plain table names referenced after FROM and
// JOIN keywords, including every entry of a comma-separated from-list. Schema
// prefixes are stripped, names lowercased, deduplicated, sorted. It operates
// on a lightweight token scan, not a full SQL grammar.
func TableRefs(sqlText string) []string {
	lower := strings.ToLower(sqlText)
	seen := make(map[string]bool)
	var refs []string
	for _, loc := range fromJoin.FindAllStringIndex(lower, -1) {
		pos := loc[1]
		for {
			m := tableName.FindStringSubmatch(lower[pos:])
			if m == nil {
				break
			}
			name := m[1]
			if i := strings.LastIndexByte(name, '.'); i >= 0 {
				name = name[i+1:]
			}
			if name != "" && !seen[name] {
				seen[name] = true
				refs = append(refs, name)
			}
			pos += len(m[0])
			next := listNext.FindString(lower[pos:])
			if next == "" {
				break
			}
			pos += len(next)
		}
	}
	sort.Strings(refs)
	return refs
}

// topLevelLimit finds a LIMIT clause at parenthesis depth zero and returns
// its numeric argument and matched text.
func topLevelLimit(s string) (value, fragment string, ok bool) {
	for _, m := range limitNum.FindAllStringSubmatchIndex(s, -1) {
		depth := 0
		for i := 0; i < m[0]; i++ {
			switch s[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
		}
		if depth == 0 {
			return s[m[2]:m[3]], s[m[0]:m[1]], true
		}
	}
	return "", "", false
}

// maskLiterals replaces the contents of single-quoted string literals with
// spaces so downstream checks cannot be fooled by keywords or separators
// hidden inside data values. Doubled quotes ('') inside a literal are the
// standard escape and stay within the literal. Returns false when a literal
// is left unterminated.
func maskLiterals(s string) (string, bool) {
	out := []byte(s)
	inLiteral := false
	for i := 0; i < len(out); i++ {
		if !inLiteral {
			if out[i] == '\'' {
				inLiteral = true
			}
			continue
		}
		if out[i] == '\'' {
			if i+1 < len(out) && out[i+1] == '\'' {
				out[i], out[i+1] = ' ', ' '
				i++
				continue
			}
			inLiteral = false
			continue
		}
		out[i] = ' '
	}
	return string(out), !inLiteral
}

func firstToken(s string) string {
	return wordToken.FindString(s)
}
