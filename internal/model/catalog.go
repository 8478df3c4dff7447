package model

import "time"

// Table describes a single table in a catalog snapshot. Names are
// case-normalized (lowercase) and unique within a snapshot.
type Table struct {
	Name      string    `json:"name"`
	Columns   []Column  `json:"columns"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Column describes one column of a table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"db_type"`
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
