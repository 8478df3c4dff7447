package model

import "time"

// SavedQuery is a user-bookmarked question and the SQL it produced.
type SavedQuery struct {
	ID        string    `json:"query_id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Question  string    `json:"question" db:"question"`
	SQL       string    `json:"sql" db:"sql_text"`
	RunCount  int64     `json:"run_count" db:"run_count"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// QueryLogRecord is one entry in the query audit trail.
type QueryLogRecord struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Question  string    `json:"question" db:"question"`
	SQL       string    `json:"sql" db:"sql_text"`
	Status    string    `json:"status" db:"status"` // "success" or "rejected"
	Error     string    `json:"error,omitempty" db:"error_message"`
	LatencyMs float64   `json:"latency_ms" db:"latency_ms"`
	RowCount  int       `json:"rows_returned" db:"row_count"`
	CreatedAt time.Time `json:"timestamp" db:"created_at"`
}
