package model

// Answer is the successful result of a pipeline run: the SQL that was
// executed, the materialized rows, and request metadata.
type Answer struct {
	Question    string           `json:"question"`
	SQL         string           `json:"sql"`
	Columns     []string         `json:"columns"`
	Rows        []map[string]any `json:"rows"`
	RowCount    int              `json:"row_count"`
	Source      string           `json:"source"` // "generated", "template", or "cache"
	CacheHit    bool             `json:"cache_hit"`
	Explanation string           `json:"explanation,omitempty"`
	LatencyMs   float64          `json:"latency_ms"`
}

// CacheStats reports the current state of the result cache.
type CacheStats struct {
	EntryCount int   `json:"entry_count"`
	MaxEntries int   `json:"max_entries"`
	TTLSeconds int64 `json:"ttl_seconds"`
	HitCount   int64 `json:"hit_count"`
}
