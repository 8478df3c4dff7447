// Package analytics keeps a bounded in-memory window of recent query
// executions and derives usage statistics from it. Everything here is derived
// data, lost on restart.
package analytics

import (
	"sort"
	"sync"
	"time"

	"github.com/tabletalk/tabletalk/internal/validate"
)

// Record is one executed (or failed) query.
type Record struct {
	UserID    string  `json:"user_id"`
	Question  string  `json:"question"`
	SQL       string  `json:"sql"`
	LatencyMs float64 `json:"latency_ms"`
	RowCount  int     `json:"row_count"`
	Error     string  `json:"error,omitempty"`
	At        time.Time
}

// Dashboard is the aggregate view served to admins.
type Dashboard struct {
	TotalQueries24h int          `json:"total_queries_24h"`
	AvgLatencyMs    float64      `json:"avg_latency_ms"`
	ErrorRatePct    float64      `json:"error_rate_pct"`
	TopTables       []NamedCount `json:"top_tables"`
	TopUsers        []NamedCount `json:"top_users"`
	HourlyTrend     []HourCount  `json:"hourly_trend"`
}

// HourCount is one hour's query volume.
type HourCount struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

const hourKey = "2006-01-02T15:00"

// NamedCount pairs a name with how often it occurred.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Tracker records executions into a fixed-size ring.
type Tracker struct {
	mu      sync.Mutex
	records []Record
	max     int
}

// New creates a tracker keeping at most maxRecords recent executions.
func New(maxRecords int) *Tracker {
	if maxRecords < 1 {
		maxRecords = 1
	}
	return &Tracker{max: maxRecords}
}

// Record appends one execution, dropping the oldest when full.
func (t *Tracker) Record(r Record) {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, r)
	if len(t.records) > t.max {
		t.records = t.records[len(t.records)-t.max:]
	}
}

// Dashboard aggregates the last 24 hours of activity.
func (t *Tracker) Dashboard() Dashboard {
	cutoff := time.Now().Add(-24 * time.Hour)

	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		total     int
		errs      int
		latencies float64
		succeeded int
	)
	tableCounts := make(map[string]int)
	userCounts := make(map[string]int)
	hourCounts := make(map[string]int)

	for _, r := range t.records {
		if r.At.Before(cutoff) {
			continue
		}
		total++
		userCounts[r.UserID]++
		hourCounts[r.At.Format(hourKey)]++
		if r.Error != "" {
			errs++
			continue
		}
		succeeded++
		latencies += r.LatencyMs
		for _, table := range validate.TableRefs(r.SQL) {
			tableCounts[table]++
		}
	}

	d := Dashboard{
		TotalQueries24h: total,
		TopTables:       topCounts(tableCounts, 10),
		TopUsers:        topCounts(userCounts, 10),
		HourlyTrend:     hourlyTrend(hourCounts),
	}
	if succeeded > 0 {
		d.AvgLatencyMs = latencies / float64(succeeded)
	}
	if total > 0 {
		d.ErrorRatePct = float64(errs) / float64(total) * 100
	}
	return d
}

// Slowest returns the n slowest successful executions, slowest first.
func (t *Tracker) Slowest(n int) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		if r.Error == "" {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LatencyMs > out[j].LatencyMs })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// hourlyTrend lays the per-hour counts out as 24 buckets, oldest first,
// zero-filled for quiet hours. Errors count toward volume too.
func hourlyTrend(counts map[string]int) []HourCount {
	start := time.Now().Truncate(time.Hour).Add(-23 * time.Hour)
	out := make([]HourCount, 0, 24)
	for i := 0; i < 24; i++ {
		h := start.Add(time.Duration(i) * time.Hour).Format(hourKey)
		out = append(out, HourCount{Hour: h, Count: counts[h]})
	}
	return out
}

func topCounts(counts map[string]int, n int) []NamedCount {
	out := make([]NamedCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, NamedCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
