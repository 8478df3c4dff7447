package analytics

import (
	"fmt"
	"testing"
	"time"
)

func TestDashboardAggregates(t *testing.T) {
	tr := New(100)
	tr.Record(Record{UserID: "u1", SQL: "SELECT * FROM sales", LatencyMs: 10, RowCount: 3})
	tr.Record(Record{UserID: "u1", SQL: "SELECT * FROM sales JOIN users ON 1=1", LatencyMs: 30, RowCount: 1})
	tr.Record(Record{UserID: "u2", SQL: "SELECT * FROM users", LatencyMs: 20, RowCount: 5})
	tr.Record(Record{UserID: "u2", Question: "bad", Error: "execution_failed"})

	d := tr.Dashboard()
	if d.TotalQueries24h != 4 {
		t.Errorf("TotalQueries24h = %d, want 4", d.TotalQueries24h)
	}
	if d.AvgLatencyMs != 20 {
		t.Errorf("AvgLatencyMs = %v, want 20 (errors excluded)", d.AvgLatencyMs)
	}
	if d.ErrorRatePct != 25 {
		t.Errorf("ErrorRatePct = %v, want 25", d.ErrorRatePct)
	}
	if len(d.TopTables) == 0 || d.TopTables[0].Name != "sales" || d.TopTables[0].Count != 2 {
		t.Errorf("TopTables = %v", d.TopTables)
	}
	if len(d.TopUsers) != 2 || d.TopUsers[0].Count != 2 {
		t.Errorf("TopUsers = %v", d.TopUsers)
	}
}

func TestDashboardIgnoresOldRecords(t *testing.T) {
	tr := New(100)
	tr.Record(Record{UserID: "u1", SQL: "SELECT 1", LatencyMs: 5, At: time.Now().Add(-25 * time.Hour)})
	tr.Record(Record{UserID: "u1", SQL: "SELECT 1", LatencyMs: 5})

	if d := tr.Dashboard(); d.TotalQueries24h != 1 {
		t.Errorf("TotalQueries24h = %d, want 1", d.TotalQueries24h)
	}
}

func TestDashboardHourlyTrend(t *testing.T) {
	tr := New(100)
	now := time.Now()
	tr.Record(Record{UserID: "u", SQL: "SELECT 1", At: now})
	tr.Record(Record{UserID: "u", SQL: "SELECT 1", At: now})
	tr.Record(Record{UserID: "u", Error: "boom", At: now.Add(-3 * time.Hour)})

	d := tr.Dashboard()
	if len(d.HourlyTrend) != 24 {
		t.Fatalf("trend has %d buckets, want 24", len(d.HourlyTrend))
	}
	byHour := make(map[string]int, len(d.HourlyTrend))
	for _, h := range d.HourlyTrend {
		byHour[h.Hour] = h.Count
	}
	if got := byHour[now.Format(hourKey)]; got != 2 {
		t.Errorf("current hour count = %d, want 2", got)
	}
	if got := byHour[now.Add(-3*time.Hour).Format(hourKey)]; got != 1 {
		t.Errorf("failed queries count toward hourly volume, got %d", got)
	}
}

func TestSlowest(t *testing.T) {
	tr := New(100)
	for i, ms := range []float64{10, 50, 30} {
		tr.Record(Record{UserID: "u", SQL: fmt.Sprintf("SELECT %d", i), LatencyMs: ms})
	}
	tr.Record(Record{UserID: "u", Error: "boom", LatencyMs: 999})

	got := tr.Slowest(2)
	if len(got) != 2 || got[0].LatencyMs != 50 || got[1].LatencyMs != 30 {
		t.Errorf("Slowest = %v", got)
	}
}

func TestRecordWindowIsBounded(t *testing.T) {
	tr := New(3)
	for i := 0; i < 10; i++ {
		tr.Record(Record{UserID: "u", SQL: "SELECT 1", LatencyMs: float64(i)})
	}
	if got := tr.Slowest(100); len(got) != 3 {
		t.Errorf("window holds %d records, want 3", len(got))
	}
}
