package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func entry(sql string) Entry {
	return Entry{
		SQL:     sql,
		Columns: []string{"n"},
		Rows:    []map[string]any{{"n": 1}},
	}
}

func TestRoundTrip(t *testing.T) {
	c := New(10, time.Minute)
	key := Key("user_1", "how many sales")

	c.Put(key, entry("SELECT COUNT(*) FROM sales"))

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected a hit")
	}
	if got.SQL != "SELECT COUNT(*) FROM sales" || len(got.Rows) != 1 {
		t.Errorf("entry came back changed: %+v", got)
	}
}

func TestKeyNormalizesQuestion(t *testing.T) {
	a := Key("user_1", "  How   Many SALES ")
	b := Key("user_1", "how many sales")
	if a != b {
		t.Error("whitespace and case differences must hit the same entry")
	}

	if Key("user_1", "how many sales") == Key("user_2", "how many sales") {
		t.Error("different identities must never share an entry")
	}
}

func TestExpiredEntryIsAbsent(t *testing.T) {
	c := New(10, time.Minute)
	key := Key("u", "q")

	e := entry("SELECT 1")
	e.CreatedAt = time.Now().Add(-2 * time.Minute)
	c.Put(key, e)

	if _, ok := c.Get(key); ok {
		t.Error("expired entry must read as a miss without an eviction sweep")
	}
	if got := c.Stats(); got.HitCount != 0 {
		t.Errorf("expired read must not count as a hit, HitCount = %d", got.HitCount)
	}
	if got := c.Stats(); got.EntryCount != 0 {
		t.Errorf("expired read should drop the entry, EntryCount = %d", got.EntryCount)
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(2, time.Minute)

	c.Put("a", entry("A"))
	c.Put("b", entry("B"))

	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit on a")
	}

	c.Put("c", entry("C"))

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should have survived eviction", k)
		}
	}
}

func TestPutReplacesInPlace(t *testing.T) {
	c := New(2, time.Minute)
	c.Put("a", entry("old"))
	c.Put("a", entry("new"))

	got, ok := c.Get("a")
	if !ok || got.SQL != "new" {
		t.Errorf("replacement not visible: %+v ok=%v", got, ok)
	}
	if s := c.Stats(); s.EntryCount != 1 {
		t.Errorf("EntryCount = %d after in-place replace, want 1", s.EntryCount)
	}
}

func TestClearAndStats(t *testing.T) {
	c := New(5, 30*time.Second)
	c.Put("a", entry("A"))
	c.Get("a")
	c.Get("a")

	s := c.Stats()
	if s.EntryCount != 1 || s.MaxEntries != 5 || s.TTLSeconds != 30 || s.HitCount != 2 {
		t.Errorf("Stats = %+v", s)
	}

	c.Clear()
	s = c.Stats()
	if s.EntryCount != 0 {
		t.Errorf("EntryCount = %d after Clear", s.EntryCount)
	}
	if s.HitCount != 2 {
		t.Errorf("Clear must preserve the lifetime hit count, got %d", s.HitCount)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(64, time.Minute)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := Key(fmt.Sprintf("user_%d", w), fmt.Sprintf("question %d", i%20))
				c.Put(k, entry("SELECT 1"))
				c.Get(k)
			}
		}(w)
	}
	wg.Wait()

	if s := c.Stats(); s.EntryCount > 64 {
		t.Errorf("capacity exceeded: %d entries", s.EntryCount)
	}
}
