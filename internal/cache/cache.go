// Package cache stores computed answers keyed by who asked and what they
// asked. Entries are private to one identity, expire after a TTL, and are
// evicted least-recently-used once the cache is full. An expired entry is
// logically absent the moment its TTL passes, even while still resident.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Entry is one cached answer. The cache owns entries exclusively; callers get
// the stored values back but must not mutate the slices.
type Entry struct {
	SQL         string
	Columns     []string
	Rows        []map[string]any
	Source      string
	Explanation string
	CreatedAt   time.Time
}

// Stats is a point-in-time snapshot of cache state.
type Stats struct {
	EntryCount int
	MaxEntries int
	TTLSeconds int64
	HitCount   int64
}

type item struct {
	key   string
	entry Entry
}

// Cache is a fixed-capacity LRU with per-entry TTL, safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	max     int
	ttl     time.Duration
	hits    int64
}

// New creates a cache holding at most maxEntries answers for up to ttl each.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		max:     maxEntries,
		ttl:     ttl,
	}
}

// Key derives the deterministic cache key for an identity and question. The
// question is lowercased and whitespace-normalized first, so "Top  Sales" and
// "top sales" share an entry; different identities never do.
func Key(userID, question string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := sha256.Sum256([]byte(userID + ":" + normalized))
	return hex.EncodeToString(sum[:])
}

// Get returns the entry for the key if present and fresh. A fresh hit bumps
// recency and the hit counter. An expired entry counts as a miss and is
// removed on the spot rather than having its recency refreshed.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	it := el.Value.(*item)
	if time.Since(it.entry.CreatedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		return Entry{}, false
	}

	c.order.MoveToFront(el)
	c.hits++
	return it.entry, true
}

// Put stores a fully-formed entry under the key, evicting the least recently
// used entry if the cache is at capacity. Storing over an existing key
// replaces it in place.
func (c *Cache) Put(key string, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*item).entry = e
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.max {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*item).key)
	}

	c.entries[key] = c.order.PushFront(&item{key: key, entry: e})
}

// Clear drops every entry. The hit counter is preserved; it counts lifetime
// hits, not hits since the last flush.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Stats reports current occupancy and configuration.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		EntryCount: len(c.entries),
		MaxEntries: c.max,
		TTLSeconds: int64(c.ttl / time.Second),
		HitCount:   c.hits,
	}
}
