package contextstore

import (
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SummaryCache bounds the ProjectSummary's cached entries by count via a
// wrapped hashicorp/golang-lru/v2 cache (grounded on
// cklxx-elephant.ai/internal/toolregistry/cache.go's lru.Cache[string,
// cacheEntry] + TTL pattern) and by total bytes via its own eviction pass,
// since the plain LRU can only express "evict least-recently-used", not
// spec.md §4.3's "recency dominant, then access frequency, then size
// (larger evicted first among ties)".
type SummaryCache struct {
	lru    *lru.Cache[string, *CachedSummary]
	cfg    MemoryConfig
	tombstones map[string]*CachedSummary // metadata retained for evicted entries, spec.md §4.3
}

// NewSummaryCache constructs a cache bounded by cfg.MaxCachedSummaries
// entries and cfg.MaxTotalBytes cumulative summary bytes.
func NewSummaryCache(cfg MemoryConfig) (*SummaryCache, error) {
	capacity := cfg.MaxCachedSummaries
	if capacity <= 0 {
		capacity = 1000
	}
	c, err := lru.New[string, *CachedSummary](capacity)
	if err != nil {
		return nil, err
	}
	return &SummaryCache{lru: c, cfg: cfg, tombstones: make(map[string]*CachedSummary)}, nil
}

// Get returns the cached summary for path if present and not TTL-expired,
// recording an access (bumping recency in the LRU and the access
// bookkeeping used by the eviction priority score).
func (c *SummaryCache) Get(path string, now time.Time) (*CachedSummary, bool) {
	entry, ok := c.lru.Get(path)
	if !ok {
		return nil, false
	}
	if entry.Expired(now) {
		c.lru.Remove(path)
		return nil, false
	}
	entry.LastAccessAt = now
	entry.AccessCount++
	return entry, true
}

// Put inserts or replaces a summary, then enforces the total-byte ceiling.
func (c *SummaryCache) Put(entry *CachedSummary) {
	delete(c.tombstones, entry.Path)
	c.lru.Add(entry.Path, entry)
	c.EvictToFit()
}

// Remove evicts path outright (e.g. a file deleted from the workspace).
func (c *SummaryCache) Remove(path string) {
	c.lru.Remove(path)
	delete(c.tombstones, path)
}

// Len returns the number of live (non-tombstoned) entries.
func (c *SummaryCache) Len() int { return c.lru.Len() }

// TotalBytes sums the estimated size of every live entry.
func (c *SummaryCache) TotalBytes() int64 {
	var total int64
	for _, key := range c.lru.Keys() {
		if entry, ok := c.lru.Peek(key); ok {
			total += EstimateBytes(entry)
		}
	}
	return total
}

// EvictToFit removes expired entries, then entries by priority score until
// TotalBytes is at or below cfg.MaxTotalBytes. The evicted entry's metadata
// (everything but the summary text) moves to tombstones so a future
// refresh can re-materialize it without redoing discovery from scratch.
func (c *SummaryCache) EvictToFit() []string {
	now := time.Now()
	var evicted []string

	for _, key := range c.lru.Keys() {
		if entry, ok := c.lru.Peek(key); ok && entry.Expired(now) {
			c.tombstone(key, entry)
			c.lru.Remove(key)
			evicted = append(evicted, key)
		}
	}

	for c.cfg.MaxTotalBytes > 0 && c.TotalBytes() > c.cfg.MaxTotalBytes && c.lru.Len() > 0 {
		victim := c.pickEvictionVictim()
		if victim == "" {
			break
		}
		if entry, ok := c.lru.Peek(victim); ok {
			c.tombstone(victim, entry)
		}
		c.lru.Remove(victim)
		evicted = append(evicted, victim)
	}
	return evicted
}

func (c *SummaryCache) tombstone(key string, entry *CachedSummary) {
	meta := entry.Clone()
	meta.Summary = ""
	c.tombstones[key] = meta
}

// Tombstone returns the retained metadata for a previously-evicted path,
// if any, so a refresh can decide whether a re-summarize is needed without
// re-running discovery's classification from nothing.
func (c *SummaryCache) Tombstone(path string) (*CachedSummary, bool) {
	m, ok := c.tombstones[path]
	return m, ok
}

// pickEvictionVictim scores every live entry by (oldest LastAccessAt
// first, then lowest AccessCount, then largest SizeBytes) and returns the
// path that sorts first — the priority order spec.md §4.3 describes as
// "recency-of-access dominant, access frequency, and file size (larger
// summaries evicted first among ties)".
func (c *SummaryCache) pickEvictionVictim() string {
	keys := c.lru.Keys()
	if len(keys) == 0 {
		return ""
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := c.lru.Peek(keys[i])
		b, _ := c.lru.Peek(keys[j])
		if a == nil || b == nil {
			return false
		}
		if !a.LastAccessAt.Equal(b.LastAccessAt) {
			return a.LastAccessAt.Before(b.LastAccessAt)
		}
		if a.AccessCount != b.AccessCount {
			return a.AccessCount < b.AccessCount
		}
		return a.SizeBytes > b.SizeBytes
	})
	return keys[0]
}
