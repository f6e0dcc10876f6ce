package contextstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryCache_EvictsOldestAccessFirst(t *testing.T) {
	cfg := MemoryConfig{MaxTotalBytes: 800, MaxCachedSummaries: 10}
	cache, err := NewSummaryCache(cfg)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(path string, accessedAt time.Time) *CachedSummary {
		return &CachedSummary{
			Path: path, Summary: "a summary string of moderate length",
			LastAccessAt: accessedAt, CachedAt: base,
		}
	}

	cache.Put(mk("oldest.go", base))
	cache.Put(mk("middle.go", base.Add(time.Minute)))
	cache.Put(mk("newest.go", base.Add(2*time.Minute)))

	_, stillThere := cache.Get("middle.go", base.Add(3*time.Minute))
	assert.True(t, stillThere)
	_, newestThere := cache.Get("newest.go", base.Add(3*time.Minute))
	assert.True(t, newestThere)

	// oldest.go should have been evicted to make room once the ceiling was
	// exceeded, since it has the oldest LastAccessAt among ties.
	_, oldestThere := cache.Get("oldest.go", base.Add(3*time.Minute))
	assert.False(t, oldestThere)

	_, tombstoned := cache.Tombstone("oldest.go")
	assert.True(t, tombstoned)
}

func TestSummaryCache_TTLExpiry(t *testing.T) {
	cache, err := NewSummaryCache(MemoryConfig{MaxCachedSummaries: 10})
	require.NoError(t, err)

	now := time.Now()
	cache.Put(&CachedSummary{Path: "a.go", Summary: "x", CachedAt: now, LastAccessAt: now, TTL: time.Minute})

	_, ok := cache.Get("a.go", now.Add(2*time.Minute))
	assert.False(t, ok)
}
