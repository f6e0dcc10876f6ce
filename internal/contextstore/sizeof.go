package contextstore

// EstimateBytes gives a rough, cheap memory-footprint estimate for the
// values the store caches: strings by byte length, maps/slices by summing
// their elements plus a per-entry overhead constant. It intentionally does
// not attempt exact runtime.MemStats-level accounting — spec.md's ceilings
// are budget knobs the operator tunes, not billing figures, so a
// consistent approximation is sufficient (and what
// original_source/src/context/global.rs's own byte accounting does: it
// sums content lengths, not real heap size).
func EstimateBytes(v any) int64 {
	const overhead = 64
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		return int64(len(t)) + overhead
	case []byte:
		return int64(len(t)) + overhead
	case *CachedSummary:
		if t == nil {
			return 0
		}
		return EstimateBytes(t.Path) + EstimateBytes(t.ContentHash) +
			EstimateBytes(t.Language) + EstimateBytes(t.Summary) + overhead
	case map[string]any:
		var total int64 = overhead
		for k, val := range t {
			total += EstimateBytes(k) + EstimateBytes(val)
		}
		return total
	case []string:
		var total int64 = overhead
		for _, s := range t {
			total += EstimateBytes(s)
		}
		return total
	case int, int64, float64, bool:
		return 8 + overhead
	default:
		return overhead
	}
}
