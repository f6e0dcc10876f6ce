// Package contextstore holds the two bounded data structures the
// coordinator reads and writes during context assembly and state update:
// the workspace-wide ProjectSummary and per-plan scratchpads. Both are
// single-writer, same as the plan package — the Store type in this package
// is meant to be driven from the coordinator's one goroutine, with Clone
// methods provided for read-only snapshot exposure.
package contextstore

import "time"

// CachedSummary is one workspace-relative file's cached summary record
// (spec.md §3 ProjectSummary).
type CachedSummary struct {
	Path         string
	ContentHash  string
	ModifiedAt   time.Time
	SizeBytes    int64
	Language     string
	Summary      string
	LastAccessAt time.Time
	AccessCount  int
	CachedAt     time.Time
	TTL          time.Duration
}

// Expired reports whether the entry's TTL has elapsed as of now.
func (c *CachedSummary) Expired(now time.Time) bool {
	if c.TTL <= 0 {
		return false
	}
	return now.Sub(c.CachedAt) > c.TTL
}

// Clone returns an independent copy safe to hand to a read-only observer.
func (c *CachedSummary) Clone() *CachedSummary {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// RefreshReport is the structured change-detection report a ProjectSummary
// refresh returns (spec.md §4.3 "Change detection and incremental update").
type RefreshReport struct {
	Unchanged []string
	Modified  []string
	Added     []string
	Deleted   []string
	Duration  time.Duration
}

// IsNoop reports whether the refresh found nothing to do, the property
// spec.md §8 requires for "context refresh on an unchanged working
// directory".
func (r RefreshReport) IsNoop() bool {
	return len(r.Modified) == 0 && len(r.Added) == 0 && len(r.Deleted) == 0
}

// Severity tags a health-check finding.
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// HealthFinding is one entry in a HealthReport.
type HealthFinding struct {
	Severity Severity
	Message  string
}

// HealthReport is the periodic self-check's structured output (spec.md
// §4.3 "Health checks").
type HealthReport struct {
	GeneratedAt    time.Time
	TotalBytes     int64
	CeilingBytes   int64
	WarningBytes   int64
	CriticalBytes  int64
	StalePlanIDs   []string
	AcyclicPlanIDs []string
	CyclicPlanIDs  []string
	Findings       []HealthFinding
}

// WorstSeverity returns the most severe finding in the report, or SeverityOK if
// there are none.
func (r *HealthReport) WorstSeverity() Severity {
	worst := SeverityOK
	for _, f := range r.Findings {
		if f.Severity == SeverityCritical {
			return SeverityCritical
		}
		if f.Severity == SeverityWarning {
			worst = SeverityWarning
		}
	}
	return worst
}

// FileAccessInfo records when a discovered file was first and last
// observed. Discovery and Refresh do not consult it.
type FileAccessInfo struct {
	FirstAccessedAt time.Time
	LastAccessedAt  time.Time
}

// MemoryConfig bounds the Store's footprint (spec.md §4.3 "Memory
// discipline"), grounded on original_source/src/context/global.rs's
// ContextMemoryConfig (max_total_memory_bytes, max_cached_summaries,
// cache_ttl_hours).
type MemoryConfig struct {
	MaxTotalBytes      int64
	MaxCachedSummaries int
	SummaryTTL         time.Duration
	WarningBytes       int64
	CriticalBytes      int64
	PerScratchpadBytes int64
	StalePlanAge       time.Duration
}

// DefaultMemoryConfig mirrors original_source's 100MB/1000-entries/24h
// defaults, scaled down for the per-plan scratchpad ceiling since a
// scratchpad holds one plan's working set, not the whole project.
func DefaultMemoryConfig() MemoryConfig {
	const mb = 1 << 20
	return MemoryConfig{
		MaxTotalBytes:      100 * mb,
		MaxCachedSummaries: 1000,
		SummaryTTL:         24 * time.Hour,
		WarningBytes:       80 * mb,
		CriticalBytes:      95 * mb,
		PerScratchpadBytes: 8 * mb,
		StalePlanAge:       6 * time.Hour,
	}
}

// DiscoveryConfig controls the workspace walk (spec.md §4.3 "Discovery").
type DiscoveryConfig struct {
	MaxDepth          int
	MaxFileSizeBytes  int64
	ExcludePatterns   []string // doublestar glob patterns, in addition to .gitignore/.kaixignore
	PriorityExtensions []string // source before config before docs, within this list order
}

// DefaultDiscoveryConfig matches spec.md's boundary case exactly: a file at
// the ceiling is included, one byte larger is excluded.
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		MaxDepth:         64,
		MaxFileSizeBytes: 512 * 1024,
		PriorityExtensions: []string{
			".go", ".rs", ".ts", ".tsx", ".js", ".py", ".java", // source
			".yaml", ".yml", ".json", ".toml",                  // config
			".md", ".txt",                                      // documentation
		},
	}
}
