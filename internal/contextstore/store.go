package contextstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ReOpsIL/KAIX/internal/logging"
)

// Summarizer is the subset of the model provider contract the Context
// Store needs: turning raw text (optionally continuing a prior chunk
// summary) into a summary string. internal/provider.Provider satisfies
// this; contextstore depends on the narrow interface rather than the
// whole provider package to keep the dependency direction leaves-first,
// matching SPEC_FULL.md §2's component ordering.
type Summarizer interface {
	Summarize(ctx context.Context, text string, priorSummary string) (string, error)
}

// Store holds the ProjectSummary and every live plan's scratchpad. It is
// single-writer: the coordinator is the only caller that should mutate it,
// per spec.md §4.3's "Lifecycle ownership".
type Store struct {
	mu sync.Mutex

	root        string
	discoveryCfg DiscoveryConfig
	memCfg      MemoryConfig
	summarizer  Summarizer
	logger      logging.Logger
	tokenCodec  *tiktoken.Tiktoken

	cache          *SummaryCache
	overview       string
	scratchpads    map[string]*PlanScratchpad
	scratchpadSeen map[string]time.Time // planID -> last-touched, for stale-plan health checks
}

// NewStore constructs a Context Store rooted at workdir.
func NewStore(workdir string, discoveryCfg DiscoveryConfig, memCfg MemoryConfig, summarizer Summarizer) (*Store, error) {
	cache, err := NewSummaryCache(memCfg)
	if err != nil {
		return nil, fmt.Errorf("contextstore: %w", err)
	}
	codec, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("contextstore: load token codec: %w", err)
	}
	return &Store{
		root:           workdir,
		discoveryCfg:   discoveryCfg,
		memCfg:         memCfg,
		summarizer:     summarizer,
		logger:         logging.NewComponentLogger("contextstore"),
		tokenCodec:     codec,
		cache:          cache,
		scratchpads:    make(map[string]*PlanScratchpad),
		scratchpadSeen: make(map[string]time.Time),
	}, nil
}

// EstimateTokens returns the tiktoken-go token count for text (mirroring
// cklxx-elephant.ai's context manager). Nothing in this module calls it;
// scratchpad and summary-cache ceilings are enforced in bytes (sizeof.go).
func (s *Store) EstimateTokens(text string) int {
	if s.tokenCodec == nil {
		return len(text) / 4 // crude fallback, never hit once NewStore succeeds
	}
	return len(s.tokenCodec.Encode(text, nil, nil))
}

// Overview returns the current aggregate project-overview string.
func (s *Store) Overview() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overview
}

// Summary returns the cached summary for a workspace-relative path, if any
// is held and not expired.
func (s *Store) Summary(path string) (*CachedSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(path, time.Now())
}

// Refresh re-walks the workspace, summarizing added/modified files and
// evicting deleted ones, then re-requests the aggregate overview. It
// implements spec.md §4.3's "Summarization" and "Change detection and
// incremental update" together, since the overview always reflects the
// just-refreshed per-file summaries.
func (s *Store) Refresh(ctx context.Context) (RefreshReport, error) {
	start := time.Now()
	discovered, err := Discover(s.root, s.discoveryCfg)
	if err != nil {
		return RefreshReport{}, fmt.Errorf("contextstore: discover: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(discovered))
	report := RefreshReport{}

	for _, f := range discovered {
		seen[f.RelPath] = true
		hash, err := ContentHash(f.AbsPath)
		if err != nil {
			s.logger.Warn("contextstore: hash %s: %v", f.RelPath, err)
			continue
		}

		existing, ok := s.cache.Get(f.RelPath, time.Now())
		switch {
		case ok && existing.ContentHash == hash:
			report.Unchanged = append(report.Unchanged, f.RelPath)
			continue
		case ok:
			report.Modified = append(report.Modified, f.RelPath)
		default:
			report.Added = append(report.Added, f.RelPath)
		}

		summary, err := s.summarizeFile(ctx, f)
		if err != nil {
			s.logger.Warn("contextstore: summarize %s: %v", f.RelPath, err)
			continue
		}
		s.cache.Put(&CachedSummary{
			Path:         f.RelPath,
			ContentHash:  hash,
			ModifiedAt:   time.Unix(0, f.ModifiedAt),
			SizeBytes:    f.SizeBytes,
			Language:     f.Language,
			Summary:      summary,
			LastAccessAt: time.Now(),
			AccessCount:  1,
			CachedAt:     time.Now(),
			TTL:          s.memCfg.SummaryTTL,
		})
	}

	for _, key := range s.cache.lru.Keys() {
		if !seen[key] {
			s.cache.Remove(key)
			report.Deleted = append(report.Deleted, key)
		}
	}

	if len(report.Added) > 0 || len(report.Modified) > 0 || len(report.Deleted) > 0 {
		overview, err := s.summarizer.Summarize(ctx, s.renderSummariesForOverview(), s.overview)
		if err != nil {
			return report, fmt.Errorf("contextstore: overview: %w", err)
		}
		s.overview = overview
	}

	report.Duration = time.Since(start)
	return report, nil
}

func (s *Store) renderSummariesForOverview() string {
	var sb []byte
	for _, key := range s.cache.lru.Keys() {
		entry, ok := s.cache.lru.Peek(key)
		if !ok {
			continue
		}
		sb = append(sb, []byte(entry.Path+": "+entry.Summary+"\n")...)
	}
	return string(sb)
}

func (s *Store) summarizeFile(ctx context.Context, f DiscoveredFile) (string, error) {
	content, err := readFileBounded(f.AbsPath, s.discoveryCfg.MaxFileSizeBytes)
	if err != nil {
		return "", err
	}
	chunks := ChunkFile(ctx, f.Language, content)
	if len(chunks) <= 1 {
		return s.summarizer.Summarize(ctx, content, "")
	}

	var running string
	for _, c := range chunks {
		next, err := s.summarizer.Summarize(ctx, c.Text, running)
		if err != nil {
			return "", err
		}
		running = next
	}
	return running, nil
}

// ResolveForTask returns the cached summaries a task's refinement context
// needs: the project overview plus any per-file summary whose path is
// named in refs (typically the task's parameters or its scratchpad
// dependency outputs), re-summarizing on demand if a reference has no live
// cache entry — the behavior spec.md §8 scenario 6 requires ("a subsequent
// task that references the evicted file causes re-summarization on
// demand").
func (s *Store) ResolveForTask(ctx context.Context, refs []string) (overview string, summaries map[string]string, err error) {
	s.mu.Lock()
	overview = s.overview
	s.mu.Unlock()

	summaries = make(map[string]string, len(refs))
	for _, ref := range refs {
		if cached, ok := s.Summary(ref); ok {
			summaries[ref] = cached.Summary
			continue
		}
		abs := filepath.Join(s.root, ref)
		content, readErr := readFileBounded(abs, s.discoveryCfg.MaxFileSizeBytes)
		if readErr != nil {
			continue
		}
		summary, sumErr := s.summarizer.Summarize(ctx, content, "")
		if sumErr != nil {
			continue
		}
		hash, _ := ContentHash(abs)
		s.mu.Lock()
		s.cache.Put(&CachedSummary{
			Path: ref, ContentHash: hash, Summary: summary,
			LastAccessAt: time.Now(), AccessCount: 1, CachedAt: time.Now(),
			TTL: s.memCfg.SummaryTTL,
		})
		s.mu.Unlock()
		summaries[ref] = summary
	}
	return overview, summaries, nil
}

// --- scratchpad lifecycle ---

// CreateScratchpad registers a new scratchpad for planID.
func (s *Store) CreateScratchpad(planID string) *PlanScratchpad {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := NewScratchpad(planID, s.memCfg.PerScratchpadBytes)
	s.scratchpads[planID] = sp
	s.scratchpadSeen[planID] = time.Now()
	return sp
}

// Scratchpad returns the scratchpad for planID, if any.
func (s *Store) Scratchpad(planID string) (*PlanScratchpad, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.scratchpads[planID]
	if ok {
		s.scratchpadSeen[planID] = time.Now()
	}
	return sp, ok
}

// DiscardScratchpad drops a plan's scratchpad, e.g. after the plan reaches
// a terminal status.
func (s *Store) DiscardScratchpad(planID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scratchpads, planID)
	delete(s.scratchpadSeen, planID)
}

// PlanGraphValidator lets the health check revalidate every active plan's
// dependency graph for acyclicity without contextstore importing the plan
// package (which itself never needs to import contextstore), keeping the
// dependency direction leaves-first per SPEC_FULL.md §2.
type PlanGraphValidator interface {
	PlanIDs() []string
	Acyclic(planID string) bool
}

// HealthCheck runs the periodic self-check described in spec.md §4.3: it
// reports memory usage against thresholds, flags stale scratchpads, and
// (if a validator is supplied) revalidates every active plan's DAG. It
// never mutates state — maintenance eviction of stale scratchpads is a
// separate, explicit call the coordinator makes after inspecting the
// report.
func (s *Store) HealthCheck(validator PlanGraphValidator) HealthReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := HealthReport{
		GeneratedAt:   time.Now(),
		TotalBytes:    s.cache.TotalBytes(),
		CeilingBytes:  s.memCfg.MaxTotalBytes,
		WarningBytes:  s.memCfg.WarningBytes,
		CriticalBytes: s.memCfg.CriticalBytes,
	}

	switch {
	case report.TotalBytes >= report.CriticalBytes && report.CriticalBytes > 0:
		report.Findings = append(report.Findings, HealthFinding{SeverityCritical, "cached summary bytes at or above critical threshold"})
	case report.TotalBytes >= report.WarningBytes && report.WarningBytes > 0:
		report.Findings = append(report.Findings, HealthFinding{SeverityWarning, "cached summary bytes at or above warning threshold"})
	}

	now := time.Now()
	for planID, lastSeen := range s.scratchpadSeen {
		if s.memCfg.StalePlanAge > 0 && now.Sub(lastSeen) > s.memCfg.StalePlanAge {
			report.StalePlanIDs = append(report.StalePlanIDs, planID)
			report.Findings = append(report.Findings, HealthFinding{SeverityWarning, "scratchpad for plan " + planID + " is stale"})
		}
	}

	if validator != nil {
		for _, planID := range validator.PlanIDs() {
			if validator.Acyclic(planID) {
				report.AcyclicPlanIDs = append(report.AcyclicPlanIDs, planID)
			} else {
				report.CyclicPlanIDs = append(report.CyclicPlanIDs, planID)
				report.Findings = append(report.Findings, HealthFinding{SeverityCritical, "plan " + planID + " dependency graph is cyclic"})
			}
		}
	}

	return report
}

// EvictStaleScratchpads discards scratchpads for plans the last health
// check flagged as stale. Maintenance-mode-only, never called from the
// read-only HealthCheck path itself.
func (s *Store) EvictStaleScratchpads(planIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range planIDs {
		delete(s.scratchpads, id)
		delete(s.scratchpadSeen, id)
	}
}
