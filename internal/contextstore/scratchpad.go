package contextstore

import (
	"fmt"
	"time"
)

// TaskResultRecord is one entry in a scratchpad's task-result history.
type TaskResultRecord struct {
	TaskID    string
	Success   bool
	Summary   string
	RecordedAt time.Time
}

// Caveat is a note attached to a task whose analysis verdict was
// "partial" (spec.md §4.1: "partial -> task completed but scratchpad
// records a caveat; proceed").
type Caveat struct {
	TaskID     string
	Note       string
	RecordedAt time.Time
}

// Output is one named artifact recorded by a completed task, retrievable
// by tasks that declare it as a dependency (spec.md §3
// "get-outputs-for-dependencies").
type Output struct {
	TaskID string
	Key    string
	Value  string
}

// ErrScratchpadFull is returned by any mutating operation that would push
// a scratchpad's memory estimate past its per-plan ceiling. The coordinator
// surfaces this as task failure category "scratchpad-full" (spec.md §4.3).
type ErrScratchpadFull struct {
	PlanID string
}

func (e *ErrScratchpadFull) Error() string {
	return fmt.Sprintf("contextstore: scratchpad for plan %q is full", e.PlanID)
}

// PlanScratchpad is the per-plan in-memory working set (spec.md §3).
type PlanScratchpad struct {
	PlanID    string
	CreatedAt time.Time
	UpdatedAt time.Time

	results   []TaskResultRecord
	variables map[string]any
	outputs   []Output
	caveats   []Caveat
	ceiling   int64
}

// NewScratchpad returns a handle for planID, bounded by ceilingBytes.
func NewScratchpad(planID string, ceilingBytes int64) *PlanScratchpad {
	now := time.Now()
	return &PlanScratchpad{
		PlanID:    planID,
		CreatedAt: now,
		UpdatedAt: now,
		variables: make(map[string]any),
		ceiling:   ceilingBytes,
	}
}

// MemoryEstimate sums the estimated size of every held structure.
func (s *PlanScratchpad) MemoryEstimate() int64 {
	var total int64
	for _, r := range s.results {
		total += EstimateBytes(r.TaskID) + EstimateBytes(r.Summary)
	}
	total += EstimateBytes(s.variables)
	for _, o := range s.outputs {
		total += EstimateBytes(o.TaskID) + EstimateBytes(o.Key) + EstimateBytes(o.Value)
	}
	for _, c := range s.caveats {
		total += EstimateBytes(c.TaskID) + EstimateBytes(c.Note)
	}
	return total
}

func (s *PlanScratchpad) checkCapacity(additional int64) error {
	if s.ceiling > 0 && s.MemoryEstimate()+additional > s.ceiling {
		return &ErrScratchpadFull{PlanID: s.PlanID}
	}
	return nil
}

// RecordTaskResult appends a task-result summary to the history.
func (s *PlanScratchpad) RecordTaskResult(taskID string, success bool, summary string) error {
	additional := EstimateBytes(taskID) + EstimateBytes(summary)
	if err := s.checkCapacity(additional); err != nil {
		return err
	}
	s.results = append(s.results, TaskResultRecord{
		TaskID: taskID, Success: success, Summary: summary, RecordedAt: time.Now(),
	})
	s.UpdatedAt = time.Now()
	return nil
}

// SetVariable stores a named value, overwriting any prior value under key.
func (s *PlanScratchpad) SetVariable(key string, value any) error {
	additional := EstimateBytes(key) + EstimateBytes(value)
	if err := s.checkCapacity(additional); err != nil {
		return err
	}
	s.variables[key] = value
	s.UpdatedAt = time.Now()
	return nil
}

// GetVariable returns a previously-set value.
func (s *PlanScratchpad) GetVariable(key string) (any, bool) {
	v, ok := s.variables[key]
	return v, ok
}

// AppendOutput records a named artifact produced by taskID.
func (s *PlanScratchpad) AppendOutput(taskID, key, value string) error {
	additional := EstimateBytes(taskID) + EstimateBytes(key) + EstimateBytes(value)
	if err := s.checkCapacity(additional); err != nil {
		return err
	}
	s.outputs = append(s.outputs, Output{TaskID: taskID, Key: key, Value: value})
	s.UpdatedAt = time.Now()
	return nil
}

// RecordCaveat attaches a caveat note to taskID, for an analysis verdict
// of "partial".
func (s *PlanScratchpad) RecordCaveat(taskID, note string) error {
	additional := EstimateBytes(taskID) + EstimateBytes(note)
	if err := s.checkCapacity(additional); err != nil {
		return err
	}
	s.caveats = append(s.caveats, Caveat{TaskID: taskID, Note: note, RecordedAt: time.Now()})
	s.UpdatedAt = time.Now()
	return nil
}

// GetCaveats returns every caveat recorded against taskID, in recording order.
func (s *PlanScratchpad) GetCaveats(taskID string) []Caveat {
	var out []Caveat
	for _, c := range s.caveats {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out
}

// GetOutputsForDependencies returns every recorded output produced by one
// of the given task IDs, in recording order — the fragment the coordinator
// assembles into a dependent task's refinement context (spec.md §4.1
// "Context assembly").
func (s *PlanScratchpad) GetOutputsForDependencies(dependencyTaskIDs []string) []Output {
	want := make(map[string]bool, len(dependencyTaskIDs))
	for _, id := range dependencyTaskIDs {
		want[id] = true
	}
	var out []Output
	for _, o := range s.outputs {
		if want[o.TaskID] {
			out = append(out, o)
		}
	}
	return out
}

// Snapshot is a serializable, independent copy of a scratchpad's state for
// the round-trip law in spec.md §8: "snapshot -> discard -> restore from
// snapshot yields a scratchpad that returns the same values for every
// query the original answered."
type Snapshot struct {
	PlanID    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Results   []TaskResultRecord
	Variables map[string]any
	Outputs   []Output
	Caveats   []Caveat
	Ceiling   int64
}

// Snapshot returns an independent copy of the scratchpad's state.
func (s *PlanScratchpad) Snapshot() Snapshot {
	variables := make(map[string]any, len(s.variables))
	for k, v := range s.variables {
		variables[k] = v
	}
	return Snapshot{
		PlanID:    s.PlanID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Results:   append([]TaskResultRecord(nil), s.results...),
		Variables: variables,
		Outputs:   append([]Output(nil), s.outputs...),
		Caveats:   append([]Caveat(nil), s.caveats...),
		Ceiling:   s.ceiling,
	}
}

// RestoreScratchpad reconstructs a PlanScratchpad from a Snapshot.
func RestoreScratchpad(snap Snapshot) *PlanScratchpad {
	variables := make(map[string]any, len(snap.Variables))
	for k, v := range snap.Variables {
		variables[k] = v
	}
	return &PlanScratchpad{
		PlanID:    snap.PlanID,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
		results:   append([]TaskResultRecord(nil), snap.Results...),
		variables: variables,
		outputs:   append([]Output(nil), snap.Outputs...),
		caveats:   append([]Caveat(nil), snap.Caveats...),
		ceiling:   snap.Ceiling,
	}
}
