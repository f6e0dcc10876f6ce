// Package presenter implements the chat-surface contract spec.md §2
// calls out as peripheral to the coordinator: something that "accepts
// status updates and renders them", with widget layout explicitly out
// of scope. Grounded on cklxx-elephant.ai/internal/output's
// Renderer/OutputTarget split, trimmed to the one target KAIX actually
// needs (plain terminal text) since glamour/lipgloss-rendered markdown
// and the teacher's SSE/TUI targets all exist to serve a widget layer
// this package deliberately does not have.
package presenter

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ReOpsIL/KAIX/internal/coordinator"
	"github.com/ReOpsIL/KAIX/internal/plan"
)

// Presenter is the sink every StatusSnapshot and user-facing message
// flows through. Kept as an interface, not just a concrete Terminal
// type, so cmd/kaix's interactive REPL and any future non-interactive
// surface (e.g. a one-shot `kaix status` print) can share the
// coordinator-facing plumbing.
type Presenter interface {
	PresentSnapshot(snap coordinator.StatusSnapshot)
	PresentMessage(level, text string)
	PresentTaskResult(taskID string, result *plan.TaskResult)
}

// Terminal renders to an io.Writer as line-oriented plain text — no
// ANSI color, no markdown, no redraw-in-place — matching spec.md's
// "widget layout is out of scope" boundary literally rather than just
// nominally.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer

	lastPlanID string
}

// NewTerminal builds a Terminal presenter writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// PresentSnapshot renders a StatusSnapshot as a single status line,
// plus one additional line the first time a new plan becomes active
// (so a long-running plan doesn't repeat its description every cycle).
func (t *Terminal) PresentSnapshot(snap coordinator.StatusSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if snap.CurrentPlan != nil && snap.CurrentPlan.ID != t.lastPlanID {
		t.lastPlanID = snap.CurrentPlan.ID
		fmt.Fprintf(t.out, "\n[plan %s] %s\n", snap.CurrentPlan.ID, snap.CurrentPlan.Description)
	}
	if snap.CurrentPlan == nil {
		t.lastPlanID = ""
	}

	line := fmt.Sprintf("#%d %-17s", snap.SeqNum, snap.ExecutionState)
	if snap.CurrentPlan != nil {
		line += fmt.Sprintf(" plan=%s(%s) %d/%d done", snap.CurrentPlan.ID, snap.CurrentPlan.Status,
			snap.CurrentPlan.CompletedTasks, snap.CurrentPlan.TotalTasks)
	}
	if snap.CurrentTask != nil {
		line += fmt.Sprintf(" task=%s(%s,kind=%s,retries=%d)", snap.CurrentTask.ID, snap.CurrentTask.State,
			snap.CurrentTask.Kind, snap.CurrentTask.Retries)
	}
	fmt.Fprintln(t.out, line)
}

// PresentMessage renders a one-off message, e.g. a slash-command
// acknowledgment or an error surfaced from SubmitPrompt.
func (t *Terminal) PresentMessage(level, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "[%s] %s\n", strings.ToUpper(level), text)
}

// PresentTaskResult renders a completed task's output and, when the
// executor attached one, its unified diff artifact (spec.md §4.3's
// diffing supplement) — a terminal coding assistant showing no diff
// after a file write is a worse experience than showing one.
func (t *Terminal) PresentTaskResult(taskID string, result *plan.TaskResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if result == nil {
		return
	}
	status := "ok"
	if !result.Success {
		status = "failed: " + result.ErrorMessage
	}
	fmt.Fprintf(t.out, "  task %s -> %s\n", taskID, status)
	if result.Output != "" {
		fmt.Fprintf(t.out, "  %s\n", indent(result.Output))
	}
	if diff, ok := result.Artifacts["diff"].(string); ok && diff != "" {
		fmt.Fprintf(t.out, "%s\n", indent(diff))
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
