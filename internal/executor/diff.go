package executor

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// maxDiffableBytes mirrors cklxx-elephant.ai/internal/diff.Generator's
// large-file skip: past this size a diff costs more than it's worth to a
// task result nobody will read line-by-line.
const maxDiffableBytes = 2 * 1024 * 1024

// UnifiedDiff produces a unified diff between the previous and new content
// of a written file, for inclusion in a write-file TaskResult's artifacts.
// Grounded on cklxx-elephant.ai/internal/diff/generator.go's
// GenerateUnified, trimmed to the parts write-file actually needs: no color
// output (a task artifact isn't a terminal), no separate line-based
// fallback path (diffmatchpatch's patch text never comes back empty for
// non-identical inputs in practice, so the fallback the teacher carries for
// that case is dead weight here).
func UnifiedDiff(filename, oldContent, newContent string) string {
	if oldContent == newContent {
		return ""
	}
	if isBinaryContent(oldContent) || isBinaryContent(newContent) {
		return fmt.Sprintf("Binary file %s has changed", filename)
	}
	if len(oldContent) > maxDiffableBytes || len(newContent) > maxDiffableBytes {
		return fmt.Sprintf("--- a/%s\n+++ b/%s\n@@ file exceeds diff size ceiling, diff skipped @@", filename, filename)
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldContent, newContent, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	patches := dmp.PatchMake(oldContent, diffs)
	patchText := dmp.PatchToText(patches)

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", filename, filename)
	b.WriteString(patchText)
	return b.String()
}

func isBinaryContent(content string) bool {
	limit := len(content)
	if limit > 8000 {
		limit = 8000
	}
	for i := 0; i < limit; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
