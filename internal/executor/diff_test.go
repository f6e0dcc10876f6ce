package executor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnifiedDiff_EmptyForIdenticalContent(t *testing.T) {
	assert.Equal(t, "", UnifiedDiff("f.txt", "same", "same"))
}

func TestUnifiedDiff_ReportsBinaryChange(t *testing.T) {
	out := UnifiedDiff("f.bin", "a\x00b", "a\x00c")
	assert.Contains(t, out, "Binary file")
}

func TestUnifiedDiff_ContainsFileHeaders(t *testing.T) {
	out := UnifiedDiff("f.txt", "line one\n", "line two\n")
	assert.True(t, strings.HasPrefix(out, "--- a/f.txt\n+++ b/f.txt\n"))
}
