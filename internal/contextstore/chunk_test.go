package contextstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkFile_MarkdownHeadings(t *testing.T) {
	content := "# Title\nintro\n## Section A\nbody a\n## Section B\nbody b\n"
	chunks := ChunkFile(context.Background(), "markdown", content)
	require.Len(t, chunks, 3)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "# Title"))
	assert.True(t, strings.HasPrefix(chunks[1].Text, "## Section A"))
}

func TestChunkFile_LineCountFallback(t *testing.T) {
	var lines []string
	for i := 0; i < 450; i++ {
		lines = append(lines, "line")
	}
	content := strings.Join(lines, "\n")

	chunks := ChunkFile(context.Background(), "unknown-language", content)
	require.Len(t, chunks, 3) // 450 lines / 200-line window, rounding up
}

func TestChunkFile_PythonIndentationBoundaries(t *testing.T) {
	content := "import os\n\ndef a():\n    pass\n\ndef b():\n    pass\n"
	chunks := ChunkFile(context.Background(), "python", content)
	require.GreaterOrEqual(t, len(chunks), 2)
}

func TestChunkFile_GoCurlyBrace(t *testing.T) {
	content := "package main\n\nfunc a() {}\n\nfunc b() {}\n"
	chunks := ChunkFile(context.Background(), "go", content)
	require.NotEmpty(t, chunks)
}
