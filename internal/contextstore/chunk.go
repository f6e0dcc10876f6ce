package contextstore

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
)

// Chunk is one language-aware slice of a file too large to summarize whole
// in one pass (spec.md §4.3 "Files exceeding a size threshold are chunked
// on language-aware boundaries").
type Chunk struct {
	Text      string
	StartLine int
	EndLine   int
}

var curlyBraceGrammars = map[string]*sitter.Language{
	"go":         golang.GetLanguage(),
	"javascript": javascript.GetLanguage(),
	"typescript": javascript.GetLanguage(), // close enough for top-level-declaration boundaries
}

// ChunkFile splits content into chunks appropriate to language, grounded
// on C360Studio-semspec's tree-sitter parser usage
// (processor/ast/python/parser.go: sitter.NewParser + SetLanguage +
// ParseCtx) for curly-brace languages, a regex-based function-boundary
// split for Python (indentation-based), heading-boundary splitting for
// Markdown, and a fixed-line-count window for anything unrecognized —
// exactly the four cases spec.md §4.3 enumerates.
func ChunkFile(ctx context.Context, language, content string) []Chunk {
	switch {
	case curlyBraceGrammars[language] != nil:
		if chunks, ok := chunkCurlyBrace(ctx, curlyBraceGrammars[language], content); ok {
			return chunks
		}
	case language == "python":
		return chunkIndentation(content)
	case language == "markdown":
		return chunkMarkdownHeadings(content)
	}
	return chunkByLineCount(content, defaultChunkLines)
}

const defaultChunkLines = 200

func chunkCurlyBrace(ctx context.Context, lang *sitter.Language, content string) ([]Chunk, bool) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, []byte(content))
	if err != nil || tree == nil {
		return nil, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || int(root.ChildCount()) == 0 {
		return nil, false
	}

	lineOf := newLineIndex(content)
	var chunks []Chunk
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		text := content[child.StartByte():child.EndByte()]
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Text:      text,
			StartLine: lineOf(int(child.StartByte())),
			EndLine:   lineOf(int(child.EndByte())),
		})
	}
	if len(chunks) == 0 {
		return nil, false
	}
	return chunks, true
}

// funcBoundaryRE approximates Python's "function boundaries" chunking rule
// for an indentation-based language without a tree-sitter grammar wired:
// a new chunk starts at every top-level `def`/`class` line.
var funcBoundaryRE = regexp.MustCompile(`(?m)^(def |class |async def )`)

func chunkIndentation(content string) []Chunk {
	lines := strings.Split(content, "\n")
	var chunks []Chunk
	start := 0
	for i, line := range lines {
		if i > 0 && funcBoundaryRE.MatchString(line) {
			chunks = append(chunks, Chunk{
				Text:      strings.Join(lines[start:i], "\n"),
				StartLine: start + 1,
				EndLine:   i,
			})
			start = i
		}
	}
	if start < len(lines) {
		chunks = append(chunks, Chunk{
			Text:      strings.Join(lines[start:], "\n"),
			StartLine: start + 1,
			EndLine:   len(lines),
		})
	}
	if len(chunks) <= 1 {
		return chunkByLineCount(content, defaultChunkLines)
	}
	return chunks
}

var markdownHeadingRE = regexp.MustCompile(`(?m)^#{1,6}\s`)

func chunkMarkdownHeadings(content string) []Chunk {
	lines := strings.Split(content, "\n")
	var chunks []Chunk
	start := 0
	for i, line := range lines {
		if i > 0 && markdownHeadingRE.MatchString(line) {
			chunks = append(chunks, Chunk{
				Text:      strings.Join(lines[start:i], "\n"),
				StartLine: start + 1,
				EndLine:   i,
			})
			start = i
		}
	}
	if start < len(lines) {
		chunks = append(chunks, Chunk{
			Text:      strings.Join(lines[start:], "\n"),
			StartLine: start + 1,
			EndLine:   len(lines),
		})
	}
	if len(chunks) == 0 {
		return chunkByLineCount(content, defaultChunkLines)
	}
	return chunks
}

func chunkByLineCount(content string, window int) []Chunk {
	lines := strings.Split(content, "\n")
	var chunks []Chunk
	for start := 0; start < len(lines); start += window {
		end := start + window
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, Chunk{
			Text:      strings.Join(lines[start:end], "\n"),
			StartLine: start + 1,
			EndLine:   end,
		})
	}
	return chunks
}

// newLineIndex returns a function mapping a byte offset into content to a
// 1-based line number, precomputed once per file rather than rescanned per
// node.
func newLineIndex(content string) func(byteOffset int) int {
	offsets := []int{0}
	for i, b := range []byte(content) {
		if b == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return func(byteOffset int) int {
		lo, hi := 0, len(offsets)-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if offsets[mid] <= byteOffset {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		return lo + 1
	}
}
