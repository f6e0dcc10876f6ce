package contextstore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestDiscover_HonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", []byte("vendor/\n*.log\n"))
	writeFile(t, root, "main.go", []byte("package main\n"))
	writeFile(t, root, "vendor/dep.go", []byte("package dep\n"))
	writeFile(t, root, "debug.log", []byte("noise"))

	files, err := Discover(root, DefaultDiscoveryConfig())
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.RelPath)
	}
	assert.Contains(t, names, "main.go")
	assert.NotContains(t, names, "vendor/dep.go")
	assert.NotContains(t, names, "debug.log")
}

func TestDiscover_SizeCeilingBoundary(t *testing.T) {
	root := t.TempDir()
	atCeiling := bytes.Repeat([]byte("a"), 100)
	overCeiling := bytes.Repeat([]byte("a"), 101)
	writeFile(t, root, "at.txt", atCeiling)
	writeFile(t, root, "over.txt", overCeiling)

	cfg := DefaultDiscoveryConfig()
	cfg.MaxFileSizeBytes = 100

	files, err := Discover(root, cfg)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.RelPath)
	}
	assert.Contains(t, names, "at.txt")
	assert.NotContains(t, names, "over.txt")
}

func TestDiscover_SkipsBinary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "text.txt", []byte("hello world"))
	writeFile(t, root, "binary.dat", []byte{0x00, 0x01, 0x02, 'b', 'i', 'n'})

	files, err := Discover(root, DefaultDiscoveryConfig())
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.RelPath)
	}
	assert.Contains(t, names, "text.txt")
	assert.NotContains(t, names, "binary.dat")
}

func TestDiscover_PrioritizesSourceOverDocs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", []byte("# docs"))
	writeFile(t, root, "main.go", []byte("package main\n"))

	files, err := Discover(root, DefaultDiscoveryConfig())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "main.go", files[0].RelPath)
}

func TestContentHash_StableForSameContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", []byte("same content"))
	writeFile(t, root, "b.txt", []byte("same content"))

	ha, err := ContentHash(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	hb, err := ContentHash(filepath.Join(root, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}
