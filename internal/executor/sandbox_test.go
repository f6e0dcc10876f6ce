package executor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandbox_Resolve_AllowsPathWithinRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644))

	sb := NewSandbox(root)
	resolved, err := sb.Resolve("a.txt")
	require.NoError(t, err)

	rootReal, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, filepath.Join(rootReal, "a.txt"), resolved)
}

func TestSandbox_Resolve_RejectsParentTraversal(t *testing.T) {
	root := t.TempDir()
	sb := NewSandbox(root)

	_, err := sb.Resolve("../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotInSandbox)
}

func TestSandbox_Resolve_RejectsSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("nope"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "link.txt")))

	sb := NewSandbox(root)
	_, err := sb.Resolve("link.txt")
	assert.ErrorIs(t, err, ErrNotInSandbox)
}

func TestSandbox_Resolve_AllowsNotYetExistingWriteTarget(t *testing.T) {
	root := t.TempDir()
	sb := NewSandbox(root)

	resolved, err := sb.Resolve("newdir/new.txt")
	require.NoError(t, err)
	assert.Contains(t, resolved, "newdir")
}
