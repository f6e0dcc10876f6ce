// Package executor implements the Task Executor contract: running one
// refined instruction against the sandboxed working directory and
// returning a structured plan.TaskResult.
package executor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/ReOpsIL/KAIX/internal/logging"
)

// ErrNotInSandbox is returned when a path argument, once canonicalized,
// does not lie at or under the configured working directory.
var ErrNotInSandbox = errors.New("not-in-sandbox")

// Sandbox canonicalizes and confines path arguments to a root directory.
// Grounded on cklxx-elephant.ai/internal/infra/tools/builtin/pathutil's
// PathResolver — normalize-then-contain — generalized here into a single
// Resolve call that both canonicalizes symlinks and enforces containment,
// since the executor (unlike the teacher's tool layer) never falls back to
// treating an out-of-sandbox path as merely "leave it for later rejection".
type Sandbox struct {
	root   string
	logger logging.Logger
}

// NewSandbox roots a Sandbox at root, which must already be an absolute,
// existing directory (the caller — cmd/kaix's buildContainer — resolves it
// once at startup).
func NewSandbox(root string) *Sandbox {
	return &Sandbox{root: root, logger: logging.NewComponentLogger("executor.sandbox")}
}

// Root returns the confined working directory.
func (s *Sandbox) Root() string { return s.root }

// Resolve canonicalizes path (interpreting relative paths against the
// sandbox root, never the process's current directory) and verifies the
// result is root itself or lies under it. Symlinks are resolved so a symlink
// planted inside the sandbox cannot be used to escape it. A path that
// does not yet exist (e.g. a write-file target) is resolved by walking up
// to the nearest existing ancestor.
func (s *Sandbox) Resolve(path string) (string, error) {
	if path == "" {
		return "", ErrNotInSandbox
	}
	joined := path
	if !filepath.IsAbs(joined) {
		joined = filepath.Join(s.root, joined)
	}
	joined = filepath.Clean(joined)

	resolved, err := resolveExistingPrefix(joined)
	if err != nil {
		return "", err
	}

	rootResolved, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		rootResolved = s.root
	}

	if !pathWithin(rootResolved, resolved) {
		s.logger.Warn("security: path %q resolved to %q, outside sandbox root %q", path, resolved, rootResolved)
		return "", ErrNotInSandbox
	}
	return resolved, nil
}

// resolveExistingPrefix evaluates symlinks on the longest existing prefix
// of path, then rejoins the non-existent suffix, so a not-yet-created
// write-file target still gets containment-checked against its real
// parent directory.
func resolveExistingPrefix(path string) (string, error) {
	if _, err := os.Lstat(path); err == nil {
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return "", err
		}
		return real, nil
	}

	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	realParent, err := resolveExistingPrefix(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(realParent, filepath.Base(path)), nil
}

func pathWithin(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..") && rel != ".."
}
