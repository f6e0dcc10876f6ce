package contextstore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ignoreMatcher compiles .gitignore-syntax lines (plus an optional
// .kaixignore using the same syntax, per spec.md §4.3) into doublestar
// patterns. KAIX reuses doublestar/v4 for the glob matching itself
// (grounded on C360Studio-semspec's doublestar.FilepathGlob use) rather
// than hand-rolling a gitignore matcher — no pack example wires a
// dedicated gitignore library, and doublestar's "**" + "*" semantics cover
// gitignore's glob dialect closely enough that a line-by-line translation
// is the grounded, minimal-new-code choice.
type ignoreMatcher struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	glob      string
	negate    bool
	dirOnly   bool
	anchored  bool // leading "/" in the source line
}

// loadIgnoreMatcher reads .gitignore and .kaixignore (if present) from root
// and compiles their patterns, in addition to any explicit exclude
// patterns from DiscoveryConfig.
func loadIgnoreMatcher(root string, extra []string) *ignoreMatcher {
	m := &ignoreMatcher{}
	for _, name := range []string{".gitignore", ".kaixignore"} {
		m.loadFile(filepath.Join(root, name))
	}
	for _, p := range extra {
		m.patterns = append(m.patterns, compileLine(p))
	}
	return m
}

func (m *ignoreMatcher) loadFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.patterns = append(m.patterns, compileLine(line))
	}
}

func compileLine(line string) ignorePattern {
	p := ignorePattern{}
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if !p.anchored && !strings.Contains(line, "/") {
		// Bare names match at any depth, gitignore-style; a leading "/"
		// anchors them to the root instead.
		line = "**/" + line
	}
	if !strings.HasSuffix(line, "*") && !p.dirOnly {
		// Also match anything nested under a matched directory.
		p.glob = line
	} else {
		p.glob = line
	}
	return p
}

// Match reports whether relPath (workspace-relative, slash-separated)
// should be excluded. isDir tells the matcher whether dirOnly patterns
// apply.
func (m *ignoreMatcher) Match(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)
	excluded := false
	for _, p := range m.patterns {
		// A dirOnly pattern ("build/") never excludes a bare file matching
		// its name; it only excludes the directory itself and anything
		// nested under it.
		directHit, _ := doublestar.Match(p.glob, relPath)
		nestedHit, _ := doublestar.Match(p.glob+"/**", relPath)
		matched := nestedHit || (directHit && (!p.dirOnly || isDir))
		if !matched {
			continue
		}
		excluded = !p.negate
	}
	return excluded
}
