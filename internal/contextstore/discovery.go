package contextstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiscoveredFile is one file discovery.go's walk admitted for
// summarization consideration.
type DiscoveredFile struct {
	RelPath    string
	AbsPath    string
	SizeBytes  int64
	ModifiedAt int64 // unix nanos, for cheap comparison without importing time in hot loop
	Language   string
}

// languageByExtension is intentionally small; anything unrecognized falls
// back to the empty string, which the chunker treats as "line-count
// fallback" per spec.md §4.3.
var languageByExtension = map[string]string{
	".go":   "go",
	".rs":   "rust",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".md":   "markdown",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".toml": "toml",
}

// Discover walks root honoring gitignore/.kaixignore semantics and the
// discovery config's max depth, size ceiling, and explicit excludes.
// Returned files are ordered by priority extension first (source before
// config before docs, per spec.md §4.3 "prioritize source over
// configuration over documentation when ordering work"), then path.
func Discover(root string, cfg DiscoveryConfig) ([]DiscoveredFile, error) {
	matcher := loadIgnoreMatcher(root, cfg.ExcludePatterns)
	priority := make(map[string]int, len(cfg.PriorityExtensions))
	for i, ext := range cfg.PriorityExtensions {
		priority[ext] = i
	}

	var files []DiscoveredFile
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the whole walk
		}
		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil || relPath == "." {
			return nil
		}
		depth := strings.Count(filepath.ToSlash(relPath), "/") + 1
		if d.IsDir() {
			if relPath == ".git" {
				return filepath.SkipDir
			}
			if matcher.Match(relPath, true) {
				return filepath.SkipDir
			}
			if cfg.MaxDepth > 0 && depth > cfg.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if matcher.Match(relPath, false) {
			return nil
		}
		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		if cfg.MaxFileSizeBytes > 0 && info.Size() > cfg.MaxFileSizeBytes {
			return nil
		}
		if looksBinary(path) {
			return nil
		}

		files = append(files, DiscoveredFile{
			RelPath:    filepath.ToSlash(relPath),
			AbsPath:    path,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UnixNano(),
			Language:   languageByExtension[strings.ToLower(filepath.Ext(path))],
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool {
		pi, oki := priority[filepath.Ext(files[i].RelPath)]
		pj, okj := priority[filepath.Ext(files[j].RelPath)]
		if !oki {
			pi = len(cfg.PriorityExtensions)
		}
		if !okj {
			pj = len(cfg.PriorityExtensions)
		}
		if pi != pj {
			return pi < pj
		}
		return files[i].RelPath < files[j].RelPath
	})
	return files, nil
}

// looksBinary applies a null-byte heuristic over a bounded prefix of the
// file, the same cheap check used by most gitignore-aware walkers when no
// mime library is wired.
func looksBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 8000)
	n, _ := io.ReadFull(f, buf)
	return bytes.IndexByte(buf[:n], 0) != -1
}

// readFileBounded reads a file's full contents, refusing anything over
// ceiling bytes (0 means unbounded) so a stray huge file can't be pulled
// into memory during on-demand re-summarization.
func readFileBounded(path string, ceiling int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if ceiling > 0 {
		info, err := f.Stat()
		if err != nil {
			return "", err
		}
		if info.Size() > ceiling {
			return "", os.ErrInvalid
		}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ContentHash returns the sha256 hex digest of a file's contents, used for
// the change-detection cache key (spec.md §4.3). crypto/sha256 is stdlib:
// no pack example wires a non-stdlib hash for content-addressed caching —
// cklxx-elephant.ai's own ast.ComputeHash equivalent is stdlib sha256 too.
func ContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
