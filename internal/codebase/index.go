// Package codebase builds and caches an on-demand index of a workspace's
// files, used by the server's /codebase route and by the ReAct engine's
// codebase-search tool.
package codebase

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/rushi32/IsoCode/pkg/types"
)

// ignoredDirs mirrors the fixed ignore set: dot-prefixed directories,
// dependency/output directories are never walked.
var ignoredDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"out":          true,
	"build":        true,
	"vendor":       true,
	"target":       true,
	".isocode":     true,
}

// binaryExtensions are skipped when building the file list and are never
// candidates for the key-files content map.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".webp": true, ".ico": true, ".pdf": true, ".zip": true, ".tar": true,
	".gz": true, ".exe": true, ".bin": true, ".so": true, ".dll": true,
	".dylib": true, ".wasm": true, ".woff": true, ".woff2": true, ".ttf": true,
}

// keyFileNames are previewed (first 2000 chars) when present at the
// workspace root, giving the ReAct engine quick project context.
var keyFileNames = map[string]bool{
	"README.md":        true,
	"go.mod":           true,
	"package.json":     true,
	"Cargo.toml":       true,
	"pyproject.toml":   true,
	"requirements.txt": true,
	"Makefile":         true,
}

const keyFilePreviewChars = 2000

// Index caches a workspace's FileIndex, rebuilding it once the TTL has
// elapsed or an explicit Invalidate has been requested.
type Index struct {
	workDir        string
	ignorePatterns []string

	mu    sync.RWMutex
	cache *types.FileIndex
}

// New creates a file index cache rooted at workDir. Building is lazy; the
// first Get call populates the cache.
func New(workDir string) *Index {
	return &Index{workDir: workDir}
}

// NewWithIgnorePatterns creates a file index cache that additionally skips
// any relative path matching one of patterns (doublestar glob syntax, e.g.
// "**/*.generated.go"), layered on top of the fixed ignore set.
func NewWithIgnorePatterns(workDir string, patterns []string) *Index {
	return &Index{workDir: workDir, ignorePatterns: patterns}
}

func (idx *Index) matchesIgnorePattern(rel string) bool {
	for _, pattern := range idx.ignorePatterns {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// Get returns the cached FileIndex, rebuilding it if missing, expired, or
// invalidated.
func (idx *Index) Get() (*types.FileIndex, error) {
	idx.mu.RLock()
	cached := idx.cache
	idx.mu.RUnlock()

	if cached != nil && time.Now().Sub(cached.BuiltAt) < types.FileIndexTTL {
		return cached, nil
	}

	built, err := idx.build()
	if err != nil {
		return nil, err
	}

	idx.mu.Lock()
	idx.cache = built
	idx.mu.Unlock()

	return built, nil
}

// Invalidate drops the cached index so the next Get rebuilds it
// unconditionally, regardless of TTL. Called by the fsnotify-backed
// Watcher and by the /codebase/reindex route.
func (idx *Index) Invalidate() {
	idx.mu.Lock()
	idx.cache = nil
	idx.mu.Unlock()
}

func (idx *Index) build() (*types.FileIndex, error) {
	entries := make([]types.FileIndexEntry, 0, 256)
	directories := make(map[string]bool)
	keyFiles := make(map[string]string)

	err := filepath.Walk(idx.workDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if path == idx.workDir {
			return nil
		}

		rel, relErr := filepath.Rel(idx.workDir, path)
		if relErr != nil {
			return nil
		}

		if info.IsDir() {
			if ignoredDirs[info.Name()] || strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			directories[rel] = true
			return nil
		}

		ext := filepath.Ext(path)
		if binaryExtensions[ext] {
			return nil
		}
		if idx.matchesIgnorePattern(rel) {
			return nil
		}

		entries = append(entries, types.FileIndexEntry{
			RelativePath: rel,
			Extension:    ext,
			Size:         info.Size(),
			Dir:          filepath.Dir(rel),
		})

		if keyFileNames[info.Name()] && filepath.Dir(rel) == "." {
			if content, readErr := os.ReadFile(path); readErr == nil {
				keyFiles[info.Name()] = previewContent(content)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelativePath < entries[j].RelativePath
	})

	return &types.FileIndex{
		Files:       entries,
		Directories: directories,
		KeyFiles:    keyFiles,
		TotalCount:  len(entries),
		BuiltAt:     time.Now(),
	}, nil
}

func previewContent(content []byte) string {
	s := string(content)
	if len(s) > keyFilePreviewChars {
		return s[:keyFilePreviewChars]
	}
	return s
}
