package codebase

import (
	"os"
	"path/filepath"
	"strings"
)

// walkDirs calls fn for root and every non-ignored subdirectory beneath it.
// Used by the watcher's initial fsnotify registration; the index builder
// walks the tree with its own filepath.Walk.
func walkDirs(root string, fn func(dir string) error) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && (ignoredDirs[info.Name()] || strings.HasPrefix(info.Name(), ".")) {
			return filepath.SkipDir
		}
		return fn(path)
	})
}
