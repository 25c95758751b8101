// Package source finds documents on disk, loads their text and metadata and
// watches them for changes.
package source

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPattern matches every markdown document below the root.
const DefaultPattern = "**/*.md"

// DefaultSkip lists base names never treated as documents.
var DefaultSkip = []string{"README.md"}

// Discover returns the files under root matching pattern, as sorted slash
// separated paths relative to root. Files whose base name equals an entry of
// skip, compared case-insensitively, are left out.
func Discover(root, pattern string, skip []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("document root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document root %s is not a directory", root)
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}

	paths := matches[:0]
	for _, m := range matches {
		if skipped(path.Base(m), skip) {
			continue
		}
		paths = append(paths, m)
	}
	sort.Strings(paths)
	return paths, nil
}

func skipped(base string, skip []string) bool {
	for _, s := range skip {
		if strings.EqualFold(base, s) {
			return true
		}
	}
	return false
}
