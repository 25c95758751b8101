package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// IndexEntry describes one template in the generated index.
type IndexEntry struct {
	Path     string          `json:"path"`
	Name     string          `json:"name"`
	Metadata json.RawMessage `json:"metadata"`
	Error    string          `json:"error,omitempty"`

	domain, complexity, version string
}

// indexTemplate is the part of the metadata the index sorts on.
type indexTemplate struct {
	Template struct {
		Version    string `json:"version"`
		Domain     string `json:"domain"`
		Complexity string `json:"complexity"`
	} `json:"template"`
}

// sorts after any real domain or complexity
const missingKey = "zzz"

// BuildIndex lists the templates under root matching pattern with their raw
// metadata, ordered by domain, complexity and name. Templates without
// metadata sort last; same-named templates list the newest version first.
func BuildIndex(root, pattern string) ([]IndexEntry, error) {
	paths, err := Discover(root, pattern, DefaultSkip)
	if err != nil {
		return nil, err
	}

	entries := make([]IndexEntry, 0, len(paths))
	for _, rel := range paths {
		base := path.Base(rel)
		e := IndexEntry{
			Path:       rel,
			Name:       strings.TrimSuffix(base, path.Ext(base)),
			Metadata:   json.RawMessage("null"),
			domain:     missingKey,
			complexity: missingKey,
		}

		data, err := os.ReadFile(MetaPath(filepath.Join(root, filepath.FromSlash(rel))))
		switch {
		case os.IsNotExist(err):
		case err != nil:
			e.Error = err.Error()
		default:
			var t indexTemplate
			if err := json.Unmarshal(data, &t); err != nil {
				e.Error = fmt.Sprintf("invalid metadata JSON: %v", err)
				break
			}
			e.Metadata = json.RawMessage(data)
			e.domain = orMissing(t.Template.Domain)
			e.complexity = orMissing(t.Template.Complexity)
			e.version = t.Template.Version
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.domain != b.domain {
			return a.domain < b.domain
		}
		if a.complexity != b.complexity {
			return a.complexity < b.complexity
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return newer(a.version, b.version)
	})
	return entries, nil
}

// WriteIndex writes entries as indented JSON to path.
func WriteIndex(path string, entries []IndexEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func orMissing(s string) string {
	if s == "" {
		return missingKey
	}
	return s
}

// newer reports whether version a sorts before b. Unparseable versions go last.
func newer(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return a < b
	case errA != nil:
		return false
	case errB != nil:
		return true
	}
	return va.GreaterThan(vb)
}
