package aggregation

import (
	"path"
	"path/filepath"

	"github.com/brock-run/spec-driven-development/metadata"
)

// GroupFunc maps a document to its breakdown key.
type GroupFunc func(id string, meta *metadata.Metadata) string

// Unknown is the key used when a document carries no value to group on.
const Unknown = "unknown"

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

// ByDocumentType groups by the metadata's document type.
func ByDocumentType(_ string, meta *metadata.Metadata) string {
	return orUnknown(string(meta.Type()))
}

// ByDomain groups by template domain.
func ByDomain(_ string, meta *metadata.Metadata) string {
	if meta == nil {
		return Unknown
	}
	return orUnknown(meta.Template.Domain)
}

// ByAudience groups by template audience.
func ByAudience(_ string, meta *metadata.Metadata) string {
	if meta == nil {
		return Unknown
	}
	return orUnknown(meta.Template.Audience)
}

// ByDirectory groups by the id's parent directory, slash separated.
func ByDirectory(id string, _ *metadata.Metadata) string {
	return path.Dir(filepath.ToSlash(id))
}

// GroupFuncByName resolves a configured grouping name.
func GroupFuncByName(name string) (GroupFunc, bool) {
	switch name {
	case "", "type":
		return ByDocumentType, true
	case "domain":
		return ByDomain, true
	case "audience":
		return ByAudience, true
	case "directory":
		return ByDirectory, true
	default:
		return nil, false
	}
}
