package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/brock-run/spec-driven-development/aggregation"
	"github.com/brock-run/spec-driven-development/metadata"
	"github.com/brock-run/spec-driven-development/rulesets"
)

// MetaSuffix is the extension of a document's sidecar metadata file.
const MetaSuffix = ".meta.json"

// Document is a loaded document ready for validation.
type Document struct {
	// ID is the slash separated path relative to the loader root.
	ID          string
	Path        string
	Title       string
	Text        string
	Frontmatter map[string]any
	Metadata    *metadata.Metadata
	MetadataErr error
	ReadErr     error
}

// Item converts the document to an aggregation item.
func (d Document) Item() aggregation.Item {
	return aggregation.Item{
		ID:          d.ID,
		Text:        d.Text,
		ReadErr:     d.ReadErr,
		Metadata:    d.Metadata,
		MetadataErr: d.MetadataErr,
	}
}

// MetaPath returns the sidecar metadata path for a document: the file name
// with its extension replaced by .meta.json.
func MetaPath(docPath string) string {
	return strings.TrimSuffix(docPath, filepath.Ext(docPath)) + MetaSuffix
}

// Loader reads documents below Root and resolves their metadata.
//
// Metadata comes from the sidecar .meta.json when present. Otherwise a
// frontmatter "type" key selects a built-in rule set, and with ByFileName set
// conventional names such as spec.md do too. A document with none of these is
// validated without metadata.
type Loader struct {
	Root string
	// HTML converts .html and .htm documents. Nil leaves them as raw text.
	HTML *HTMLConverter
	// Builtin layers the built-in rule set for the document type under
	// sidecar metadata.
	Builtin bool
	// ByFileName resolves built-in rule sets from conventional file names.
	ByFileName bool
}

// Load reads one document. Failures are recorded on the Document, never returned.
func (l *Loader) Load(rel string) Document {
	doc := Document{ID: filepath.ToSlash(rel), Path: filepath.Join(l.Root, filepath.FromSlash(rel))}

	data, err := os.ReadFile(doc.Path)
	if err != nil {
		doc.ReadErr = err
		return doc
	}

	text := string(data)
	if l.HTML != nil && isHTML(doc.Path) {
		title, markdown, err := l.HTML.Convert(data)
		if err != nil {
			doc.ReadErr = fmt.Errorf("convert html: %w", err)
			return doc
		}
		doc.Title, text = title, markdown
	}
	doc.Frontmatter, doc.Text = SplitFrontmatter(text)
	if t := stringField(doc.Frontmatter, "title"); t != "" {
		doc.Title = t
	}

	doc.Metadata, doc.MetadataErr = l.resolveMetadata(doc)
	return doc
}

// LoadAll reads every document in rels, in order.
func (l *Loader) LoadAll(rels []string) []Document {
	docs := make([]Document, 0, len(rels))
	for _, rel := range rels {
		docs = append(docs, l.Load(rel))
	}
	return docs
}

// Items loads rels and converts them to aggregation items.
func (l *Loader) Items(rels []string) []aggregation.Item {
	items := make([]aggregation.Item, 0, len(rels))
	for _, d := range l.LoadAll(rels) {
		items = append(items, d.Item())
	}
	return items
}

func (l *Loader) resolveMetadata(doc Document) (*metadata.Metadata, error) {
	sidecar, err := metadata.LoadFile(MetaPath(doc.Path))
	switch {
	case err == nil:
		if l.Builtin {
			return metadata.Merge(rulesets.For(sidecar.Type()), sidecar), nil
		}
		return sidecar, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	if t := stringField(doc.Frontmatter, "type"); t != "" {
		docType, err := metadata.ParseDocumentType(t)
		if err != nil {
			return nil, &metadata.ConfigError{Source: doc.ID, Problems: []string{"frontmatter: " + err.Error()}}
		}
		return rulesets.For(docType), nil
	}

	if l.ByFileName {
		if meta, ok := rulesets.ForFile(doc.Path); ok {
			return meta, nil
		}
	}
	return nil, nil
}
