// Package packaging runs the final phase of a project: cross-referencing
// the generated documents, writing the index and quality report, and
// exporting everything to disk.
package packaging

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/fyrsmithlabs/docforge/internal/quality"
)

// Document is one generated document handed to packaging.
type Document struct {
	ID      string
	Name    string
	Content string
	// DependsOn lists the catalog dependencies that were generated too.
	DependsOn  []string
	Assessment *quality.Assessment
}

// Bundle is the full artifact set of a completed project. Packagers of the
// same stage run concurrently; Documents may only be rewritten by the
// transform stage, and extra files are added through AddFile.
type Bundle struct {
	ProjectID string
	Idea      string
	Profile   string
	Documents []Document

	mu    sync.Mutex
	files map[string]string
}

// AddFile records an extra output file such as the index.
func (b *Bundle) AddFile(name, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.files == nil {
		b.files = make(map[string]string)
	}
	b.files[name] = content
}

// Files returns a copy of the extra files.
func (b *Bundle) Files() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.files)
}

// FileNames returns the extra file names, sorted.
func (b *Bundle) FileNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Sorted(maps.Keys(b.files))
}

// Document returns the document with id.
func (b *Bundle) Document(id string) (Document, bool) {
	for _, d := range b.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return Document{}, false
}

// Packager is one packaging collaborator.
type Packager interface {
	Name() string
	Package(ctx context.Context, b *Bundle) error
}
