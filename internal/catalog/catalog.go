// Package catalog describes the documents that can be generated, how they
// depend on each other and which profiles include them.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Phase is the coordinator phase a document belongs to.
type Phase string

const (
	PhaseFoundational Phase = "foundational"
	PhaseSecondary    Phase = "secondary"
)

var (
	ErrUnknownDocument = errors.New("unknown document")
	ErrUnknownProfile  = errors.New("unknown profile")
	ErrNotInProfile    = errors.New("document not available in profile")
)

// Document is one catalog entry.
type Document struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Phase        Phase    `yaml:"phase" json:"phase"`
	Category     string   `yaml:"category" json:"category"`
	Priority     string   `yaml:"priority" json:"priority"`
	Description  string   `yaml:"description" json:"description"`
	Instructions string   `yaml:"instructions" json:"-"`
	DependsOn    []string `yaml:"depends_on" json:"depends_on,omitempty"`
	Profiles     []string `yaml:"profiles" json:"profiles,omitempty"`
	// Technical documents are routed to the hybrid backend.
	Technical bool `yaml:"technical" json:"technical"`
}

// InProfile reports whether the document is part of profile.
func (d Document) InProfile(profile string) bool {
	return len(d.Profiles) == 0 || slices.Contains(d.Profiles, profile)
}

// Profile is a named subset of the catalog.
type Profile struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
}

type file struct {
	Profiles  []Profile  `yaml:"profiles"`
	Documents []Document `yaml:"documents"`
}

// Catalog is an immutable, validated document catalog.
type Catalog struct {
	profiles []Profile
	docs     []Document
	index    map[string]int
}

// Parse decodes and validates a YAML catalog. Dependencies must refer to
// earlier entries, which also rules out cycles, and a foundational document
// may not depend on a secondary one.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if len(f.Profiles) == 0 {
		return nil, errors.New("catalog defines no profiles")
	}

	c := &Catalog{profiles: f.Profiles, docs: f.Documents, index: make(map[string]int, len(f.Documents))}
	profiles := make(map[string]bool, len(f.Profiles))
	for _, p := range f.Profiles {
		profiles[p.ID] = true
	}

	for i, d := range f.Documents {
		if d.ID == "" {
			return nil, fmt.Errorf("catalog entry %d has no id", i)
		}
		if _, dup := c.index[d.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog entry %q", d.ID)
		}
		if d.Phase != PhaseFoundational && d.Phase != PhaseSecondary {
			return nil, fmt.Errorf("%s: invalid phase %q", d.ID, d.Phase)
		}
		for _, p := range d.Profiles {
			if !profiles[p] {
				return nil, fmt.Errorf("%s: %w %q", d.ID, ErrUnknownProfile, p)
			}
		}
		for _, dep := range d.DependsOn {
			j, ok := c.index[dep]
			if !ok {
				return nil, fmt.Errorf("%s depends on %q, which is unknown or declared later", d.ID, dep)
			}
			if d.Phase == PhaseFoundational && f.Documents[j].Phase == PhaseSecondary {
				return nil, fmt.Errorf("foundational %s cannot depend on secondary %s", d.ID, dep)
			}
		}
		c.index[d.ID] = i
	}
	return c, nil
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the embedded catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultCatalog)
		if err != nil {
			panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
		}
		defaultCat = c
	})
	return defaultCat
}

// Get returns the document with id.
func (c *Catalog) Get(id string) (Document, bool) {
	i, ok := c.index[id]
	if !ok {
		return Document{}, false
	}
	return c.docs[i], true
}

// Documents returns every document in catalog order.
func (c *Catalog) Documents() []Document {
	return slices.Clone(c.docs)
}

// Profiles returns the known profiles.
func (c *Catalog) Profiles() []Profile {
	return slices.Clone(c.profiles)
}

// HasProfile reports whether id names a profile.
func (c *Catalog) HasProfile(id string) bool {
	return slices.ContainsFunc(c.profiles, func(p Profile) bool { return p.ID == id })
}

// TechnicalDocuments returns the ids routed to the hybrid backend.
func (c *Catalog) TechnicalDocuments() []string {
	var out []string
	for _, d := range c.docs {
		if d.Technical {
			out = append(out, d.ID)
		}
	}
	return out
}
