package catalog

import (
	"fmt"
	"slices"
)

// Selection is the resolved set of documents for one project, in catalog
// order.
type Selection struct {
	Profile      string
	Foundational []Document
	Secondary    []Document
}

// IDs returns every selected id, foundational first.
func (s Selection) IDs() []string {
	out := make([]string, 0, len(s.Foundational)+len(s.Secondary))
	for _, d := range s.Foundational {
		out = append(out, d.ID)
	}
	for _, d := range s.Secondary {
		out = append(out, d.ID)
	}
	return out
}

// Contains reports whether id is selected.
func (s Selection) Contains(id string) bool {
	return slices.Contains(s.IDs(), id)
}

// Resolve expands requested with every transitive dependency available in
// profile. An empty request selects the whole profile. Dependencies outside
// the profile are optional context and are not added.
func (c *Catalog) Resolve(profile string, requested []string) (Selection, error) {
	if !c.HasProfile(profile) {
		return Selection{}, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
	}

	selected := make(map[string]bool)
	if len(requested) == 0 {
		for _, d := range c.docs {
			if d.InProfile(profile) {
				selected[d.ID] = true
			}
		}
	}

	var visit func(id string)
	visit = func(id string) {
		if selected[id] {
			return
		}
		selected[id] = true
		d, _ := c.Get(id)
		for _, dep := range d.DependsOn {
			if dd, _ := c.Get(dep); dd.InProfile(profile) {
				visit(dep)
			}
		}
	}
	for _, id := range requested {
		d, ok := c.Get(id)
		if !ok {
			return Selection{}, fmt.Errorf("%w: %q", ErrUnknownDocument, id)
		}
		if !d.InProfile(profile) {
			return Selection{}, fmt.Errorf("%w: %q in %q", ErrNotInProfile, id, profile)
		}
		visit(id)
	}

	sel := Selection{Profile: profile}
	for _, d := range c.docs {
		if !selected[d.ID] {
			continue
		}
		if d.Phase == PhaseFoundational {
			sel.Foundational = append(sel.Foundational, d)
		} else {
			sel.Secondary = append(sel.Secondary, d)
		}
	}
	return sel, nil
}

// SecondaryDeps returns the dependencies of d that are secondary documents
// in sel. These become executor edges; foundational dependencies are already
// complete when secondary documents are scheduled.
func (s Selection) SecondaryDeps(d Document) []string {
	var out []string
	for _, dep := range d.DependsOn {
		for _, sd := range s.Secondary {
			if sd.ID == dep {
				out = append(out, dep)
				break
			}
		}
	}
	return out
}
