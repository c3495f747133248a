package packaging

import (
	"context"
	"fmt"
	"strings"
)

const relatedHeading = "## Related Documents"

// CrossReferencer appends a "Related Documents" section to every document,
// linking the documents it was built from and the ones built from it.
type CrossReferencer struct{}

func (CrossReferencer) Name() string { return "cross_references" }

func (CrossReferencer) Package(_ context.Context, b *Bundle) error {
	usedBy := make(map[string][]string)
	for _, d := range b.Documents {
		for _, dep := range d.DependsOn {
			usedBy[dep] = append(usedBy[dep], d.ID)
		}
	}

	for i, d := range b.Documents {
		if strings.Contains(d.Content, relatedHeading) {
			continue
		}
		var refs []string
		for _, dep := range d.DependsOn {
			if ref, ok := b.Document(dep); ok {
				refs = append(refs, fmt.Sprintf("- Builds on [%s](%s.md)", title(ref), ref.ID))
			}
		}
		for _, id := range usedBy[d.ID] {
			if ref, ok := b.Document(id); ok {
				refs = append(refs, fmt.Sprintf("- Used by [%s](%s.md)", title(ref), ref.ID))
			}
		}
		if len(refs) == 0 {
			continue
		}
		b.Documents[i].Content = strings.TrimRight(d.Content, "\n") + "\n\n" + relatedHeading + "\n\n" + strings.Join(refs, "\n") + "\n"
	}
	return nil
}

// Index writes index.md listing every document.
type Index struct{}

func (Index) Name() string { return "index" }

func (Index) Package(_ context.Context, b *Bundle) error {
	var sb strings.Builder
	sb.WriteString("# Project Documentation\n\n")
	if idea := strings.TrimSpace(b.Idea); idea != "" {
		sb.WriteString("> " + firstLine(idea) + "\n\n")
	}
	for _, d := range b.Documents {
		fmt.Fprintf(&sb, "- [%s](%s.md)\n", title(d), d.ID)
	}
	b.AddFile("index.md", sb.String())
	return nil
}

func title(d Document) string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
