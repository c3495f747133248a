package catalog

import (
	"strings"

	"github.com/fyrsmithlabs/docforge/internal/sharedctx"
)

// ExcerptLimit bounds how much of each dependency is quoted in a prompt.
const ExcerptLimit = 5000

const readability = `### Readability
- Write for the intended audience; define jargon on first use.
- Prefer short paragraphs and concrete examples.
- Use consistent terminology across sections.`

// SystemPrompt is sent with every generation request.
const SystemPrompt = "You are an expert technical writer producing professional project documentation in Markdown."

// BuildPrompt assembles the generation prompt for d from the project idea and
// whatever dependency artifacts are present in snap. Missing dependencies
// are silently omitted.
func BuildPrompt(d Document, idea string, snap sharedctx.Snapshot, cat *Catalog) string {
	var b strings.Builder

	if d.Instructions != "" {
		b.WriteString(strings.TrimSpace(d.Instructions))
		b.WriteString("\n\n")
	} else {
		b.WriteString("You are responsible for producing the document '" + d.Name + "'.\n")
		b.WriteString("Document ID: " + d.ID + "\n")
		b.WriteString("Category: " + orDefault(d.Category, "General") + "\n")
		b.WriteString("Priority: " + orDefault(d.Priority, "Unspecified") + "\n\n")
	}

	b.WriteString("### Project Idea\n")
	b.WriteString(strings.TrimSpace(idea))
	b.WriteString("\n\n### Document Description\n")
	b.WriteString(orDefault(d.Description, "Generate the requested project documentation."))
	b.WriteString("\n")

	refs := false
	for _, dep := range d.DependsOn {
		content := strings.TrimSpace(snap.Content(dep))
		if content == "" {
			continue
		}
		if !refs {
			b.WriteString("\n### Reference Materials\n")
			refs = true
		}
		name := dep
		if cat != nil {
			if dd, ok := cat.Get(dep); ok && dd.Name != "" {
				name = dd.Name
			}
		}
		b.WriteString("#### " + name + " (" + dep + ")\n")
		b.WriteString(Excerpt(content, ExcerptLimit))
		b.WriteString("\n\n")
	}

	b.WriteString("\n### Requirements\n")
	b.WriteString("- Produce a comprehensive Markdown document tailored to the project idea.\n")
	b.WriteString("- Use clear headings, bullet lists and tables where appropriate.\n")
	b.WriteString("- Incorporate relevant details from the reference materials.\n")
	b.WriteString("- Keep the content original; do not copy source text verbatim.\n\n")
	b.WriteString(readability)
	b.WriteString("\n\nBegin the document now.")
	return b.String()
}

// Excerpt truncates s to at most limit runes.
func Excerpt(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
