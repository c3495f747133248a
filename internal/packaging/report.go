package packaging

import (
	"context"
	"fmt"
	"strings"
)

// QualityReport writes quality_report.md summarising the assessments of the
// foundational documents.
type QualityReport struct{}

func (QualityReport) Name() string { return "quality_report" }

func (QualityReport) Package(_ context.Context, b *Bundle) error {
	var (
		sb       strings.Builder
		total    int
		scored   int
		improved int
	)
	sb.WriteString("# Quality Report\n\n")
	sb.WriteString("| Document | Score | Initial | Threshold | Improved | Delta |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, d := range b.Documents {
		a := d.Assessment
		if a == nil {
			continue
		}
		if a.Unscored {
			fmt.Fprintf(&sb, "| %s | unscored | - | %d | - | - |\n", title(d), a.Threshold)
			continue
		}
		scored++
		total += a.Score
		imp, delta := "no", "-"
		if a.Improved {
			improved++
			imp = "yes"
			delta = fmt.Sprintf("%+d", a.Delta)
		}
		fmt.Fprintf(&sb, "| %s | %d | %d | %d | %s | %s |\n", title(d), a.Score, a.InitialScore, a.Threshold, imp, delta)
	}
	if scored > 0 {
		fmt.Fprintf(&sb, "\nOverall Quality Score: %d/100\n", total/scored)
	} else {
		sb.WriteString("\nNo documents were scored.\n")
	}
	fmt.Fprintf(&sb, "Documents generated: %d. Improved: %d.\n", len(b.Documents), improved)
	b.AddFile("quality_report.md", sb.String())
	return nil
}
