package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/docforge/internal/sharedctx"
)

// PhaseGate is checked before the coordinator enters a state. A gate error
// fails the project.
type PhaseGate interface {
	// Name returns the gate identifier
	Name() string

	// Check validates the project against the shared context.
	Check(ctx context.Context, p *Project, snap sharedctx.Snapshot) error
}

// FoundationGate holds Phase 2 until every selected foundational document
// is visible in the shared context. Secondary prompts assume the whole
// foundation exists.
type FoundationGate struct{}

func (FoundationGate) Name() string { return "foundation-complete" }

func (FoundationGate) Check(_ context.Context, p *Project, snap sharedctx.Snapshot) error {
	var missing []string
	for _, d := range p.selection.Foundational {
		if !snap.Has(d.ID) {
			missing = append(missing, d.ID)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("foundational documents missing from shared context: %s", strings.Join(missing, ", "))
	}
	return nil
}

// CompletionGate checks before packaging that every document reported as
// completed has an artifact.
type CompletionGate struct{}

func (CompletionGate) Name() string { return "completed-artifacts" }

func (CompletionGate) Check(_ context.Context, p *Project, snap sharedctx.Snapshot) error {
	for _, id := range p.completed() {
		if !snap.Has(id) {
			return fmt.Errorf("completed document %s has no artifact", id)
		}
	}
	return nil
}
