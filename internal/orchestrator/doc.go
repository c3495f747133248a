// Package orchestrator drives a documentation project through its phases.
//
// # Overview
//
// A Coordinator moves each Project through a fixed state machine:
//
//	Created → Phase1Running → Phase1Done → Phase2Running → Phase2Done → Phase3Running → Complete
//
// Any non-terminal state may move to Failed. Each transition is persisted
// and announced as a phase event; the final state is announced by exactly one
// complete event.
//
// # Phases
//
// Phase 1 generates the foundational documents through the quality loop.
// Foundational documents build on each other, so they run with low
// concurrency and any failure fails the project.
//
// Phase 2 generates the secondary documents on a worker pool in dependency
// order. A failed document skips its dependents but the project still
// completes; the failures are listed in the project error.
//
// Phase 3 packages whatever was generated. Packaging problems are logged and
// do not change the outcome.
//
// # Gates
//
// PhaseGate validators run before a state is entered. FoundationGate and
// CompletionGate are registered by default.
//
// # Registry
//
// The Registry starts projects in the background, answers status queries
// from memory or the store, and cancels running projects cooperatively. A
// cancelled project stops scheduling new documents, lets in-flight ones
// finish, and ends Failed without packaging.
package orchestrator
