package dag

import "fmt"

// State is the runtime state of a step. Transitions only move forward.
type State string

const (
	StatePending   State = "pending"
	StateReady     State = "ready"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// IsTerminal reports whether s is final.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateSkipped:
		return true
	default:
		return false
	}
}

func allowed(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateReady || to == StateSkipped
	case StateReady:
		return to == StateRunning || to == StateSkipped
	case StateRunning:
		return to == StateSucceeded || to == StateFailed
	default:
		return false
	}
}

// transition moves states[i] from -> to, or reports an invariant violation.
func transition(states []State, ids func(int) string, i int, from, to State) error {
	if states[i] != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", ids(i), from, states[i])
	}
	if !allowed(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", ids(i), from, to)
	}
	states[i] = to
	return nil
}
