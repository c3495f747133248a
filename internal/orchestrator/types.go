package orchestrator

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/docforge/internal/store"
)

// State is a coordinator state.
type State string

const (
	StateCreated       State = "created"
	StatePhase1Running State = "phase1_running"
	StatePhase1Done    State = "phase1_done"
	StatePhase2Running State = "phase2_running"
	StatePhase2Done    State = "phase2_done"
	StatePhase3Running State = "phase3_running"
	StateComplete      State = "complete"
	StateFailed        State = "failed"
)

// AllStates returns the non-failure states in execution order.
func AllStates() []State {
	return []State{
		StateCreated, StatePhase1Running, StatePhase1Done,
		StatePhase2Running, StatePhase2Done, StatePhase3Running, StateComplete,
	}
}

// IsTerminal reports whether s is Complete or Failed.
func (s State) IsTerminal() bool { return s == StateComplete || s == StateFailed }

// Status maps a coordinator state onto the persisted project status.
func (s State) Status() store.Status {
	switch s {
	case StateCreated:
		return store.StatusCreated
	case StateComplete:
		return store.StatusComplete
	case StateFailed:
		return store.StatusFailed
	default:
		return store.StatusRunning
	}
}

// ErrInvalidTransition is returned for a state change the machine does not
// allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// CanTransition checks that next directly follows s. Failed is reachable
// from every non-terminal state.
func (s State) CanTransition(next State) error {
	if s.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, s)
	}
	if next == StateFailed {
		return nil
	}
	states := AllStates()
	cur, nxt := -1, -1
	for i, st := range states {
		if st == s {
			cur = i
		}
		if st == next {
			nxt = i
		}
	}
	if cur == -1 || nxt == -1 {
		return fmt.Errorf("%w: unknown state %s -> %s", ErrInvalidTransition, s, next)
	}
	if nxt != cur+1 {
		return fmt.Errorf("%w: %s -> %s must follow sequential order", ErrInvalidTransition, s, next)
	}
	return nil
}

// DefaultProfile is used when a request names none.
const DefaultProfile = "team"

// Request asks for a new project.
type Request struct {
	Idea    string `json:"idea"`
	Profile string `json:"profile"`
	// Documents limits generation to these documents and their
	// dependencies. Empty selects the whole profile.
	Documents []string `json:"documents,omitempty"`
}

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectExists   = errors.New("project already exists")
	ErrEmptyIdea       = errors.New("project idea is required")
)
