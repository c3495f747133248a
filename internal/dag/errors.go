package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGraph = errors.New("invalid step graph")
	ErrCycle        = errors.New("cycle detected")
	// ErrCancelled is the cause recorded for steps that never started because
	// the run was cancelled.
	ErrCancelled = errors.New("run cancelled")
)

// GraphError wraps graph validation failures.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(path []string) error {
	msg := "cycle"
	if len(path) > 0 {
		msg = "cycle: " + strings.Join(path, " -> ")
	}
	return &GraphError{Kind: ErrCycle, Msg: msg}
}

// StepError is a failure of the step's own capability.
type StepError struct {
	StepID string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.StepID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// SkippedError marks a step that never ran. Cause names the failed ancestor;
// it is empty when the step was skipped by cancellation, in which case Err is
// ErrCancelled.
type SkippedError struct {
	StepID string
	Cause  string
	Err    error
}

func (e *SkippedError) Error() string {
	if e.Cause == "" {
		return fmt.Sprintf("step %s skipped: %v", e.StepID, e.Err)
	}
	return fmt.Sprintf("step %s skipped: dependency %s failed", e.StepID, e.Cause)
}

func (e *SkippedError) Unwrap() error { return e.Err }
