// Package progress carries ordered project progress events from the
// coordinator to transports.
//
// Events for one project are numbered by an Emitter in the order they are
// emitted, and exactly one EventComplete closes the stream. Sinks deliver
// events; the transports (SSE, NATS, the terminal dashboard) only consume.
package progress

import (
	"context"
	"errors"
	"time"
)

// EventType names a progress event.
type EventType string

const (
	EventStarted   EventType = "started"
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
	EventSkipped   EventType = "skipped"
	// EventPhase marks a coordinator state change.
	EventPhase EventType = "phase"
	// EventComplete is terminal; Status tells whether the project completed
	// or failed.
	EventComplete EventType = "complete"
)

// IsTerminal reports whether t ends a project's stream.
func (t EventType) IsTerminal() bool { return t == EventComplete }

// Event is one progress notification.
type Event struct {
	Seq        uint64    `json:"seq"`
	Type       EventType `json:"type"`
	ProjectID  string    `json:"project_id"`
	DocumentID string    `json:"document_id,omitempty"`
	Phase      string    `json:"phase,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	// DurationMS is set on succeeded and failed.
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
	// Cause is the failed ancestor of a skipped document.
	Cause    string `json:"cause,omitempty"`
	Score    *int   `json:"score,omitempty"`
	Improved bool   `json:"improved,omitempty"`
	Provider string `json:"provider,omitempty"`
	// Status and Completed are set on complete.
	Status    string   `json:"status,omitempty"`
	Completed []string `json:"completed,omitempty"`
}

// ErrClosed is returned when emitting after the terminal event.
var ErrClosed = errors.New("progress stream closed")

// Sink receives events. Emit must not block for long; it is called from the
// scheduling path.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Emit(ctx context.Context, e Event) error { return f(ctx, e) }

// Fanout delivers every event to all sinks. It returns the joined errors of
// the sinks that failed.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })
