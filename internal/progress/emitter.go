package progress

import (
	"context"
	"sync"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/logging"
	"go.uber.org/zap"
)

// Emitter stamps and forwards the events of one project. It serialises
// emission so that sequence numbers follow call order, and it lets exactly
// one complete event through.
type Emitter struct {
	projectID string
	sink      Sink
	logger    *logging.Logger
	now       func() time.Time

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// NewEmitter creates an emitter for projectID.
func NewEmitter(projectID string, sink Sink, logger *logging.Logger) *Emitter {
	if sink == nil {
		sink = Discard
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Emitter{projectID: projectID, sink: sink, logger: logger, now: time.Now}
}

// Emit stamps e and delivers it. Sink errors are logged, not returned: a
// transport problem must not fail generation. Emit returns ErrClosed after
// the complete event.
func (em *Emitter) Emit(ctx context.Context, e Event) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.closed {
		return ErrClosed
	}
	em.seq++
	e.Seq = em.seq
	e.ProjectID = em.projectID
	if e.Timestamp.IsZero() {
		e.Timestamp = em.now()
	}
	if e.Type.IsTerminal() {
		em.closed = true
	}

	if err := em.sink.Emit(ctx, e); err != nil {
		em.logger.Warn(ctx, "progress sink failed",
			zap.String("event", string(e.Type)),
			zap.String("document", e.DocumentID),
			zap.Error(err),
		)
	}
	return nil
}

// Closed reports whether the complete event has been emitted.
func (em *Emitter) Closed() bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.closed
}

// Started emits a started event.
func (em *Emitter) Started(ctx context.Context, doc, provider string) error {
	return em.Emit(ctx, Event{Type: EventStarted, DocumentID: doc, Provider: provider})
}

// Succeeded emits a succeeded event. score is nil for unscored documents.
func (em *Emitter) Succeeded(ctx context.Context, doc string, d time.Duration, score *int, improved bool) error {
	return em.Emit(ctx, Event{
		Type: EventSucceeded, DocumentID: doc, DurationMS: d.Milliseconds(), Score: score, Improved: improved,
	})
}

// Failed emits a failed event.
func (em *Emitter) Failed(ctx context.Context, doc string, d time.Duration, err error) error {
	return em.Emit(ctx, Event{Type: EventFailed, DocumentID: doc, DurationMS: d.Milliseconds(), Error: errString(err)})
}

// Skipped emits a skipped event naming the failed ancestor.
func (em *Emitter) Skipped(ctx context.Context, doc, cause string, err error) error {
	return em.Emit(ctx, Event{Type: EventSkipped, DocumentID: doc, Cause: cause, Error: errString(err)})
}

// Phase emits a state change.
func (em *Emitter) Phase(ctx context.Context, phase string) error {
	return em.Emit(ctx, Event{Type: EventPhase, Phase: phase})
}

// Complete emits the terminal event.
func (em *Emitter) Complete(ctx context.Context, status string, completed []string, err error) error {
	return em.Emit(ctx, Event{Type: EventComplete, Status: status, Completed: completed, Error: errString(err)})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
