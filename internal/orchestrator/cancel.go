package orchestrator

import (
	"errors"
	"sync"
)

// ErrCancelled is the reason recorded when a project is cancelled without
// one.
var ErrCancelled = errors.New("cancelled by request")

// CancelToken is a cooperative whole-project stop signal. It is checked
// between steps; running provider calls finish or time out on their own.
// It satisfies dag.Canceller.
type CancelToken struct {
	once sync.Once
	done chan struct{}

	mu     sync.Mutex
	reason error
}

// NewCancelToken creates an untriggered token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel triggers the token. Only the first reason is kept.
func (t *CancelToken) Cancel(reason error) {
	if reason == nil {
		reason = ErrCancelled
	}
	t.once.Do(func() {
		t.mu.Lock()
		t.reason = reason
		t.mu.Unlock()
		close(t.done)
	})
}

// Done is closed once the token is cancelled.
func (t *CancelToken) Done() <-chan struct{} { return t.done }

// Cancelled reports whether Cancel was called.
func (t *CancelToken) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Err returns the cancellation reason, or nil.
func (t *CancelToken) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}
