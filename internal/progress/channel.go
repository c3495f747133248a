package progress

import (
	"context"
	"sync"
)

// ChannelSink buffers events on a Go channel for an in-process consumer.
// Emit blocks while the buffer is full, until ctx is done.
type ChannelSink struct {
	ch chan Event

	mu     sync.RWMutex
	closed bool
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Emit implements Sink.
func (c *ChannelSink) Emit(ctx context.Context, e Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the receive side of the sink.
func (c *ChannelSink) Events() <-chan Event { return c.ch }

// Close closes the channel. Later Emit calls return ErrClosed.
func (c *ChannelSink) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
