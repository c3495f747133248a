package progress

import (
	"context"
	"sync"
)

// DefaultHistory is the number of events a Hub keeps per project.
const DefaultHistory = 512

// Subscriber streams one project's events. The channel closes after the
// complete event, when ctx is done, or when cancel is called.
type Subscriber interface {
	Subscribe(ctx context.Context, projectID string) (events <-chan Event, cancel func(), err error)
}

// Hub is an in-process Sink and Subscriber. It keeps a bounded history per
// project so that late subscribers see the events they missed.
type Hub struct {
	limit int

	mu      sync.Mutex
	history map[string][]Event
	subs    map[string]map[*hubSub]struct{}
}

type hubSub struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func newHubSub(buf int) *hubSub {
	return &hubSub{ch: make(chan Event, buf), done: make(chan struct{})}
}

func (s *hubSub) close() {
	s.once.Do(func() {
		close(s.ch)
		close(s.done)
	})
}

// NewHub creates a hub keeping up to limit events per project.
func NewHub(limit int) *Hub {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &Hub{
		limit:   limit,
		history: make(map[string][]Event),
		subs:    make(map[string]map[*hubSub]struct{}),
	}
}

// Emit records e and fans it out. A subscriber whose buffer is full is
// disconnected rather than allowed to block the producer.
func (h *Hub) Emit(_ context.Context, e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	hist := append(h.history[e.ProjectID], e)
	if len(hist) > h.limit {
		hist = hist[len(hist)-h.limit:]
	}
	h.history[e.ProjectID] = hist

	for s := range h.subs[e.ProjectID] {
		select {
		case s.ch <- e:
		default:
			s.close()
			delete(h.subs[e.ProjectID], s)
		}
	}
	if e.Type.IsTerminal() {
		for s := range h.subs[e.ProjectID] {
			s.close()
		}
		delete(h.subs, e.ProjectID)
	}
	return nil
}

// Subscribe replays the project's history and then follows live events.
func (h *Hub) Subscribe(ctx context.Context, projectID string) (<-chan Event, func(), error) {
	h.mu.Lock()
	hist := h.history[projectID]
	s := newHubSub(len(hist) + 64)
	terminal := false
	for _, e := range hist {
		s.ch <- e
		terminal = terminal || e.Type.IsTerminal()
	}
	if terminal {
		s.close()
		h.mu.Unlock()
		return s.ch, func() {}, nil
	}
	if h.subs[projectID] == nil {
		h.subs[projectID] = make(map[*hubSub]struct{})
	}
	h.subs[projectID][s] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subs[projectID]; ok {
			delete(subs, s)
		}
		h.mu.Unlock()
		s.close()
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-s.done:
			}
		}()
	}
	return s.ch, cancel, nil
}

// History returns a copy of the recorded events for projectID.
func (h *Hub) History(projectID string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.history[projectID]...)
}

// Forget drops the history of projectID.
func (h *Hub) Forget(projectID string) {
	h.mu.Lock()
	delete(h.history, projectID)
	h.mu.Unlock()
}
