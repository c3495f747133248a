// Package ratelimit bounds outbound LLM calls across every concurrently
// running generation step.
//
// Gate is a sliding-window limiter: Acquire blocks until granting one more
// request would keep the number of grants in the trailing period at or below
// the effective maximum. Capacity returns only when a grant ages out of the
// window, never when the call it guarded finishes. Waiters are served strictly
// in arrival order.
package ratelimit

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// jitterUtilization is the utilization above which grants are spread out by
// a random delay.
const jitterUtilization = 0.8

// Config configures a Gate.
type Config struct {
	// MaxRequests is the provider's advertised limit per Period.
	MaxRequests int
	Period      time.Duration
	// SafetyMargin scales MaxRequests down; 0 means 1.0.
	SafetyMargin float64
	// Jitter is the upper bound of the random delay added near capacity.
	Jitter time.Duration
}

// EffectiveMax is floor(MaxRequests * SafetyMargin), never below 1.
func (c Config) EffectiveMax() int {
	margin := c.SafetyMargin
	if margin <= 0 || margin > 1 {
		margin = 1
	}
	n := int(float64(c.MaxRequests) * margin)
	if n < 1 {
		n = 1
	}
	return n
}

// Gate is a FIFO sliding-window request limiter. Safe for concurrent use.
type Gate struct {
	effectiveMax int
	originalMax  int
	period       time.Duration
	jitter       time.Duration

	mu      sync.Mutex
	grants  []time.Time // ascending grant timestamps inside the window
	queue   []*waiter
	granted uint64

	now     func() time.Time
	metrics *Metrics
}

type waiter struct {
	turn     chan struct{} // closed when the waiter reaches the head
	jittered bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithMetrics reports gate state to m.
func WithMetrics(m *Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// New creates a gate.
func New(cfg Config, opts ...Option) (*Gate, error) {
	if cfg.MaxRequests < 1 {
		return nil, errors.New("ratelimit: max requests must be >= 1")
	}
	if cfg.Period <= 0 {
		return nil, errors.New("ratelimit: period must be positive")
	}
	g := &Gate{
		effectiveMax: cfg.EffectiveMax(),
		originalMax:  cfg.MaxRequests,
		period:       cfg.Period,
		jitter:       cfg.Jitter,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Acquire blocks until the caller may issue one request, or ctx is done.
// Callers are granted in the order they called Acquire.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := g.now()

	w := &waiter{turn: make(chan struct{})}
	g.mu.Lock()
	g.queue = append(g.queue, w)
	if len(g.queue) == 1 {
		close(w.turn)
	}
	g.reportLocked()
	g.mu.Unlock()

	// Wait to reach the head of the queue.
	select {
	case <-w.turn:
	case <-ctx.Done():
		g.leave(w)
		return ctx.Err()
	}

	for {
		g.mu.Lock()
		now := g.now()
		g.pruneLocked(now)

		var wait time.Duration
		if len(g.grants) < g.effectiveMax {
			if !w.jittered && g.jitter > 0 && g.utilizationLocked() > jitterUtilization {
				w.jittered = true
				wait = rand.N(g.jitter) + 1
			} else {
				g.grants = append(g.grants, now)
				g.granted++
				g.popHeadLocked()
				g.reportLocked()
				g.mu.Unlock()
				if g.metrics != nil {
					g.metrics.observeWait(g.now().Sub(start))
				}
				return nil
			}
		} else {
			wait = g.grants[0].Add(g.period).Sub(now)
		}
		g.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			g.leave(w)
			return ctx.Err()
		}
	}
}

// Stats returns a snapshot of gate state.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(g.now())
	return Stats{
		RequestsInWindow:   len(g.grants),
		MaxRate:            g.effectiveMax,
		OriginalMaxRate:    g.originalMax,
		Period:             g.period,
		Waiting:            len(g.queue),
		TotalGranted:       g.granted,
		UtilizationPercent: g.utilizationLocked() * 100,
	}
}

// pruneLocked drops grants that have aged out of the window.
func (g *Gate) pruneLocked(now time.Time) {
	cutoff := now.Add(-g.period)
	i := 0
	for i < len(g.grants) && !g.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.grants = append(g.grants[:0], g.grants[i:]...)
	}
}

func (g *Gate) utilizationLocked() float64 {
	return float64(len(g.grants)) / float64(g.effectiveMax)
}

// popHeadLocked removes the head waiter and hands the turn to the next one.
func (g *Gate) popHeadLocked() {
	g.queue[0] = nil
	g.queue = g.queue[1:]
	if len(g.queue) > 0 {
		close(g.queue[0].turn)
	}
}

// leave removes a cancelled waiter from the queue.
func (g *Gate) leave(w *waiter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, q := range g.queue {
		if q != w {
			continue
		}
		if i == 0 {
			g.popHeadLocked()
		} else {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
		}
		break
	}
	g.reportLocked()
}

func (g *Gate) reportLocked() {
	if g.metrics == nil {
		return
	}
	g.metrics.report(len(g.grants), len(g.queue), g.utilizationLocked()*100)
}
