package dag

import (
	"container/heap"
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/logging"
	"github.com/fyrsmithlabs/docforge/internal/sharedctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 8

// Observer is notified of step transitions. All calls come from the single
// scheduling goroutine, in causal order.
type Observer interface {
	StepStarted(id string)
	StepSucceeded(id string, a sharedctx.Artifact, d time.Duration)
	StepFailed(id string, err error, d time.Duration)
	StepSkipped(id string, err *SkippedError)
}

// Canceller is a cooperative stop signal checked between steps. Steps that
// are already running are left to finish.
type Canceller interface {
	Done() <-chan struct{}
}

// Result is the outcome of one step. Exactly one of Artifact (succeeded),
// Err (failed, a *StepError) or Skipped is meaningful, as given by State.
type Result struct {
	State    State
	Artifact sharedctx.Artifact
	Err      error
	Skipped  *SkippedError
	Duration time.Duration
}

// Report is the outcome of a run.
type Report struct {
	Results map[string]Result
	// Order lists steps in the order they started.
	Order   []string
	Metrics Metrics
}

// Succeeded returns the ids of succeeded steps in registration order.
func (r *Report) Succeeded(g *Graph) []string {
	return r.filter(g, StateSucceeded)
}

// Failed returns the ids of failed steps in registration order.
func (r *Report) Failed(g *Graph) []string {
	return r.filter(g, StateFailed)
}

// Skipped returns the ids of skipped steps in registration order.
func (r *Report) Skipped(g *Graph) []string {
	return r.filter(g, StateSkipped)
}

func (r *Report) filter(g *Graph, s State) []string {
	var out []string
	for _, id := range g.IDs() {
		if r.Results[id].State == s {
			out = append(out, id)
		}
	}
	return out
}

// Metrics summarises parallelism of a run.
type Metrics struct {
	Workers int           `json:"workers"`
	Wall    time.Duration `json:"wall"`
	// Sequential is the sum of step durations, an estimate of serial runtime.
	Sequential time.Duration `json:"sequential"`
	Speedup    float64       `json:"speedup"`
	// Efficiency is Speedup divided by Workers.
	Efficiency float64    `json:"efficiency"`
	Waves      [][]string `json:"waves"`
}

// Executor runs a Graph on a bounded worker pool.
type Executor struct {
	workers  int
	logger   *logging.Logger
	observer Observer
	cancel   Canceller
	failFast bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithObserver reports transitions to o.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithCanceller stops scheduling new steps once c is done.
func WithCanceller(c Canceller) Option {
	return func(e *Executor) { e.cancel = c }
}

// WithFailFast stops scheduling after the first failure. Steps that have not
// started are skipped with the failed step as their cause.
func WithFailFast() Option {
	return func(e *Executor) { e.failFast = true }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor with the given number of workers.
func NewExecutor(workers int, opts ...Option) (*Executor, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be > 0, got %d", workers)
	}
	e := &Executor{workers: workers, logger: logging.NewNop(), observer: nopObserver{}}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type workItem struct {
	index int
	run   StepFunc
}

type workResult struct {
	index    int
	artifact sharedctx.Artifact
	err      error
	duration time.Duration
}

// Run executes every step of g at most once. A step starts only after all
// of its dependencies succeeded. A failed step's transitive dependents are
// skipped; unrelated steps keep running. Run returns an error only for an
// internal invariant violation; step outcomes are in the Report.
func (e *Executor) Run(ctx context.Context, g *Graph) (*Report, error) {
	ctx, span := tracer.Start(ctx, "executor.Run", trace.WithAttributes(
		attribute.Int("executor.steps", g.Len()),
		attribute.Int("executor.workers", e.workers),
	))
	defer span.End()

	r := &run{
		e:       e,
		g:       g,
		states:  make([]State, g.Len()),
		results: make(map[string]Result, g.Len()),
		ready:   &intMinHeap{},
	}
	for i := range r.states {
		r.states[i] = StatePending
	}

	rep, err := r.execute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invariant violation")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("executor.succeeded", len(rep.Succeeded(g))),
		attribute.Int("executor.failed", len(rep.Failed(g))),
		attribute.Int("executor.skipped", len(rep.Skipped(g))),
		attribute.Float64("executor.speedup", rep.Metrics.Speedup),
	)
	return rep, nil
}

// run is the state of one Executor.Run. It is only touched by the
// scheduling goroutine.
type run struct {
	e       *Executor
	g       *Graph
	states  []State
	results map[string]Result
	ready   *intMinHeap
	order   []string
	seq     time.Duration
}

func (r *run) id(i int) string { return r.g.nodes[i].step.ID }

func (r *run) execute(ctx context.Context) (*Report, error) {
	start := time.Now()
	n := r.g.Len()
	workCh := make(chan workItem)
	doneCh := make(chan workResult, n)

	workers := min(r.e.workers, max(n, 1))
	for w := 0; w < workers; w++ {
		go func() {
			for item := range workCh {
				doneCh <- invoke(ctx, item)
			}
		}()
	}
	defer close(workCh)

	for i := 0; i < n; i++ {
		if r.g.indeg[i] == 0 {
			if err := r.markReady(i); err != nil {
				return nil, err
			}
		}
	}

	var cancelled <-chan struct{}
	if r.e.cancel != nil {
		cancelled = r.e.cancel.Done()
	}
	stopping := false
	inFlight := 0

	for {
		if !stopping && isDone(ctx, cancelled) {
			stopping = true
			if err := r.skipRemaining(ctx); err != nil {
				return nil, err
			}
		}

		for !stopping && inFlight < workers && r.ready.Len() > 0 {
			i := heap.Pop(r.ready).(int)
			if err := transition(r.states, r.id, i, StateReady, StateRunning); err != nil {
				return nil, err
			}
			r.order = append(r.order, r.id(i))
			r.e.observer.StepStarted(r.id(i))
			inFlight++
			workCh <- workItem{index: i, run: r.g.nodes[i].step.Run}
		}

		if inFlight == 0 {
			break
		}

		var res workResult
		select {
		case res = <-doneCh:
		case <-ctxOrNil(ctx, stopping):
			continue
		case <-chanOrNil(cancelled, stopping):
			continue
		}
		inFlight--
		if err := r.complete(ctx, res); err != nil {
			return nil, err
		}
	}

	for i, s := range r.states {
		if !s.IsTerminal() {
			return nil, fmt.Errorf("step %q left in state %s", r.id(i), s)
		}
	}

	wall := time.Since(start)
	m := Metrics{Workers: r.e.workers, Wall: wall, Sequential: r.seq, Waves: r.g.Waves()}
	if wall > 0 {
		m.Speedup = float64(r.seq) / float64(wall)
		m.Efficiency = m.Speedup / float64(r.e.workers)
	}
	return &Report{Results: r.results, Order: r.order, Metrics: m}, nil
}

// complete records a finished step and releases or skips its dependents.
func (r *run) complete(ctx context.Context, res workResult) error {
	id := r.id(res.index)
	r.seq += res.duration
	attrs := metric.WithAttributes(attribute.String("step", id))
	stepDuration.Record(ctx, res.duration.Seconds(), attrs)

	if res.err == nil {
		if err := transition(r.states, r.id, res.index, StateRunning, StateSucceeded); err != nil {
			return err
		}
		r.results[id] = Result{State: StateSucceeded, Artifact: res.artifact, Duration: res.duration}
		stepCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "succeeded")))
		r.e.observer.StepSucceeded(id, res.artifact, res.duration)

		for _, v := range r.g.outgoing[res.index] {
			if r.states[v] == StatePending && r.depsSucceeded(v) {
				if err := r.markReady(v); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := transition(r.states, r.id, res.index, StateRunning, StateFailed); err != nil {
		return err
	}
	stepErr := &StepError{StepID: id, Err: res.err}
	r.results[id] = Result{State: StateFailed, Err: stepErr, Duration: res.duration}
	stepCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
	r.e.logger.Error(ctx, "step failed", zap.String("step", id), zap.Error(res.err))
	r.e.observer.StepFailed(id, stepErr, res.duration)
	if err := r.propagate(ctx, res.index); err != nil {
		return err
	}
	if r.e.failFast {
		r.e.logger.Info(ctx, "step failed, skipping steps that have not started", zap.String("step", id))
		return r.skipUnstarted(ctx, func(sid string) *SkippedError {
			return &SkippedError{StepID: sid, Cause: id}
		})
	}
	return nil
}

// propagate skips every transitive dependent of the failed step failed, in
// registration order.
func (r *run) propagate(ctx context.Context, failed int) error {
	visited := make([]bool, r.g.Len())
	visited[failed] = true
	hq := &intMinHeap{}
	for _, v := range r.g.outgoing[failed] {
		heap.Push(hq, v)
	}
	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		switch r.states[u] {
		case StatePending, StateReady:
			if err := r.skip(ctx, u, &SkippedError{StepID: r.id(u), Cause: r.id(failed)}); err != nil {
				return err
			}
		case StateRunning:
			return fmt.Errorf("invariant violation: dependent %q of failed %q is running", r.id(u), r.id(failed))
		}
		for _, v := range r.g.outgoing[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}
	return nil
}

// skipRemaining skips every step that has not started.
func (r *run) skipRemaining(ctx context.Context) error {
	r.e.logger.Info(ctx, "run cancelled, skipping steps that have not started")
	return r.skipUnstarted(ctx, func(id string) *SkippedError {
		return &SkippedError{StepID: id, Err: ErrCancelled}
	})
}

func (r *run) skipUnstarted(ctx context.Context, reason func(id string) *SkippedError) error {
	for i, s := range r.states {
		if s == StatePending || s == StateReady {
			if err := r.skip(ctx, i, reason(r.id(i))); err != nil {
				return err
			}
		}
	}
	*r.ready = (*r.ready)[:0]
	return nil
}

func (r *run) skip(ctx context.Context, i int, se *SkippedError) error {
	if err := transition(r.states, r.id, i, r.states[i], StateSkipped); err != nil {
		return err
	}
	r.results[se.StepID] = Result{State: StateSkipped, Skipped: se}
	stepCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "skipped")))
	r.e.observer.StepSkipped(se.StepID, se)
	return nil
}

func (r *run) markReady(i int) error {
	if err := transition(r.states, r.id, i, StatePending, StateReady); err != nil {
		return err
	}
	heap.Push(r.ready, i)
	return nil
}

func (r *run) depsSucceeded(i int) bool {
	for _, p := range r.g.incoming[i] {
		if r.states[p] != StateSucceeded {
			return false
		}
	}
	return true
}

// invoke runs one step, turning a panic into an error.
func invoke(ctx context.Context, item workItem) (res workResult) {
	res.index = item.index
	start := time.Now()
	defer func() {
		res.duration = time.Since(start)
		if p := recover(); p != nil {
			res.err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	res.artifact, res.err = item.run(ctx)
	return res
}

func isDone(ctx context.Context, c <-chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	if c == nil {
		return false
	}
	select {
	case <-c:
		return true
	default:
		return false
	}
}

// ctxOrNil returns ctx.Done() until stopping, then nil so that the select
// only waits on results.
func ctxOrNil(ctx context.Context, stopping bool) <-chan struct{} {
	if stopping {
		return nil
	}
	return ctx.Done()
}

func chanOrNil(c <-chan struct{}, stopping bool) <-chan struct{} {
	if stopping {
		return nil
	}
	return c
}

type nopObserver struct{}

func (nopObserver) StepStarted(string)                                      {}
func (nopObserver) StepSucceeded(string, sharedctx.Artifact, time.Duration) {}
func (nopObserver) StepFailed(string, error, time.Duration)                 {}
func (nopObserver) StepSkipped(string, *SkippedError)                       {}
