package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/logging"
	"github.com/fyrsmithlabs/docforge/internal/progress"
	"github.com/fyrsmithlabs/docforge/internal/quality"
	"github.com/fyrsmithlabs/docforge/internal/sharedctx"
	"github.com/fyrsmithlabs/docforge/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrShuttingDown is the cancellation reason used by Shutdown. Start also
// returns it once Shutdown has begun.
var ErrShuttingDown = errors.New("server shutting down")

// Forgetter releases the in-memory event history of a project.
type Forgetter interface {
	Forget(projectID string)
}

// Factory builds the coordinator for a new project from the current
// configuration.
type Factory func(ctx context.Context) (*Coordinator, error)

// Registry owns the projects of this process. Each Project guards its own
// state; the registry lock only protects the registry's bookkeeping.
type Registry struct {
	factory Factory
	store   store.Store
	sink    progress.Sink
	logger  *logging.Logger
	newID   func() string
	now     func() time.Time
	// base outlives the requests that start projects.
	base context.Context

	history   Forgetter
	retention time.Duration

	mu       sync.RWMutex
	projects map[string]*Project
	closed   bool
	timers   map[string]*time.Timer
	wg       sync.WaitGroup
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSink sets where progress events go.
func WithSink(s progress.Sink) RegistryOption {
	return func(r *Registry) { r.sink = s }
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(l *logging.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithIDGenerator overrides the uuid project ids.
func WithIDGenerator(f func() string) RegistryOption {
	return func(r *Registry) { r.newID = f }
}

// WithRetention keeps a finished project in memory for d before it is
// dropped and f, when non-nil, forgets its event history. Until then status
// reads and event replays are served live; afterwards from the store. The
// default of zero drops a project as soon as it ends.
func WithRetention(d time.Duration, f Forgetter) RegistryOption {
	return func(r *Registry) {
		r.retention = d
		r.history = f
	}
}

// NewRegistry creates a registry. Projects run under base, which should be
// cancelled only at process exit.
func NewRegistry(base context.Context, factory Factory, st store.Store, opts ...RegistryOption) (*Registry, error) {
	if factory == nil {
		return nil, errors.New("registry: coordinator factory is required")
	}
	if st == nil {
		return nil, errors.New("registry: store is required")
	}
	r := &Registry{
		factory:  factory,
		store:    st,
		sink:     progress.Discard,
		logger:   logging.NewNop(),
		newID:    uuid.NewString,
		now:      time.Now,
		base:     base,
		projects: make(map[string]*Project),
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start validates req, persists the new project and runs it in the
// background. The returned project is already registered.
func (r *Registry) Start(ctx context.Context, req Request) (*Project, error) {
	req.Idea = strings.TrimSpace(req.Idea)
	if req.Idea == "" {
		return nil, ErrEmptyIdea
	}
	if r.isClosed() {
		return nil, ErrShuttingDown
	}
	coord, err := r.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("build coordinator: %w", err)
	}
	sel, err := coord.Resolve(req)
	if err != nil {
		return nil, err
	}

	id := r.newID()
	p := newProject(id, req, sel, progress.NewEmitter(id, r.sink, r.logger), r.now())

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if _, exists := r.projects[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrProjectExists, id)
	}
	if err := r.store.CreateProject(ctx, p.Status()); err != nil {
		r.mu.Unlock()
		if errors.Is(err, store.ErrExists) {
			return nil, fmt.Errorf("%w: %s", ErrProjectExists, id)
		}
		return nil, fmt.Errorf("persist project: %w", err)
	}
	r.projects[id] = p
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Info(logging.WithProjectID(ctx, id), "project started",
		zap.String("profile", sel.Profile),
		zap.Strings("documents", sel.IDs()))

	go func() {
		defer r.wg.Done()
		_ = coord.Run(r.base, p)
		r.finished(id)
	}()
	return p, nil
}

// finished schedules the release of a project whose final state is
// persisted.
func (r *Registry) finished(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retention <= 0 || r.closed {
		r.release(id)
		return
	}
	r.timers[id] = time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.release(id)
	})
}

// release must be called with r.mu held.
func (r *Registry) release(id string) {
	delete(r.projects, id)
	delete(r.timers, id)
	if r.history != nil {
		r.history.Forget(id)
	}
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Get returns a live project of this process.
func (r *Registry) Get(id string) (*Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	return p, ok
}

// Status returns the live status of id, falling back to the durable record
// for projects of earlier processes.
func (r *Registry) Status(ctx context.Context, id string) (store.ProjectStatus, error) {
	if p, ok := r.Get(id); ok {
		return p.Status(), nil
	}
	st, err := r.store.GetProject(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.ProjectStatus{}, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return st, err
}

// Assessments returns the quality assessments of id.
func (r *Registry) Assessments(ctx context.Context, id string) ([]quality.Assessment, error) {
	if p, ok := r.Get(id); ok {
		return p.Assessments(), nil
	}
	if _, err := r.Status(ctx, id); err != nil {
		return nil, err
	}
	return r.store.ListAssessments(ctx, id)
}

// Artifact returns a generated document of id.
func (r *Registry) Artifact(ctx context.Context, id, documentID string) (sharedctx.Artifact, error) {
	if _, err := r.Status(ctx, id); err != nil {
		return sharedctx.Artifact{}, err
	}
	a, err := r.store.GetArtifact(ctx, id, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return sharedctx.Artifact{}, fmt.Errorf("document %s of project %s: %w", documentID, id, store.ErrNotFound)
	}
	return a, err
}

// List returns every persisted project, newest first, with live projects
// showing their in-process status.
func (r *Registry) List(ctx context.Context) ([]store.ProjectStatus, error) {
	list, err := r.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for i, st := range list {
		if p, ok := r.Get(st.ID); ok {
			list[i] = p.Status()
		}
	}
	return list, nil
}

// Cancel cooperatively stops a running project. Cancelling a project that
// has already finished is a no-op.
func (r *Registry) Cancel(id string, reason error) error {
	p, ok := r.Get(id)
	if !ok {
		_, err := r.Status(context.Background(), id)
		return err
	}
	p.Cancel(reason)
	return nil
}

// Wait blocks until project id has finished or ctx is done.
func (r *Registry) Wait(ctx context.Context, id string) (store.ProjectStatus, error) {
	p, ok := r.Get(id)
	if !ok {
		return r.Status(ctx, id)
	}
	select {
	case <-p.Done():
		return p.Status(), nil
	case <-ctx.Done():
		return store.ProjectStatus{}, ctx.Err()
	}
}

// Running returns the ids of projects that have not finished.
func (r *Registry) Running() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, p := range r.projects {
		if !p.State().IsTerminal() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Shutdown rejects new projects, cancels every running one and waits for the
// coordinators to record their final state.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for id, t := range r.timers {
		if t.Stop() {
			r.release(id)
		}
	}
	r.mu.Unlock()

	for _, id := range r.Running() {
		_ = r.Cancel(id, ErrShuttingDown)
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
