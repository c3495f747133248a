package orchestrator

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/catalog"
	"github.com/fyrsmithlabs/docforge/internal/dag"
	"github.com/fyrsmithlabs/docforge/internal/progress"
	"github.com/fyrsmithlabs/docforge/internal/quality"
	"github.com/fyrsmithlabs/docforge/internal/store"
)

// Project is the in-process state of one generation run. Only the
// coordinator mutates it; readers get copies.
type Project struct {
	id        string
	idea      string
	selection catalog.Selection
	cancel    *CancelToken
	emitter   *progress.Emitter
	done      chan struct{}

	mu          sync.Mutex
	state       State
	status      store.ProjectStatus
	failures    []string
	assessments map[string]quality.Assessment
	metrics     *dag.Metrics
}

func newProject(id string, req Request, sel catalog.Selection, em *progress.Emitter, now time.Time) *Project {
	return &Project{
		id:        id,
		idea:      req.Idea,
		selection: sel,
		cancel:    NewCancelToken(),
		emitter:   em,
		done:      make(chan struct{}),
		state:     StateCreated,
		status: store.ProjectStatus{
			ID:        id,
			Idea:      req.Idea,
			Profile:   sel.Profile,
			Status:    store.StatusCreated,
			Phase:     string(StateCreated),
			Selected:  sel.IDs(),
			Completed: []string{},
			CreatedAt: now,
			UpdatedAt: now,
		},
		assessments: make(map[string]quality.Assessment),
	}
}

// ID returns the project id.
func (p *Project) ID() string { return p.id }

// Selection returns the resolved documents of the project.
func (p *Project) Selection() catalog.Selection { return p.selection }

// Cancel asks the coordinator to stop scheduling new work.
func (p *Project) Cancel(reason error) { p.cancel.Cancel(reason) }

// Done is closed when the coordinator has finished with the project.
func (p *Project) Done() <-chan struct{} { return p.done }

// State returns the current coordinator state.
func (p *Project) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Status returns a copy of the project's status record.
func (p *Project) Status() store.ProjectStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.Clone()
}

// Assessments returns the quality assessments recorded so far, ordered by
// document id.
func (p *Project) Assessments() []quality.Assessment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]quality.Assessment, 0, len(p.assessments))
	for _, a := range p.assessments {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b quality.Assessment) int { return cmp.Compare(a.DocumentID, b.DocumentID) })
	return out
}

func (p *Project) setState(next State, now time.Time) (store.ProjectStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.state.CanTransition(next); err != nil {
		return store.ProjectStatus{}, err
	}
	p.state = next
	p.status.Phase = string(next)
	p.status.Status = next.Status()
	p.status.UpdatedAt = now
	return p.status.Clone(), nil
}

func (p *Project) markCompleted(doc string, now time.Time) store.ProjectStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.status.Completed, doc) {
		p.status.Completed = append(p.status.Completed, doc)
	}
	p.status.UpdatedAt = now
	return p.status.Clone()
}

// recordFailure appends a document failure to the status error.
func (p *Project) recordFailure(msg string, now time.Time) store.ProjectStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, msg)
	p.status.Error = strings.Join(p.failures, "; ")
	p.status.UpdatedAt = now
	return p.status.Clone()
}

func (p *Project) setError(msg string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.Error == "" {
		p.status.Error = msg
	} else {
		p.status.Error = msg + "; " + p.status.Error
	}
	p.status.UpdatedAt = now
}

func (p *Project) addAssessment(a quality.Assessment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assessments[a.DocumentID] = a
}

func (p *Project) completed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.status.Completed)
}

func (p *Project) setMetrics(m dag.Metrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = &m
}

// ExecutionMetrics returns the Phase 2 executor metrics, or nil before
// Phase 2 has finished.
func (p *Project) ExecutionMetrics() *dag.Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.metrics == nil {
		return nil
	}
	m := *p.metrics
	return &m
}
