package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/catalog"
	"github.com/fyrsmithlabs/docforge/internal/dag"
	"github.com/fyrsmithlabs/docforge/internal/logging"
	"github.com/fyrsmithlabs/docforge/internal/packaging"
	"github.com/fyrsmithlabs/docforge/internal/provider"
	"github.com/fyrsmithlabs/docforge/internal/quality"
	"github.com/fyrsmithlabs/docforge/internal/secrets"
	"github.com/fyrsmithlabs/docforge/internal/sharedctx"
	"github.com/fyrsmithlabs/docforge/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Artifact metadata keys written by the coordinator.
const (
	MetaProvider     = "provider"
	MetaModel        = "model"
	MetaScore        = "quality.score"
	MetaInitialScore = "quality.initial_score"
	MetaImproved     = "quality.improved"
	MetaUnscored     = "quality.unscored"
	MetaRedactions   = "redactions"
)

// Packager runs the final phase over a completed project.
type Packager interface {
	Run(ctx context.Context, b *packaging.Bundle) error
}

// Config sizes the coordinator's worker pools.
type Config struct {
	// Workers is the Phase 2 pool size.
	Workers int
	// Phase1Concurrency bounds foundational generation. Foundational
	// documents read each other's output, so this is usually 1.
	Phase1Concurrency int
	// MaxTokens is passed to every generation request.
	MaxTokens int
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Catalog  *catalog.Catalog
	Router   *provider.Router
	Quality  *quality.Loop
	Shared   *sharedctx.Store
	Store    store.Store
	Packager Packager
	// Redactor scrubs credentials from generated content. Nil disables it.
	Redactor *secrets.Redactor
	Logger   *logging.Logger
	// Now overrides time.Now.
	Now func() time.Time
}

// Coordinator drives one project at a time through the three phases. Its
// provider bindings are fixed at construction, so a project keeps the
// routing it started with even if configuration is reloaded.
type Coordinator struct {
	cfg      Config
	catalog  *catalog.Catalog
	router   *provider.Router
	loop     *quality.Loop
	shared   *sharedctx.Store
	store    store.Store
	packager Packager
	redactor *secrets.Redactor
	logger   *logging.Logger
	now      func() time.Time
	gates    map[State][]PhaseGate
}

// NewCoordinator validates deps and registers the default phase gates.
func NewCoordinator(cfg Config, d Deps) (*Coordinator, error) {
	if d.Catalog == nil {
		return nil, errors.New("coordinator: catalog is required")
	}
	if d.Router == nil {
		return nil, errors.New("coordinator: router is required")
	}
	if d.Quality == nil {
		return nil, errors.New("coordinator: quality loop is required")
	}
	if d.Store == nil {
		return nil, errors.New("coordinator: store is required")
	}
	if d.Shared == nil {
		d.Shared = sharedctx.New(sharedctx.WithPersister(d.Store))
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if cfg.Workers <= 0 {
		cfg.Workers = dag.DefaultWorkers
	}
	if cfg.Phase1Concurrency <= 0 {
		cfg.Phase1Concurrency = 1
	}
	c := &Coordinator{
		cfg:      cfg,
		catalog:  d.Catalog,
		router:   d.Router,
		loop:     d.Quality,
		shared:   d.Shared,
		store:    d.Store,
		packager: d.Packager,
		redactor: d.Redactor,
		logger:   d.Logger.Named("coordinator"),
		now:      d.Now,
		gates:    make(map[State][]PhaseGate),
	}
	c.RegisterGate(StatePhase2Running, FoundationGate{})
	c.RegisterGate(StatePhase3Running, CompletionGate{})
	return c, nil
}

// RegisterGate adds a gate checked before entering state.
func (c *Coordinator) RegisterGate(state State, gate PhaseGate) {
	c.gates[state] = append(c.gates[state], gate)
}

// Resolve expands a request into the documents to generate.
func (c *Coordinator) Resolve(req Request) (catalog.Selection, error) {
	profile := req.Profile
	if profile == "" {
		profile = DefaultProfile
	}
	return c.catalog.Resolve(profile, req.Documents)
}

// Router returns the bindings this coordinator was built with.
func (c *Coordinator) Router() *provider.Router { return c.router }

// Run drives p to Complete or Failed and emits exactly one complete event.
// It returns the error that failed the project, or nil.
func (c *Coordinator) Run(ctx context.Context, p *Project) error {
	defer close(p.done)
	defer c.shared.Release(p.id)

	ctx = logging.WithProjectID(ctx, p.id)
	ctx, span := tracer.Start(ctx, "coordinator.Run", trace.WithAttributes(
		attribute.String("project.id", p.id),
		attribute.Int("project.documents", len(p.selection.IDs())),
	))
	defer span.End()
	start := c.now()
	projectsRunning.Add(ctx, 1)
	defer projectsRunning.Add(ctx, -1)

	err := c.run(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "project failed")
		c.fail(ctx, p, err)
	} else {
		c.complete(ctx, p)
	}
	recordProject(ctx, p.State(), c.now().Sub(start))
	return err
}

func (c *Coordinator) run(ctx context.Context, p *Project) error {
	if err := c.enter(ctx, p, StatePhase1Running); err != nil {
		return err
	}
	if err := c.phase1(ctx, p); err != nil {
		return err
	}
	if err := c.enter(ctx, p, StatePhase1Done); err != nil {
		return err
	}
	if err := c.enter(ctx, p, StatePhase2Running); err != nil {
		return err
	}
	if err := c.phase2(ctx, p); err != nil {
		return err
	}
	if err := c.enter(ctx, p, StatePhase2Done); err != nil {
		return err
	}
	if err := c.stopped(ctx, p); err != nil {
		return err
	}
	if err := c.enter(ctx, p, StatePhase3Running); err != nil {
		return err
	}
	c.phase3(ctx, p)
	return nil
}

// enter checks the gates of next, moves p there, persists and emits a phase
// event.
func (c *Coordinator) enter(ctx context.Context, p *Project, next State) error {
	for _, g := range c.gates[next] {
		if err := g.Check(ctx, p, c.shared.Snapshot(p.id)); err != nil {
			return fmt.Errorf("gate %s before %s: %w", g.Name(), next, err)
		}
	}
	status, err := p.setState(next, c.now())
	if err != nil {
		return err
	}
	c.persist(ctx, status)
	_ = p.emitter.Phase(ctx, string(next))
	c.logger.Debug(ctx, "state changed", zap.String("state", string(next)))
	return nil
}

// stopped returns the reason to stop before the next phase, if any.
func (c *Coordinator) stopped(ctx context.Context, p *Project) error {
	if p.cancel.Cancelled() {
		return p.cancel.Err()
	}
	return ctx.Err()
}

func (c *Coordinator) complete(ctx context.Context, p *Project) {
	status, err := p.setState(StateComplete, c.now())
	if err != nil {
		c.logger.Error(ctx, "cannot complete project", zap.Error(err))
		c.fail(ctx, p, err)
		return
	}
	c.persist(ctx, status)
	var degraded error
	if status.Error != "" {
		degraded = errors.New(status.Error)
	}
	_ = p.emitter.Complete(ctx, string(store.StatusComplete), status.Completed, degraded)
	c.logger.Info(ctx, "project complete",
		zap.Int("completed", len(status.Completed)),
		zap.Int("selected", len(status.Selected)),
		zap.String("error", status.Error))
}

// fail records err, moves p to Failed and emits the complete event. Step
// failures are already in the status error; other causes are prepended.
func (c *Coordinator) fail(ctx context.Context, p *Project, err error) {
	var se *dag.StepError
	if !errors.As(err, &se) {
		p.setError(err.Error(), c.now())
	}
	status, terr := p.setState(StateFailed, c.now())
	if terr != nil {
		// Already terminal; the complete event went out with it.
		return
	}
	c.persist(ctx, status)
	_ = p.emitter.Complete(ctx, string(store.StatusFailed), status.Completed, errors.New(status.Error))
	c.logger.Error(ctx, "project failed", zap.Error(err), zap.Int("completed", len(status.Completed)))
}

// persist writes status through. The durable record must survive a
// cancelled request context.
func (c *Coordinator) persist(ctx context.Context, status store.ProjectStatus) {
	if err := c.store.UpdateProject(context.WithoutCancel(ctx), status); err != nil {
		c.logger.Error(ctx, "failed to persist project status", zap.Error(err))
	}
}

func (c *Coordinator) phase1(ctx context.Context, p *Project) error {
	ctx, span := tracer.Start(ctx, "coordinator.phase1")
	defer span.End()

	docs := p.selection.Foundational
	if len(docs) == 0 {
		return c.stopped(ctx, p)
	}
	steps := make([]dag.Step, 0, len(docs))
	for _, d := range docs {
		var deps []string
		for _, dep := range d.DependsOn {
			if p.selection.Contains(dep) {
				deps = append(deps, dep)
			}
		}
		steps = append(steps, dag.Step{ID: d.ID, Deps: deps, Run: c.foundationalStep(p, d)})
	}
	g, err := dag.NewGraph(steps)
	if err != nil {
		return err
	}

	// A foundational failure is fatal: the steps that have not started are
	// skipped with the failed document as their cause.
	exec, err := dag.NewExecutor(c.cfg.Phase1Concurrency,
		dag.WithObserver(&observer{c: c, p: p, ctx: ctx}), dag.WithCanceller(p.cancel),
		dag.WithFailFast(), dag.WithLogger(c.logger))
	if err != nil {
		return err
	}
	rep, err := exec.Run(ctx, g)
	if err != nil {
		return err
	}
	if failed := rep.Failed(g); len(failed) > 0 {
		return fmt.Errorf("foundational phase failed: %w", rep.Results[failed[0]].Err)
	}
	return c.stopped(ctx, p)
}

func (c *Coordinator) phase2(ctx context.Context, p *Project) error {
	ctx, span := tracer.Start(ctx, "coordinator.phase2")
	defer span.End()

	docs := p.selection.Secondary
	if len(docs) == 0 {
		return c.stopped(ctx, p)
	}
	steps := make([]dag.Step, 0, len(docs))
	for _, d := range docs {
		steps = append(steps, dag.Step{ID: d.ID, Deps: p.selection.SecondaryDeps(d), Run: c.secondaryStep(p, d)})
	}
	g, err := dag.NewGraph(steps)
	if err != nil {
		return err
	}
	exec, err := dag.NewExecutor(c.cfg.Workers,
		dag.WithObserver(&observer{c: c, p: p, ctx: ctx}), dag.WithCanceller(p.cancel), dag.WithLogger(c.logger))
	if err != nil {
		return err
	}
	rep, err := exec.Run(ctx, g)
	if err != nil {
		return err
	}
	p.setMetrics(rep.Metrics)
	c.logger.Info(ctx, "secondary phase finished",
		zap.Int("succeeded", len(rep.Succeeded(g))),
		zap.Int("failed", len(rep.Failed(g))),
		zap.Int("skipped", len(rep.Skipped(g))),
		zap.Duration("wall", rep.Metrics.Wall),
		zap.Float64("speedup", rep.Metrics.Speedup),
		zap.Float64("efficiency", rep.Metrics.Efficiency))
	return c.stopped(ctx, p)
}

// phase3 hands the artifact set to the packager. Failures are logged and
// never change the project's outcome.
func (c *Coordinator) phase3(ctx context.Context, p *Project) {
	ctx, span := tracer.Start(ctx, "coordinator.phase3")
	defer span.End()
	if c.packager == nil {
		return
	}
	if err := c.packager.Run(ctx, c.bundle(p)); err != nil {
		span.RecordError(err)
		c.logger.Warn(ctx, "packaging failed", zap.Error(err))
	}
}

func (c *Coordinator) bundle(p *Project) *packaging.Bundle {
	snap := c.shared.Snapshot(p.id)
	assessments := make(map[string]quality.Assessment)
	for _, a := range p.Assessments() {
		assessments[a.DocumentID] = a
	}
	b := &packaging.Bundle{ProjectID: p.id, Idea: p.idea, Profile: p.selection.Profile}
	for _, d := range append(append([]catalog.Document(nil), p.selection.Foundational...), p.selection.Secondary...) {
		art, ok := snap.Get(d.ID)
		if !ok {
			continue
		}
		doc := packaging.Document{ID: d.ID, Name: d.Name, Content: art.Content}
		for _, dep := range d.DependsOn {
			if snap.Has(dep) {
				doc.DependsOn = append(doc.DependsOn, dep)
			}
		}
		if a, ok := assessments[d.ID]; ok {
			doc.Assessment = &a
		}
		b.Documents = append(b.Documents, doc)
	}
	return b
}

func (c *Coordinator) foundationalStep(p *Project, d catalog.Document) dag.StepFunc {
	return func(ctx context.Context) (sharedctx.Artifact, error) {
		ctx = logging.WithDocumentID(ctx, d.ID)
		fin, err := c.loop.Run(ctx, d.ID, func(ctx context.Context) (string, error) {
			return c.generate(ctx, p, d)
		})
		if err != nil {
			return sharedctx.Artifact{}, err
		}
		a := fin.Assessment
		p.addAssessment(a)
		if err := c.store.SaveAssessment(ctx, p.id, a); err != nil {
			c.logger.Warn(ctx, "failed to persist assessment", zap.Error(err))
		}
		meta := map[string]string{
			MetaImproved: strconv.FormatBool(a.Improved),
			MetaUnscored: strconv.FormatBool(a.Unscored),
		}
		if !a.Unscored {
			meta[MetaScore] = strconv.Itoa(a.Score)
			meta[MetaInitialScore] = strconv.Itoa(a.InitialScore)
		}
		return c.commit(ctx, p, d, fin.Content, meta)
	}
}

func (c *Coordinator) secondaryStep(p *Project, d catalog.Document) dag.StepFunc {
	return func(ctx context.Context) (sharedctx.Artifact, error) {
		ctx = logging.WithDocumentID(ctx, d.ID)
		content, err := c.generate(ctx, p, d)
		if err != nil {
			return sharedctx.Artifact{}, err
		}
		return c.commit(ctx, p, d, content, nil)
	}
}

// generate builds the prompt from the current shared context and calls the
// backend bound to d.
func (c *Coordinator) generate(ctx context.Context, p *Project, d catalog.Document) (string, error) {
	prompt := catalog.BuildPrompt(d, p.idea, c.shared.Snapshot(p.id), c.catalog)
	return c.router.Generate(ctx, d.ID, provider.Request{
		Prompt:    prompt,
		System:    catalog.SystemPrompt,
		MaxTokens: c.cfg.MaxTokens,
	})
}

// commit stores the artifact. Put returns only after the durable write, so
// a dependent scheduled after this step sees the artifact.
func (c *Coordinator) commit(ctx context.Context, p *Project, d catalog.Document, content string, meta map[string]string) (sharedctx.Artifact, error) {
	b := c.router.Binding(d.ID)
	if meta == nil {
		meta = make(map[string]string, 2)
	}
	meta[MetaProvider] = b.Provider
	if b.Model != "" {
		meta[MetaModel] = b.Model
	}
	if r := c.redactor.Redact(content); r.Redacted() {
		c.logger.Warn(ctx, "redacted secrets from generated document",
			zap.Strings("rules", r.RuleIDs()), zap.Int("findings", len(r.Findings)))
		content = r.Content
		meta[MetaRedactions] = strconv.Itoa(len(r.Findings))
	}
	a := sharedctx.Artifact{DocumentID: d.ID, Content: content, Metadata: meta, CreatedAt: c.now()}
	if err := c.shared.Put(ctx, p.id, d.ID, a); err != nil {
		return sharedctx.Artifact{}, err
	}
	return a, nil
}
