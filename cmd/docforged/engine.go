package main

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/fyrsmithlabs/docforge/internal/catalog"
	"github.com/fyrsmithlabs/docforge/internal/config"
	"github.com/fyrsmithlabs/docforge/internal/logging"
	"github.com/fyrsmithlabs/docforge/internal/orchestrator"
	"github.com/fyrsmithlabs/docforge/internal/packaging"
	"github.com/fyrsmithlabs/docforge/internal/provider"
	"github.com/fyrsmithlabs/docforge/internal/quality"
	"github.com/fyrsmithlabs/docforge/internal/ratelimit"
	"github.com/fyrsmithlabs/docforge/internal/secrets"
	"github.com/fyrsmithlabs/docforge/internal/store"
	"go.uber.org/zap"
)

type engineDeps struct {
	catalog *catalog.Catalog
	gate    provider.Gate
	cache   *ratelimit.ResponseCache
	store   store.Store
	logger  *logging.Logger
}

// engine builds one Coordinator per project from the current config. A
// reload only affects projects started afterwards.
type engine struct {
	deps engineDeps

	mu  sync.RWMutex
	cfg *config.Config
}

func newEngine(cfg *config.Config, d engineDeps) *engine {
	if d.logger == nil {
		d.logger = logging.NewNop()
	}
	return &engine{deps: d, cfg: cfg}
}

func (e *engine) current() *config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// reload swaps the config used for new projects.
func (e *engine) reload(cfg *config.Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	e.deps.logger.Info(context.Background(), "configuration reloaded",
		zap.String("default_provider", cfg.Providers.Default),
		zap.String("hybrid", cfg.Router.Hybrid),
		zap.Float64("quality_threshold", cfg.Quality.Threshold))
}

// newCoordinator implements orchestrator.Factory.
func (e *engine) newCoordinator(ctx context.Context) (*orchestrator.Coordinator, error) {
	cfg := e.current()

	rc := provider.RouterConfigFrom(cfg, e.deps.catalog.TechnicalDocuments())
	backends, err := provider.NewAll(ctx, cfg.Providers, provider.RequiredProviders(rc))
	if err != nil {
		return nil, err
	}
	gated := provider.GateAll(backends, e.deps.gate, retryPolicy(cfg.RateLimit),
		provider.WithCache(e.deps.cache),
		provider.WithLogger(e.deps.logger))
	router, err := provider.NewRouter(rc, gated)
	if err != nil {
		return nil, fmt.Errorf("building router: %w", err)
	}

	// Scoring and improvement use the default binding.
	judge := router.For("")
	loop, err := quality.NewLoop(quality.Config{
		Enabled:   cfg.Quality.Enabled,
		Threshold: int(math.Round(cfg.Quality.Threshold)),
	}, quality.NewLLMScorer(judge, 0), quality.NewLLMImprover(judge, 0), e.deps.logger)
	if err != nil {
		return nil, fmt.Errorf("building quality loop: %w", err)
	}

	redactor, err := newRedactor(cfg.Output)
	if err != nil {
		return nil, err
	}

	return orchestrator.NewCoordinator(orchestrator.Config{
		Workers:           cfg.Executor.Workers,
		Phase1Concurrency: cfg.Executor.Phase1Concurrency,
	}, orchestrator.Deps{
		Catalog:  e.deps.catalog,
		Router:   router,
		Quality:  loop,
		Store:    e.deps.store,
		Packager: packaging.Default(cfg.Output.Directory, e.deps.logger),
		Redactor: redactor,
		Logger:   e.deps.logger,
	})
}

// newRedactor returns nil when redaction is off.
func newRedactor(c config.OutputConfig) (*secrets.Redactor, error) {
	if !c.Redact {
		return nil, nil
	}
	sc := secrets.DefaultConfig()
	sc.AllowList = append(sc.AllowList, c.RedactAllowList...)
	r, err := secrets.New(sc)
	if err != nil {
		return nil, fmt.Errorf("building redactor: %w", err)
	}
	return r, nil
}

func retryPolicy(c config.RateLimitConfig) provider.RetryPolicy {
	p := provider.DefaultRetryPolicy
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	if c.BaseBackoff > 0 {
		p.BaseBackoff = c.BaseBackoff.Duration()
	}
	return p
}
