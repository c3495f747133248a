package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/catalog"
	"github.com/fyrsmithlabs/docforge/internal/config"
	apihttp "github.com/fyrsmithlabs/docforge/internal/http"
	"github.com/fyrsmithlabs/docforge/internal/logging"
	"github.com/fyrsmithlabs/docforge/internal/orchestrator"
	"github.com/fyrsmithlabs/docforge/internal/progress"
	"github.com/fyrsmithlabs/docforge/internal/ratelimit"
	"github.com/fyrsmithlabs/docforge/internal/store"
	"github.com/fyrsmithlabs/docforge/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// interruptedStore is implemented by the stores that can fail projects
// orphaned by a restart.
type interruptedStore interface {
	store.Store
	MarkInterrupted(ctx context.Context, at time.Time) (int, error)
	Close() error
}

// run starts docforged and blocks until ctx is cancelled.
//
// Startup order:
//  1. Load and validate configuration
//  2. Telemetry, then the logger bridged to it
//  3. Project store, failing projects interrupted by the last shutdown
//  4. Progress transport (embedded or external NATS plus the in-process hub)
//  5. Rate gate, response cache and the coordinator factory
//  6. Registry and HTTP server
//
// Shutdown cancels running projects, then stops the HTTP server.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry), nil)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting docforged",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("default_provider", cfg.Providers.Default),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("telemetry", tel.IsEnabled()))

	st, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn(context.Background(), "closing store", zap.Error(err))
		}
	}()
	if n, err := st.MarkInterrupted(ctx, time.Now()); err != nil {
		return fmt.Errorf("failed to recover interrupted projects: %w", err)
	} else if n > 0 {
		logger.Warn(ctx, "marked interrupted projects as failed", zap.Int("count", n))
	}

	broker, err := startBroker(ctx, cfg.NATS, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	hub := progress.NewHub(progress.DefaultHistory)
	sink := progress.Fanout{hub}
	if broker.sink != nil {
		sink = append(sink, broker.sink)
	}

	gateMetrics := ratelimit.NewMetrics()
	gate, err := ratelimit.New(ratelimit.Config{
		MaxRequests:  cfg.RateLimit.MaxRequests,
		Period:       cfg.RateLimit.Period.Duration(),
		SafetyMargin: cfg.RateLimit.SafetyMargin,
		Jitter:       cfg.RateLimit.Jitter.Duration(),
	}, ratelimit.WithMetrics(gateMetrics))
	if err != nil {
		return fmt.Errorf("failed to create rate gate: %w", err)
	}
	cache := ratelimit.NewResponseCache(cfg.RateLimit.CacheSize, gateMetrics)

	cat := catalog.Default()
	eng := newEngine(cfg, engineDeps{
		catalog: cat,
		gate:    gate,
		cache:   cache,
		store:   st,
		logger:  logger,
	})
	// The first coordinator validates the provider setup before serving.
	if _, err := eng.newCoordinator(ctx); err != nil {
		return fmt.Errorf("failed to configure providers: %w", err)
	}

	if watcher, err := config.NewWatcher(configPath, cfg, eng.reload, func(err error) {
		logger.Warn(context.Background(), "config reload rejected", zap.Error(err))
	}); err != nil {
		logger.Warn(ctx, "config hot reload disabled", zap.Error(err))
	} else if _, statErr := os.Stat(configPath); statErr == nil {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn(ctx, "config hot reload disabled", zap.Error(err))
		}
		defer watcher.Stop()
	} else {
		watcher.Stop()
	}

	registry, err := orchestrator.NewRegistry(ctx, eng.newCoordinator, st,
		orchestrator.WithSink(sink),
		orchestrator.WithRegistryLogger(logger),
		orchestrator.WithRetention(cfg.Server.Retention.Duration(), hub))
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}

	srv, err := apihttp.NewServer(apihttp.Deps{
		Registry: registry,
		Events:   hub,
		Catalog:  cat,
		Gate:     gate,
		Cache:    cache,
		Logger:   logger,
	}, &apihttp.Config{Host: cfg.Server.Host, Port: cfg.Server.Port})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()

		// Projects go first so open event streams see their final event
		// and end; Start answers 503 in the meantime.
		var errs []error
		if err := registry.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("registry shutdown: %w", err))
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	logger.Info(context.Background(), "docforged stopped", zap.Error(err))
	return err
}

func openStore(ctx context.Context, cfg config.StorageConfig) (interruptedStore, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "", "sqlite":
		s, err := store.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store %s: %w", cfg.Path, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
