// Package http serves the docforge project API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/catalog"
	"github.com/fyrsmithlabs/docforge/internal/logging"
	"github.com/fyrsmithlabs/docforge/internal/orchestrator"
	"github.com/fyrsmithlabs/docforge/internal/progress"
	"github.com/fyrsmithlabs/docforge/internal/ratelimit"
	"github.com/fyrsmithlabs/docforge/internal/sanitize"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// GateStats reports the state of the shared provider request gate.
type GateStats interface {
	Stats() ratelimit.Stats
}

// Deps are the collaborators of a Server.
type Deps struct {
	Registry *orchestrator.Registry
	// Events streams progress for the SSE endpoint.
	Events  progress.Subscriber
	Catalog *catalog.Catalog
	Gate    GateStats
	// Cache is optional; its size is added to the gate stats.
	Cache  *ratelimit.ResponseCache
	Logger *logging.Logger
}

// Server provides HTTP endpoints for docforge.
type Server struct {
	echo     *echo.Echo
	registry *orchestrator.Registry
	events   progress.Subscriber
	catalog  *catalog.Catalog
	gate     GateStats
	cache    *ratelimit.ResponseCache
	logger   *logging.Logger
	config   *Config
	// keepAlive is the SSE comment interval.
	keepAlive time.Duration
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(d Deps, cfg *Config) (*Server, error) {
	if d.Registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if d.Events == nil {
		return nil, fmt.Errorf("event subscriber cannot be nil")
	}
	if d.Logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if d.Catalog == nil {
		d.Catalog = catalog.Default()
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		registry:  d.Registry,
		events:    d.Events,
		catalog:   d.Catalog,
		gate:      d.Gate,
		cache:     d.Cache,
		logger:    d.Logger.Named("http"),
		config:    cfg,
		keepAlive: 15 * time.Second,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(NewHTTPMetrics(s.logger).MetricsMiddleware())

	s.registerRoutes()
	return s, nil
}

// requestLogger puts the request id in the request context and logs every
// request once it is served.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		req := c.Request()
		c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), rid)))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(c.Request().Context(), "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/catalog", s.handleCatalog)
	v1.GET("/ratelimit/stats", s.handleGateStats)
	v1.GET("/stats", s.handleStats)

	v1.POST("/projects", s.handleCreateProject)
	v1.GET("/projects", s.handleListProjects)
	v1.GET("/projects/:id", s.handleGetProject)
	v1.DELETE("/projects/:id", s.handleCancelProject)
	v1.GET("/projects/:id/documents/:doc", s.handleGetDocument)
	v1.GET("/projects/:id/events", s.handleEvents)
}

// Handler exposes the router for embedding and tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// apiError maps domain errors onto HTTP errors.
func (s *Server) apiError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyIdea),
		errors.Is(err, catalog.ErrUnknownProfile),
		errors.Is(err, catalog.ErrUnknownDocument),
		errors.Is(err, catalog.ErrNotInProfile),
		errors.Is(err, sanitize.ErrInvalidDocumentID):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, orchestrator.ErrProjectNotFound), isNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrProjectExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, orchestrator.ErrShuttingDown):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	s.logger.Error(c.Request().Context(), "request failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
