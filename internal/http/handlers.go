package http

import (
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/docforge/internal/orchestrator"
	"github.com/fyrsmithlabs/docforge/internal/quality"
	"github.com/fyrsmithlabs/docforge/internal/ratelimit"
	"github.com/fyrsmithlabs/docforge/internal/sanitize"
	"github.com/fyrsmithlabs/docforge/internal/store"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func isNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Running: len(s.registry.Running())})
}

func (s *Server) handleCatalog(c echo.Context) error {
	return c.JSON(http.StatusOK, CatalogResponse{Profiles: s.catalog.Profiles(), Documents: s.catalog.Documents()})
}

func (s *Server) gateStats() *ratelimit.Stats {
	if s.gate == nil {
		return nil
	}
	st := s.gate.Stats()
	if s.cache != nil {
		st.CacheSize = s.cache.Len()
	}
	return &st
}

func (s *Server) handleGateStats(c echo.Context) error {
	st := s.gateStats()
	if st == nil {
		return echo.NewHTTPError(http.StatusNotFound, "rate limiting is not configured")
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleStats(c echo.Context) error {
	list, err := s.registry.List(c.Request().Context())
	if err != nil {
		return s.apiError(c, err)
	}
	return c.JSON(http.StatusOK, StatsResponse{Projects: CountProjects(list), Gate: s.gateStats()})
}

// handleCreateProject starts a project and returns before any document is
// generated.
func (s *Server) handleCreateProject(c echo.Context) error {
	var req CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid project request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p, err := s.registry.Start(c.Request().Context(), orchestrator.Request{
		Idea:      req.Idea,
		Profile:   req.Profile,
		Documents: req.Documents,
	})
	if err != nil {
		return s.apiError(c, err)
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/projects/"+p.ID())
	return c.JSON(http.StatusAccepted, CreateProjectResponse{
		ProjectID: p.ID(),
		Profile:   p.Selection().Profile,
		Documents: p.Selection().IDs(),
	})
}

func (s *Server) handleListProjects(c echo.Context) error {
	list, err := s.registry.List(c.Request().Context())
	if err != nil {
		return s.apiError(c, err)
	}
	if list == nil {
		list = []store.ProjectStatus{}
	}
	return c.JSON(http.StatusOK, ListProjectsResponse{Projects: list})
}

func (s *Server) handleGetProject(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	st, err := s.registry.Status(ctx, id)
	if err != nil {
		return s.apiError(c, err)
	}
	assessments, err := s.registry.Assessments(ctx, id)
	if err != nil {
		return s.apiError(c, err)
	}
	if assessments == nil {
		assessments = []quality.Assessment{}
	}
	resp := ProjectResponse{ProjectStatus: st, Assessments: assessments}
	if p, ok := s.registry.Get(id); ok {
		resp.Execution = p.ExecutionMetrics()
	}
	return c.JSON(http.StatusOK, resp)
}

// handleCancelProject requests cooperative cancellation. Documents already
// being generated finish; nothing new is scheduled.
func (s *Server) handleCancelProject(c echo.Context) error {
	id := c.Param("id")
	st, err := s.registry.Status(c.Request().Context(), id)
	if err != nil {
		return s.apiError(c, err)
	}
	if st.Status.IsTerminal() {
		return echo.NewHTTPError(http.StatusConflict, "project already "+string(st.Status))
	}
	if err := s.registry.Cancel(id, orchestrator.ErrCancelled); err != nil {
		return s.apiError(c, err)
	}
	s.logger.Info(c.Request().Context(), "project cancellation requested", zap.String("project_id", id))
	return c.JSON(http.StatusAccepted, CancelResponse{ProjectID: id, Status: "cancelling"})
}

// handleGetDocument returns one artifact as JSON, or as Markdown with
// ?format=raw.
func (s *Server) handleGetDocument(c echo.Context) error {
	id, doc := c.Param("id"), c.Param("doc")
	if err := sanitize.ValidateDocumentID(doc); err != nil {
		return s.apiError(c, err)
	}
	a, err := s.registry.Artifact(c.Request().Context(), id, doc)
	if err != nil {
		return s.apiError(c, err)
	}
	if c.QueryParam("format") == "raw" {
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(a.Content))
	}
	return c.JSON(http.StatusOK, DocumentResponse{
		ProjectID:  id,
		DocumentID: a.DocumentID,
		Content:    a.Content,
		Metadata:   a.Metadata,
		CreatedAt:  a.CreatedAt,
	})
}
