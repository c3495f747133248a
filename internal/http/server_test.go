package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/catalog"
	"github.com/fyrsmithlabs/docforge/internal/logging"
	"github.com/fyrsmithlabs/docforge/internal/orchestrator"
	"github.com/fyrsmithlabs/docforge/internal/progress"
	"github.com/fyrsmithlabs/docforge/internal/provider"
	"github.com/fyrsmithlabs/docforge/internal/quality"
	"github.com/fyrsmithlabs/docforge/internal/ratelimit"
	"github.com/fyrsmithlabs/docforge/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
profiles:
  - id: team
  - id: individual
documents:
  - id: requirements
    name: Requirements
    phase: foundational
  - id: api_doc
    name: API Documentation
    phase: secondary
    depends_on: [requirements]
  - id: business_model
    name: Business Model
    phase: secondary
    profiles: [team]
`

// echoProvider returns a heading plus the first prompt line. block, when
// set, holds every call until closed.
type echoProvider struct {
	block chan struct{}
}

func (p *echoProvider) Name() string { return "fake" }

func (p *echoProvider) Generate(ctx context.Context, req provider.Request) (string, error) {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	first, _, _ := strings.Cut(req.Prompt, "\n")
	return "# Generated\n" + first, nil
}

type testServer struct {
	*Server
	registry *orchestrator.Registry
	store    *store.Memory
}

func setupTestServer(t *testing.T, p *echoProvider) *testServer {
	t.Helper()
	if p == nil {
		p = &echoProvider{}
	}
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	router, err := provider.NewRouter(provider.RouterConfig{Default: provider.Binding{Provider: "fake"}},
		map[string]provider.Provider{"fake": p})
	require.NoError(t, err)
	loop, err := quality.NewLoop(quality.Config{Threshold: quality.DefaultThreshold}, nil, nil, nil)
	require.NoError(t, err)
	st := store.NewMemory()
	logger := logging.NewNop()

	coord, err := orchestrator.NewCoordinator(orchestrator.Config{Workers: 2}, orchestrator.Deps{
		Catalog: cat, Router: router, Quality: loop, Store: st, Logger: logger,
	})
	require.NoError(t, err)

	hub := progress.NewHub(progress.DefaultHistory)
	reg, err := orchestrator.NewRegistry(context.Background(),
		func(context.Context) (*orchestrator.Coordinator, error) { return coord, nil }, st,
		orchestrator.WithSink(hub), orchestrator.WithRegistryLogger(logger),
		orchestrator.WithRetention(time.Minute, hub))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
	})

	gate, err := ratelimit.New(ratelimit.Config{MaxRequests: 50, Period: time.Minute, SafetyMargin: 0.95})
	require.NoError(t, err)

	srv, err := NewServer(Deps{
		Registry: reg, Events: hub, Catalog: cat, Gate: gate,
		Cache: ratelimit.NewResponseCache(10, nil), Logger: logger,
	}, nil)
	require.NoError(t, err)
	return &testServer{Server: srv, registry: reg, store: st}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) create(t *testing.T, req CreateProjectRequest) CreateProjectResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/projects", req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp CreateProjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (s *testServer) wait(t *testing.T, id string) store.ProjectStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := s.registry.Wait(ctx, id)
	require.NoError(t, err)
	return st
}

func TestNewServer(t *testing.T) {
	t.Run("returns error when registry is nil", func(t *testing.T) {
		_, err := NewServer(Deps{Events: progress.NewHub(1), Logger: logging.NewNop()}, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "registry cannot be nil")
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		s := setupTestServer(t, nil)
		assert.Equal(t, "localhost", s.config.Host)
		assert.Equal(t, 8080, s.config.Port)
	})
}

func TestHandleHealth(t *testing.T) {
	s := setupTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestCreateAndGetProject(t *testing.T) {
	s := setupTestServer(t, nil)

	created := s.create(t, CreateProjectRequest{Idea: "A recipe sharing app"})
	assert.NotEmpty(t, created.ProjectID)
	assert.Equal(t, "team", created.Profile)
	assert.Equal(t, []string{"requirements", "api_doc", "business_model"}, created.Documents)

	s.wait(t, created.ProjectID)

	rec := s.do(t, http.MethodGet, "/api/v1/projects/"+created.ProjectID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ProjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, store.StatusComplete, resp.Status)
	assert.ElementsMatch(t, created.Documents, resp.Completed)
	assert.NotNil(t, resp.Assessments)
	require.NotNil(t, resp.Execution)
	assert.Equal(t, 2, resp.Execution.Workers)

	rec = s.do(t, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListProjectsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Projects, 1)
	assert.Equal(t, created.ProjectID, list.Projects[0].ID)
}

func TestCreateProject_Validation(t *testing.T) {
	s := setupTestServer(t, nil)

	tests := []struct {
		name string
		body CreateProjectRequest
		want string
	}{
		{"empty idea", CreateProjectRequest{Idea: " "}, "idea is required"},
		{"unknown profile", CreateProjectRequest{Idea: "x", Profile: "enterprise"}, "unknown profile"},
		{"unknown document", CreateProjectRequest{Idea: "x", Documents: []string{"poem"}}, "unknown document"},
		{"document outside profile", CreateProjectRequest{Idea: "x", Profile: "individual", Documents: []string{"business_model"}}, "not available"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/projects", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", strings.NewReader("{"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetProject_NotFound(t *testing.T) {
	s := setupTestServer(t, nil)
	for _, path := range []string{
		"/api/v1/projects/ghost",
		"/api/v1/projects/ghost/documents/requirements",
		"/api/v1/projects/ghost/events",
	} {
		rec := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec := s.do(t, http.MethodDelete, "/api/v1/projects/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDocument(t *testing.T) {
	s := setupTestServer(t, nil)
	created := s.create(t, CreateProjectRequest{Idea: "x", Documents: []string{"api_doc"}})
	s.wait(t, created.ProjectID)

	rec := s.do(t, http.MethodGet, "/api/v1/projects/"+created.ProjectID+"/documents/api_doc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var doc DocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "api_doc", doc.DocumentID)
	assert.True(t, strings.HasPrefix(doc.Content, "# Generated"))
	assert.Equal(t, "fake", doc.Metadata[orchestrator.MetaProvider])

	rec = s.do(t, http.MethodGet, "/api/v1/projects/"+created.ProjectID+"/documents/api_doc?format=raw", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/markdown")
	assert.Equal(t, doc.Content, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/projects/"+created.ProjectID+"/documents/business_model", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/projects/"+created.ProjectID+"/documents/Index.MD", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// readSSE parses a recorded event stream.
func readSSE(t *testing.T, body string) []progress.Event {
	t.Helper()
	var events []progress.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var e progress.Event
			require.NoError(t, json.Unmarshal([]byte(data), &e))
			events = append(events, e)
		}
	}
	return events
}

func TestEvents_StreamEndsWithComplete(t *testing.T) {
	s := setupTestServer(t, nil)
	created := s.create(t, CreateProjectRequest{Idea: "x"})

	rec := s.do(t, http.MethodGet, "/api/v1/projects/"+created.ProjectID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	events := readSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, progress.EventComplete, last.Type)
	assert.Equal(t, "complete", last.Status)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.Equal(t, created.ProjectID, e.ProjectID)
	}
	assert.Contains(t, rec.Body.String(), "event: started\n")
}

func TestEvents_ProjectFromEarlierProcess(t *testing.T) {
	s := setupTestServer(t, nil)
	now := time.Now().UTC()
	require.NoError(t, s.store.CreateProject(context.Background(), store.ProjectStatus{
		ID: "old", Idea: "x", Profile: "team", Status: store.StatusFailed, Error: store.InterruptedError,
		Selected: []string{"requirements"}, Completed: []string{}, CreatedAt: now, UpdatedAt: now,
	}))

	rec := s.do(t, http.MethodGet, "/api/v1/projects/old/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := readSSE(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, progress.EventComplete, events[0].Type)
	assert.Equal(t, "failed", events[0].Status)
	assert.Equal(t, store.InterruptedError, events[0].Error)
}

func TestCancelProject(t *testing.T) {
	p := &echoProvider{block: make(chan struct{})}
	s := setupTestServer(t, p)
	created := s.create(t, CreateProjectRequest{Idea: "x"})

	rec := s.do(t, http.MethodDelete, "/api/v1/projects/"+created.ProjectID, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp CancelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancelling", resp.Status)

	close(p.block)
	st := s.wait(t, created.ProjectID)
	assert.Equal(t, store.StatusFailed, st.Status)
	assert.Equal(t, orchestrator.ErrCancelled.Error(), st.Error)

	rec = s.do(t, http.MethodDelete, "/api/v1/projects/"+created.ProjectID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateProject_ShuttingDown(t *testing.T) {
	s := setupTestServer(t, nil)
	require.NoError(t, s.registry.Shutdown(context.Background()))

	rec := s.do(t, http.MethodPost, "/api/v1/projects", CreateProjectRequest{Idea: "x"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), orchestrator.ErrShuttingDown.Error())
}

func TestStatsEndpoints(t *testing.T) {
	s := setupTestServer(t, nil)
	created := s.create(t, CreateProjectRequest{Idea: "x"})
	s.wait(t, created.ProjectID)

	rec := s.do(t, http.MethodGet, "/api/v1/ratelimit/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var gs ratelimit.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gs))
	assert.Equal(t, 47, gs.MaxRate)
	assert.Equal(t, 50, gs.OriginalMaxRate)

	rec = s.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Projects.Total)
	assert.Equal(t, 1, stats.Projects.Complete)
	require.NotNil(t, stats.Gate)

	rec = s.do(t, http.MethodGet, "/api/v1/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cat CatalogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cat))
	assert.Len(t, cat.Documents, 3)
	assert.Len(t, cat.Profiles, 2)

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCountProjects(t *testing.T) {
	c := CountProjects([]store.ProjectStatus{
		{Status: store.StatusRunning},
		{Status: store.StatusComplete},
		{Status: store.StatusComplete, Error: "api_doc: boom"},
		{Status: store.StatusFailed},
		{Status: store.StatusCreated},
	})
	assert.Equal(t, StatusCounts{Total: 5, Created: 1, Running: 1, Complete: 2, Failed: 1, Degraded: 1}, c)
}
