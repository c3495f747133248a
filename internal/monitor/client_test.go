package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apihttp "github.com/fyrsmithlabs/docforge/internal/http"
	"github.com/fyrsmithlabs/docforge/internal/progress"
	"github.com/fyrsmithlabs/docforge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		var req apihttp.CreateProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Idea == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "idea must not be empty"})
			return
		}
		writeJSON(w, http.StatusAccepted, apihttp.CreateProjectResponse{
			ProjectID: "p1", Profile: "team", Documents: []string{"requirements"},
		})
	})
	mux.HandleFunc("GET /api/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apihttp.ListProjectsResponse{Projects: []store.ProjectStatus{
			{ID: "p1", Status: store.StatusRunning},
		}})
	})
	mux.HandleFunc("GET /api/v1/projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "p1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "project not found"})
			return
		}
		writeJSON(w, http.StatusOK, apihttp.ProjectResponse{ProjectStatus: store.ProjectStatus{ID: "p1", Status: store.StatusComplete}})
	})
	mux.HandleFunc("DELETE /api/v1/projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "project already finished"})
	})
	mux.HandleFunc("GET /api/v1/projects/{id}/documents/{doc}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apihttp.DocumentResponse{
			ProjectID: r.PathValue("id"), DocumentID: r.PathValue("doc"), Content: "# Requirements",
		})
	})
	mux.HandleFunc("GET /api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apihttp.StatsResponse{Projects: apihttp.StatusCounts{Total: 2, Running: 1, Complete: 1}})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apihttp.HealthResponse{Status: "ok", Running: 1})
	})
	mux.HandleFunc("GET /api/v1/projects/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "p1" {
			http.Error(w, "no such project", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		frames := []progress.Event{
			{Seq: 1, Type: progress.EventStarted, ProjectID: "p1", DocumentID: "requirements"},
			{Seq: 2, Type: progress.EventSucceeded, ProjectID: "p1", DocumentID: "requirements"},
			{Seq: 3, Type: progress.EventComplete, ProjectID: "p1", Status: "complete"},
			{Seq: 4, Type: progress.EventStarted, ProjectID: "p1", DocumentID: "never"},
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		for _, e := range frames {
			data, _ := json.Marshal(e)
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.Seq, e.Type, data)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_CRUD(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	assert.Equal(t, srv.URL, c.BaseURL())

	created, err := c.CreateProject(ctx, apihttp.CreateProjectRequest{Idea: "A todo app"})
	require.NoError(t, err)
	assert.Equal(t, "p1", created.ProjectID)

	p, err := c.Project(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusComplete, p.Status)

	list, err := c.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	doc, err := c.Document(ctx, "p1", "requirements")
	require.NoError(t, err)
	assert.Equal(t, "# Requirements", doc.Content)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Projects.Total)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
}

func TestClient_Errors(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	_, err := c.CreateProject(ctx, apihttp.CreateProjectRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "idea must not be empty", apiErr.Message)

	_, err = c.Project(ctx, "missing")
	assert.True(t, IsNotFound(err))

	err = c.Cancel(ctx, "p1")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.False(t, IsNotFound(err))

	_, _, err = c.Subscribe(ctx, "missing")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "no such project", apiErr.Message)
}

func TestClient_SubscribeStopsAtComplete(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, time.Second)

	events, cancel, err := c.Subscribe(context.Background(), "p1")
	require.NoError(t, err)
	defer cancel()

	var got []progress.EventType
	for e := range events {
		got = append(got, e.Type)
	}
	assert.Equal(t, []progress.EventType{
		progress.EventStarted, progress.EventSucceeded, progress.EventComplete,
	}, got)
}

func TestReadEvents(t *testing.T) {
	t.Run("multi-line data", func(t *testing.T) {
		in := "event: complete\ndata: {\"type\":\"complete\",\ndata: \"status\":\"failed\"}\n\n"
		out := make(chan progress.Event, 1)
		require.NoError(t, readEvents(context.Background(), strings.NewReader(in), out))
		e := <-out
		assert.Equal(t, "failed", e.Status)
	})

	t.Run("bad payload", func(t *testing.T) {
		out := make(chan progress.Event, 1)
		err := readEvents(context.Background(), strings.NewReader("data: {nope\n\n"), out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode event")
	})

	t.Run("eof without terminal", func(t *testing.T) {
		out := make(chan progress.Event, 2)
		in := "data: {\"type\":\"started\"}\n\n"
		require.NoError(t, readEvents(context.Background(), strings.NewReader(in), out))
		assert.Len(t, out, 1)
	})
}
