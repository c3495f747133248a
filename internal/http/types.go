package http

import (
	"time"

	"github.com/fyrsmithlabs/docforge/internal/catalog"
	"github.com/fyrsmithlabs/docforge/internal/dag"
	"github.com/fyrsmithlabs/docforge/internal/quality"
	"github.com/fyrsmithlabs/docforge/internal/store"
)

// CreateProjectRequest is the request body for POST /api/v1/projects.
type CreateProjectRequest struct {
	Idea      string   `json:"idea"`
	Profile   string   `json:"profile,omitempty"`
	Documents []string `json:"documents,omitempty"`
}

// CreateProjectResponse is the response body for POST /api/v1/projects.
type CreateProjectResponse struct {
	ProjectID string   `json:"project_id"`
	Profile   string   `json:"profile"`
	Documents []string `json:"documents"`
}

// ProjectResponse is the response body for GET /api/v1/projects/:id.
type ProjectResponse struct {
	store.ProjectStatus
	Assessments []quality.Assessment `json:"assessments"`
	// Execution is present once Phase 2 has finished in this process.
	Execution *dag.Metrics `json:"execution,omitempty"`
}

// ListProjectsResponse is the response body for GET /api/v1/projects.
type ListProjectsResponse struct {
	Projects []store.ProjectStatus `json:"projects"`
}

// CancelResponse is the response body for DELETE /api/v1/projects/:id.
type CancelResponse struct {
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
}

// DocumentResponse is the response body for GET /api/v1/projects/:id/documents/:doc.
type DocumentResponse struct {
	ProjectID  string            `json:"project_id"`
	DocumentID string            `json:"document_id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// CatalogResponse is the response body for GET /api/v1/catalog.
type CatalogResponse struct {
	Profiles  []catalog.Profile  `json:"profiles"`
	Documents []catalog.Document `json:"documents"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Running int    `json:"running_projects"`
}
