// Package store persists project status records, produced artifacts and
// quality assessments. The persisted record is authoritative; the
// coordinator's in-process state is a cache of it.
package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/quality"
	"github.com/fyrsmithlabs/docforge/internal/sharedctx"
)

var (
	// ErrNotFound is returned when a project or artifact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when creating a project whose id is taken.
	ErrExists = errors.New("already exists")
)

// Status is the lifecycle state of a project.
type Status string

const (
	StatusCreated  Status = "created"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// IsTerminal reports whether s is complete or failed.
func (s Status) IsTerminal() bool { return s == StatusComplete || s == StatusFailed }

// InterruptedError is the error recorded on projects found running at startup.
const InterruptedError = "interrupted by restart"

// ProjectStatus is the durable record of one project.
type ProjectStatus struct {
	ID        string    `json:"id"`
	Idea      string    `json:"idea"`
	Profile   string    `json:"profile"`
	Status    Status    `json:"status"`
	Phase     string    `json:"phase,omitempty"`
	Selected  []string  `json:"selected_documents"`
	Completed []string  `json:"completed_documents"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no slices with p.
func (p ProjectStatus) Clone() ProjectStatus {
	p.Selected = slices.Clone(p.Selected)
	p.Completed = slices.Clone(p.Completed)
	return p
}

// Store is the persistence collaborator of the coordinator. It also
// satisfies sharedctx.Persister.
type Store interface {
	CreateProject(ctx context.Context, p ProjectStatus) error
	UpdateProject(ctx context.Context, p ProjectStatus) error
	GetProject(ctx context.Context, id string) (ProjectStatus, error)
	// ListProjects returns projects newest first.
	ListProjects(ctx context.Context) ([]ProjectStatus, error)

	SaveArtifact(ctx context.Context, projectID string, a sharedctx.Artifact) error
	GetArtifact(ctx context.Context, projectID, documentID string) (sharedctx.Artifact, error)
	ListArtifacts(ctx context.Context, projectID string) ([]sharedctx.Artifact, error)

	SaveAssessment(ctx context.Context, projectID string, a quality.Assessment) error
	ListAssessments(ctx context.Context, projectID string) ([]quality.Assessment, error)

	// MarkInterrupted fails every project left running by a previous
	// process and returns how many were changed.
	MarkInterrupted(ctx context.Context, at time.Time) (int, error)

	Close() error
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQLite)(nil)
)
