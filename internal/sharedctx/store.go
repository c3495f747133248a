// Package sharedctx holds the artifacts produced so far for each project.
//
// Every key is written once, by the step that produced it. Readers take an
// immutable Snapshot; a snapshot never contains a write that has not been
// fully committed, including the durable copy when a Persister is set.
package sharedctx

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"
)

// Artifact is one produced document.
type Artifact struct {
	DocumentID string            `json:"document_id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (a Artifact) clone() Artifact {
	a.Metadata = maps.Clone(a.Metadata)
	return a
}

// DuplicateKeyError is returned by Put when the key already holds an artifact.
type DuplicateKeyError struct {
	ProjectID string
	Key       string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("shared context: %s already has an artifact for %q", e.ProjectID, e.Key)
}

// Persister durably records an artifact before it becomes visible.
type Persister interface {
	SaveArtifact(ctx context.Context, projectID string, a Artifact) error
}

// Option configures a Store.
type Option func(*Store)

// WithPersister makes Put write through to p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithClock overrides time.Now for artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the per-project artifact map.
type Store struct {
	locks *mutexMap

	mu       sync.Mutex // guards the projects map itself
	projects map[string]map[string]Artifact

	persister Persister
	now       func() time.Time
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		locks:    newMutexMap(),
		projects: make(map[string]map[string]Artifact),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores a under key for projectID. It fails with *DuplicateKeyError
// when key is already present; nothing is persisted in that case.
func (s *Store) Put(ctx context.Context, projectID, key string, a Artifact) error {
	if key == "" {
		return fmt.Errorf("shared context: empty key")
	}

	s.locks.lock(projectID)
	defer s.locks.unlock(projectID)

	arts := s.project(projectID)
	if _, ok := arts[key]; ok {
		return &DuplicateKeyError{ProjectID: projectID, Key: key}
	}

	a = a.clone()
	a.DocumentID = key
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}

	if s.persister != nil {
		if err := s.persister.SaveArtifact(ctx, projectID, a); err != nil {
			return fmt.Errorf("persisting %s/%s: %w", projectID, key, err)
		}
	}

	s.mu.Lock()
	arts[key] = a
	s.mu.Unlock()
	return nil
}

// Snapshot returns an immutable view of everything stored for projectID.
func (s *Store) Snapshot(projectID string) Snapshot {
	s.locks.lock(projectID)
	defer s.locks.unlock(projectID)

	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.projects[projectID]
	arts := make(map[string]Artifact, len(src))
	for k, v := range src {
		arts[k] = v.clone()
	}
	return Snapshot{projectID: projectID, artifacts: arts}
}

// Release drops the in-memory state of a finished project.
func (s *Store) Release(projectID string) {
	s.locks.lock(projectID)
	s.mu.Lock()
	delete(s.projects, projectID)
	s.mu.Unlock()
	s.locks.unlock(projectID)
	s.locks.forget(projectID)
}

// project returns the artifact map for id, creating it if needed. Callers
// hold the project lock.
func (s *Store) project(id string) map[string]Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	arts, ok := s.projects[id]
	if !ok {
		arts = make(map[string]Artifact)
		s.projects[id] = arts
	}
	return arts
}
