package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/quality"
	"github.com/fyrsmithlabs/docforge/internal/sharedctx"
)

// Memory is a Store kept in process memory. It is used in tests and with
// the memory storage driver.
type Memory struct {
	mu          sync.RWMutex
	projects    map[string]ProjectStatus
	artifacts   map[string]map[string]sharedctx.Artifact
	assessments map[string]map[string]quality.Assessment
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		projects:    make(map[string]ProjectStatus),
		artifacts:   make(map[string]map[string]sharedctx.Artifact),
		assessments: make(map[string]map[string]quality.Assessment),
	}
}

func (m *Memory) CreateProject(_ context.Context, p ProjectStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; ok {
		return fmt.Errorf("project %s: %w", p.ID, ErrExists)
	}
	m.projects[p.ID] = p.Clone()
	return nil
}

func (m *Memory) UpdateProject(_ context.Context, p ProjectStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return fmt.Errorf("project %s: %w", p.ID, ErrNotFound)
	}
	m.projects[p.ID] = p.Clone()
	return nil
}

func (m *Memory) GetProject(_ context.Context, id string) (ProjectStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return ProjectStatus{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

func (m *Memory) ListProjects(_ context.Context) ([]ProjectStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ProjectStatus, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b ProjectStatus) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *Memory) SaveArtifact(_ context.Context, projectID string, a sharedctx.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.artifacts[projectID]
	if docs == nil {
		docs = make(map[string]sharedctx.Artifact)
		m.artifacts[projectID] = docs
	}
	a.Metadata = maps.Clone(a.Metadata)
	docs[a.DocumentID] = a
	return nil
}

func (m *Memory) GetArtifact(_ context.Context, projectID, documentID string) (sharedctx.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.artifacts[projectID][documentID]
	if !ok {
		return sharedctx.Artifact{}, fmt.Errorf("artifact %s/%s: %w", projectID, documentID, ErrNotFound)
	}
	a.Metadata = maps.Clone(a.Metadata)
	return a, nil
}

func (m *Memory) ListArtifacts(_ context.Context, projectID string) ([]sharedctx.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]sharedctx.Artifact, 0, len(m.artifacts[projectID]))
	for _, a := range m.artifacts[projectID] {
		a.Metadata = maps.Clone(a.Metadata)
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b sharedctx.Artifact) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.DocumentID, b.DocumentID)
	})
	return out, nil
}

func (m *Memory) SaveAssessment(_ context.Context, projectID string, a quality.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.assessments[projectID]
	if docs == nil {
		docs = make(map[string]quality.Assessment)
		m.assessments[projectID] = docs
	}
	docs[a.DocumentID] = a
	return nil
}

func (m *Memory) ListAssessments(_ context.Context, projectID string) ([]quality.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Collect(maps.Values(m.assessments[projectID]))
	slices.SortFunc(out, func(a, b quality.Assessment) int { return cmp.Compare(a.DocumentID, b.DocumentID) })
	return out, nil
}

func (m *Memory) MarkInterrupted(_ context.Context, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, p := range m.projects {
		if p.Status != StatusRunning && p.Status != StatusCreated {
			continue
		}
		p.Status = StatusFailed
		p.Error = InterruptedError
		p.UpdatedAt = at
		m.projects[id] = p
		n++
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }
