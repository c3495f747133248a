package sharedctx

import "sort"

// Snapshot is a point-in-time, read-only copy of a project's artifacts.
type Snapshot struct {
	projectID string
	artifacts map[string]Artifact
}

// ProjectID returns the project the snapshot was taken from.
func (s Snapshot) ProjectID() string { return s.projectID }

// Get returns the artifact stored under key.
func (s Snapshot) Get(key string) (Artifact, bool) {
	a, ok := s.artifacts[key]
	if !ok {
		return Artifact{}, false
	}
	return a.clone(), true
}

// Content returns the artifact text for key, or "".
func (s Snapshot) Content(key string) string {
	return s.artifacts[key].Content
}

// Has reports whether key is present.
func (s Snapshot) Has(key string) bool {
	_, ok := s.artifacts[key]
	return ok
}

// Len returns the number of artifacts.
func (s Snapshot) Len() int { return len(s.artifacts) }

// Keys returns the stored keys in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.artifacts))
	for k := range s.artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns a copy of every artifact, keyed by document id.
func (s Snapshot) All() map[string]Artifact {
	out := make(map[string]Artifact, len(s.artifacts))
	for k, v := range s.artifacts {
		out[k] = v.clone()
	}
	return out
}
