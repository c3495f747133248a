package http

import (
	"github.com/fyrsmithlabs/docforge/internal/ratelimit"
	"github.com/fyrsmithlabs/docforge/internal/store"
)

// StatusCounts counts projects by status.
type StatusCounts struct {
	Total    int `json:"total"`
	Created  int `json:"created"`
	Running  int `json:"running"`
	Complete int `json:"complete"`
	Failed   int `json:"failed"`
	// Degraded projects completed with at least one failed document.
	Degraded int `json:"degraded"`
}

// StatsResponse is the response body for GET /api/v1/stats.
type StatsResponse struct {
	Projects StatusCounts     `json:"projects"`
	Gate     *ratelimit.Stats `json:"gate,omitempty"`
}

// CountProjects tallies list by status.
func CountProjects(list []store.ProjectStatus) StatusCounts {
	var c StatusCounts
	for _, p := range list {
		c.Total++
		switch p.Status {
		case store.StatusCreated:
			c.Created++
		case store.StatusRunning:
			c.Running++
		case store.StatusComplete:
			c.Complete++
			if p.Error != "" {
				c.Degraded++
			}
		case store.StatusFailed:
			c.Failed++
		}
	}
	return c
}
