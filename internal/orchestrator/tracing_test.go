package orchestrator

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/docforge/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

var recorder = telemetry.NewRecorder()

func init() { recorder.Install() }

func TestCoordinator_RunIsTraced(t *testing.T) {
	f := newFixture(t, requirementsThenAPI, nil)
	p := f.project(t, Request{Idea: "A todo app"})
	before := recorder.Int64Sum(t, "docforge.projects", attribute.String("status", "complete"))

	require.NoError(t, f.coord.Run(context.Background(), p))

	root := recorder.RequireSpan(t, "coordinator.Run", attribute.String("project.id", p.ID()))
	assert.Subset(t, recorder.Children(root), []string{"coordinator.phase1", "coordinator.phase2", "coordinator.phase3"})
	recorder.RequireSpan(t, "executor.Run")

	after := recorder.Int64Sum(t, "docforge.projects", attribute.String("status", "complete"))
	assert.Equal(t, int64(1), after-before)
}
