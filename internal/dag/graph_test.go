package dag

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/docforge/internal/sharedctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) (sharedctx.Artifact, error) { return sharedctx.Artifact{}, nil }

func steps(defs ...[]string) []Step {
	out := make([]Step, 0, len(defs))
	for _, s := range defs {
		out = append(out, Step{ID: s[0], Deps: s[1:], Run: noop})
	}
	return out
}

func TestNewGraph_Valid(t *testing.T) {
	g, err := NewGraph(steps(
		[]string{"database_schema"},
		[]string{"api_documentation"},
		[]string{"setup_guide", "api_documentation"},
		[]string{"developer_documentation", "api_documentation", "setup_guide"},
		[]string{"test_documentation"},
	))
	require.NoError(t, err)

	assert.Equal(t, 5, g.Len())
	assert.Equal(t, []string{"database_schema", "api_documentation", "setup_guide", "developer_documentation", "test_documentation"}, g.IDs())
	assert.Equal(t, []string{"api_documentation", "setup_guide"}, g.Deps("developer_documentation"))
	assert.Equal(t, [][]string{
		{"database_schema", "api_documentation", "test_documentation"},
		{"setup_guide"},
		{"developer_documentation"},
	}, g.Waves())
}

func TestNewGraph_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
		kind  error
	}{
		{"empty id", steps([]string{""}), ErrInvalidGraph},
		{"duplicate", steps([]string{"a"}, []string{"a"}), ErrInvalidGraph},
		{"unknown dep", steps([]string{"a", "missing"}), ErrInvalidGraph},
		{"nil run", []Step{{ID: "a"}}, ErrInvalidGraph},
		{"self loop", steps([]string{"a", "a"}), ErrCycle},
		{"two cycle", steps([]string{"a", "b"}, []string{"b", "a"}), ErrCycle},
		{"long cycle", steps([]string{"a", "c"}, []string{"b", "a"}, []string{"c", "b"}, []string{"d"}), ErrCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.steps)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			var ge *GraphError
			assert.ErrorAs(t, err, &ge)
		})
	}
}

func TestNewGraph_CyclePath(t *testing.T) {
	_, err := NewGraph(steps([]string{"a", "c"}, []string{"b", "a"}, []string{"c", "b"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a -> b -> c -> a")
}

func TestNewGraph_CycleRejectedBeforeAnyRun(t *testing.T) {
	ran := false
	run := func(context.Context) (sharedctx.Artifact, error) {
		ran = true
		return sharedctx.Artifact{}, nil
	}
	_, err := NewGraph([]Step{
		{ID: "ok", Run: run},
		{ID: "x", Deps: []string{"y"}, Run: run},
		{ID: "y", Deps: []string{"x"}, Run: run},
	})
	assert.ErrorIs(t, err, ErrCycle)
	assert.False(t, ran)
}

func TestNewGraph_DuplicateDepsCollapsed(t *testing.T) {
	g, err := NewGraph(steps([]string{"a"}, []string{"b", "a", "a"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, g.Deps("b"))
}

func TestTransition(t *testing.T) {
	states := []State{StatePending}
	id := func(int) string { return "a" }

	require.NoError(t, transition(states, id, 0, StatePending, StateReady))
	require.NoError(t, transition(states, id, 0, StateReady, StateRunning))
	require.NoError(t, transition(states, id, 0, StateRunning, StateFailed))

	assert.Error(t, transition(states, id, 0, StateFailed, StateRunning), "failed never re-enters running")
	assert.Error(t, transition(states, id, 0, StateRunning, StateSucceeded), "stale from-state")

	states[0] = StateSucceeded
	assert.Error(t, transition(states, id, 0, StateSucceeded, StateRunning))
	assert.Error(t, transition([]State{StatePending}, id, 0, StatePending, StateRunning), "pending must become ready first")
}
