package dag

import (
	"container/heap"
	"context"
	"sort"

	"github.com/fyrsmithlabs/docforge/internal/sharedctx"
)

// StepFunc produces one artifact. Implementations that write to the shared
// context must do so before returning, so that dependents observe the write.
type StepFunc func(ctx context.Context) (sharedctx.Artifact, error)

// Step is one schedulable unit of work.
type Step struct {
	ID   string
	Deps []string
	Run  StepFunc
}

type node struct {
	step  Step
	index int
}

// Graph is a validated, immutable, acyclic set of steps. Node order is the
// order the steps were registered in and is used as the scheduling tie-break.
type Graph struct {
	nodes    []node
	byID     map[string]int
	incoming [][]int // sorted dependency indices
	outgoing [][]int // sorted dependent indices
	indeg    []int
	depth    []int
}

// NewGraph validates steps and builds the graph. Unknown dependencies,
// duplicate ids and cycles are rejected before anything can run.
func NewGraph(steps []Step) (*Graph, error) {
	g := &Graph{
		nodes: make([]node, 0, len(steps)),
		byID:  make(map[string]int, len(steps)),
	}
	for i, s := range steps {
		if s.ID == "" {
			return nil, invalidf("step %d has an empty id", i)
		}
		if s.Run == nil {
			return nil, invalidf("step %q has no run function", s.ID)
		}
		if _, dup := g.byID[s.ID]; dup {
			return nil, invalidf("duplicate step %q", s.ID)
		}
		g.byID[s.ID] = i
		g.nodes = append(g.nodes, node{step: s, index: i})
	}

	n := len(g.nodes)
	g.incoming = make([][]int, n)
	g.outgoing = make([][]int, n)
	g.indeg = make([]int, n)
	for i, nd := range g.nodes {
		seen := make(map[string]bool, len(nd.step.Deps))
		for _, dep := range nd.step.Deps {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if dep == nd.step.ID {
				return nil, cycleError([]string{dep, dep})
			}
			j, ok := g.byID[dep]
			if !ok {
				return nil, invalidf("step %q depends on unknown step %q", nd.step.ID, dep)
			}
			g.incoming[i] = append(g.incoming[i], j)
			g.outgoing[j] = append(g.outgoing[j], i)
			g.indeg[i]++
		}
	}
	for i := range g.nodes {
		sort.Ints(g.incoming[i])
		sort.Ints(g.outgoing[i])
	}

	order := g.topoOrder()
	if len(order) != n {
		return nil, cycleError(g.findCycle())
	}
	g.depth = make([]int, n)
	for _, u := range order {
		for _, p := range g.incoming[u] {
			if d := g.depth[p] + 1; d > g.depth[u] {
				g.depth[u] = d
			}
		}
	}
	return g, nil
}

// Len returns the number of steps.
func (g *Graph) Len() int { return len(g.nodes) }

// IDs returns the step ids in registration order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.nodes))
	for i, nd := range g.nodes {
		out[i] = nd.step.ID
	}
	return out
}

// Deps returns the dependencies of id in registration order.
func (g *Graph) Deps(id string) []string {
	i, ok := g.byID[id]
	if !ok {
		return nil
	}
	out := make([]string, len(g.incoming[i]))
	for k, j := range g.incoming[i] {
		out[k] = g.nodes[j].step.ID
	}
	return out
}

// Waves groups the steps by topological depth: wave 0 has no dependencies,
// wave n depends on at least one step of wave n-1.
func (g *Graph) Waves() [][]string {
	maxDepth := -1
	for _, d := range g.depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	waves := make([][]string, maxDepth+1)
	for i, nd := range g.nodes {
		waves[g.depth[i]] = append(waves[g.depth[i]], nd.step.ID)
	}
	return waves
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder is Kahn's algorithm with a min-heap on registration index.
func (g *Graph) topoOrder() []int {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &intMinHeap{}
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		out = append(out, u)
		for _, v := range g.outgoing[u] {
			indeg[v]--
			if indeg[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}
	return out
}

// findCycle returns one cycle as a closed path of step ids, each step
// followed by one of its dependents.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.nodes))
	parent := make([]int, len(g.nodes))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range g.outgoing[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range g.nodes {
		if color[i] == white && dfs(i) {
			break
		}
	}

	out := make([]string, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		out = append(out, g.nodes[cycle[i]].step.ID)
	}
	return out
}
