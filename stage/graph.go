package stage

import (
	"container/heap"
	"maps"
	"slices"
	"strings"
)

// Source describes where an input port gets its value.
type Source struct {
	// From is the producing output port. Zero when Bound.
	From PortRef
	// Value is the constant of a bound input.
	Value Value
	// Bound reports whether the input is a constant binding.
	Bound bool
}

// Graph is a validated, acyclic set of leaf stages and edges.
// Immutable; safe for concurrent use.
type Graph struct {
	name       string
	stages     map[string]Stage
	order      []string
	edges      []Edge
	sources    map[PortRef]Source
	deps       map[string][]string
	dependents map[string][]string
	workers    int
}

func newGraph(name string, leaves map[string]Stage, edges []Edge, bindings []binding) *Graph {
	g := &Graph{
		name:       name,
		stages:     maps.Clone(leaves),
		edges:      sortEdges(edges),
		sources:    make(map[PortRef]Source),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
		workers:    1,
	}
	for _, e := range g.edges {
		g.sources[e.To] = Source{From: e.From}
		if !slices.Contains(g.deps[e.To.Stage], e.From.Stage) {
			g.deps[e.To.Stage] = append(g.deps[e.To.Stage], e.From.Stage)
			g.dependents[e.From.Stage] = append(g.dependents[e.From.Stage], e.To.Stage)
		}
	}
	for _, bd := range bindings {
		g.sources[bd.to] = Source{Value: bd.value, Bound: true}
	}
	for _, list := range g.deps {
		slices.Sort(list)
	}
	for _, list := range g.dependents {
		slices.Sort(list)
	}
	g.order = topoOrder(slices.Sorted(maps.Keys(g.stages)), g.edges)
	return g
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Workers returns the maximum number of stages run concurrently.
func (g *Graph) Workers() int { return g.workers }

// WithWorkers returns a copy of g with a worker count. Values below 1 mean 1.
func (g *Graph) WithWorkers(n int) *Graph {
	out := *g
	out.workers = max(n, 1)
	return &out
}

// Len returns the number of leaf stages.
func (g *Graph) Len() int { return len(g.order) }

// Order returns the leaf stage names in deterministic topological order.
func (g *Graph) Order() []string { return slices.Clone(g.order) }

// Stage returns a leaf stage by name.
func (g *Graph) Stage(name string) (Stage, bool) {
	s, ok := g.stages[name]
	return s, ok
}

// Edges returns all edges sorted by consumer then producer.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// Source returns the source of an input port. False for an unconnected
// optional input.
func (g *Graph) Source(stage, port string) (Source, bool) {
	s, ok := g.sources[PortRef{Stage: stage, Port: port}]
	return s, ok
}

// Dependencies returns the distinct producer stages of a stage, sorted.
func (g *Graph) Dependencies(stage string) []string { return slices.Clone(g.deps[stage]) }

// Dependents returns the distinct consumer stages of a stage, sorted.
func (g *Graph) Dependents(stage string) []string { return slices.Clone(g.dependents[stage]) }

func sortEdges(edges []Edge) []Edge {
	out := slices.Clone(edges)
	slices.SortFunc(out, func(a, b Edge) int {
		if c := strings.Compare(a.To.String(), b.To.String()); c != 0 {
			return c
		}
		return strings.Compare(a.From.String(), b.From.String())
	})
	return slices.CompactFunc(out, func(a, b Edge) bool { return a == b })
}

// adjacency returns the sorted distinct consumer stages of each stage.
func adjacency(edges []Edge) map[string][]string {
	out := make(map[string][]string)
	for _, e := range edges {
		if !slices.Contains(out[e.From.Stage], e.To.Stage) {
			out[e.From.Stage] = append(out[e.From.Stage], e.To.Stage)
		}
	}
	for _, list := range out {
		slices.Sort(list)
	}
	return out
}

type nameHeap []string

func (h nameHeap) Len() int           { return len(h) }
func (h nameHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h nameHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nameHeap) Push(x any)        { *h = append(*h, x.(string)) }
func (h *nameHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder runs Kahn's algorithm with a min-heap on stage names so the
// order is stable across runs. Stages on a cycle are left out.
func topoOrder(names []string, edges []Edge) []string {
	out := adjacency(edges)
	indeg := make(map[string]int, len(names))
	for _, consumers := range out {
		for _, c := range consumers {
			indeg[c]++
		}
	}

	ready := &nameHeap{}
	for _, n := range names {
		if indeg[n] == 0 {
			heap.Push(ready, n)
		}
	}

	order := make([]string, 0, len(names))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(string)
		order = append(order, n)
		for _, m := range out[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return order
}

// findCycle returns one cycle as a closed path of stage names, or nil.
// The DFS visits stages and consumers in sorted order, so the witness is
// the same for the same graph.
func findCycle(names []string, edges []Edge) []string {
	if len(topoOrder(names, edges)) == len(names) {
		return nil
	}

	const (
		white = iota
		gray
		black
	)
	out := adjacency(edges)
	color := make(map[string]int, len(names))
	parent := make(map[string]string, len(names))
	var cycle []string

	var dfs func(u string) bool
	dfs = func(u string) bool {
		color[u] = gray
		for _, v := range out[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				// Back edge u -> v closes v ... u -> v.
				path := []string{u}
				for cur := u; cur != v; {
					cur = parent[cur]
					path = append(path, cur)
				}
				slices.Reverse(path)
				cycle = append(path, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for _, n := range names {
		if color[n] == white && dfs(n) {
			break
		}
	}
	return cycle
}
