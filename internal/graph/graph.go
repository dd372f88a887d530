// Package graph builds a file-level dependency graph from resolved imports,
// detects cycles, serializes it, and computes PageRank centrality.
package graph

import (
	"math"
	"sort"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/model"
)

// Graph is a forward adjacency list plus its exact inverse. It is built
// wholesale and not mutated after Seal.
type Graph struct {
	nodes   map[string]struct{}
	order   []string
	forward map[string][]model.DependencyEdge
	reverse map[string][]model.DependencyEdge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]struct{}),
		forward: make(map[string][]model.DependencyEdge),
		reverse: make(map[string][]model.DependencyEdge),
	}
}

// AddNode registers a file even if it has no edges.
func (g *Graph) AddNode(path string) {
	g.nodes[path] = struct{}{}
}

// AddEdge appends e to its source's forward list, ignoring duplicates and
// self-edges. Both endpoints become nodes.
func (g *Graph) AddEdge(e model.DependencyEdge) {
	if e.Source == e.Target {
		return
	}
	for _, existing := range g.forward[e.Source] {
		if existing.Target == e.Target && existing.Kind == e.Kind {
			return
		}
	}
	g.AddNode(e.Source)
	g.AddNode(e.Target)
	g.forward[e.Source] = append(g.forward[e.Source], e)
}

// Seal sorts the node list and derives the reverse adjacency from forward.
func (g *Graph) Seal() *Graph {
	g.order = sortedKeys(g.nodes)
	g.reverse = make(map[string][]model.DependencyEdge, len(g.forward))
	for _, src := range g.order {
		for _, e := range g.forward[src] {
			g.reverse[e.Target] = append(g.reverse[e.Target], e)
		}
	}
	return g
}

// Nodes returns every file in the graph, sorted.
func (g *Graph) Nodes() []string {
	return g.order
}

// Has reports whether path is a node.
func (g *Graph) Has(path string) bool {
	_, ok := g.nodes[path]
	return ok
}

// Forward returns the files path depends on, in import order.
func (g *Graph) Forward(path string) []model.DependencyEdge {
	return g.forward[path]
}

// Reverse returns the edges pointing at path. Each edge keeps its original
// orientation, so Source is the dependent file.
func (g *Graph) Reverse(path string) []model.DependencyEdge {
	return g.reverse[path]
}

// Edges returns all edges ordered by source then import order.
func (g *Graph) Edges() []model.DependencyEdge {
	var out []model.DependencyEdge
	for _, src := range g.order {
		out = append(out, g.forward[src]...)
	}
	return out
}

// EdgeCount returns the number of forward edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, edges := range g.forward {
		n += len(edges)
	}
	return n
}

// HasCycle reports whether any path in the graph revisits a node that is
// still on the current DFS path.
func (g *Graph) HasCycle() bool {
	found := false
	g.walkCycles(func([]string) bool {
		found = true
		return false
	})
	return found
}

// Cycles lists the nodes of each cycle reached by a back edge. Each cycle
// is rotated to start at its smallest path.
func (g *Graph) Cycles() [][]string {
	var cycles [][]string
	g.walkCycles(func(cycle []string) bool {
		cycles = append(cycles, rotate(cycle))
		return true
	})
	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i][0] < cycles[j][0] ||
			(cycles[i][0] == cycles[j][0] && len(cycles[i]) < len(cycles[j]))
	})
	return cycles
}

const (
	unvisited = iota
	onPath
	done
)

// walkCycles runs an iterative DFS over every node and calls visit with the
// path segment of each back edge. visit returns false to stop the walk.
func (g *Graph) walkCycles(visit func(cycle []string) bool) {
	state := make(map[string]int, len(g.order))

	type frame struct {
		node string
		next int
	}

	for _, start := range g.order {
		if state[start] != unvisited {
			continue
		}
		stack := []frame{{node: start}}
		path := []string{start}
		state[start] = onPath

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			edges := g.forward[top.node]
			if top.next >= len(edges) {
				state[top.node] = done
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				continue
			}
			target := edges[top.next].Target
			top.next++

			switch state[target] {
			case onPath:
				idx := len(path) - 1
				for idx >= 0 && path[idx] != target {
					idx--
				}
				cycle := make([]string, len(path)-idx)
				copy(cycle, path[idx:])
				if !visit(cycle) {
					return
				}
			case unvisited:
				state[target] = onPath
				stack = append(stack, frame{node: target})
				path = append(path, target)
			}
		}
	}
}

func rotate(cycle []string) []string {
	minIdx := 0
	for i, n := range cycle {
		if n < cycle[minIdx] {
			minIdx = i
		}
	}
	return append(append([]string{}, cycle[minIdx:]...), cycle[:minIdx]...)
}

// Top returns the subgraph of the n most central files and the edges among
// them. If n is <= 0 or covers every node, g is returned.
func (g *Graph) Top(n int) *Graph {
	if n <= 0 || n >= len(g.order) {
		return g
	}
	ranks := g.Centrality()
	ranked := append([]string(nil), g.order...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranks[ranked[i]] > ranks[ranked[j]] })

	keep := make(map[string]struct{}, n)
	out := New()
	for _, p := range ranked[:n] {
		keep[p] = struct{}{}
		out.AddNode(p)
	}
	for _, p := range ranked[:n] {
		for _, e := range g.forward[p] {
			if _, ok := keep[e.Target]; ok {
				out.AddEdge(e)
			}
		}
	}
	return out.Seal()
}

// Centrality computes PageRank over the resolved edges. Files that many
// others depend on score highest.
func (g *Graph) Centrality() map[string]float64 {
	if len(g.order) == 0 {
		return nil
	}

	outEdges := make(map[string][]string)
	outDegree := make(map[string]int)
	for src, edges := range g.forward {
		for _, e := range edges {
			outEdges[src] = append(outEdges[src], e.Target)
			outDegree[src]++
		}
	}

	if len(outEdges) == 0 {
		uniform := 1.0 / float64(len(g.order))
		ranks := make(map[string]float64, len(g.order))
		for _, n := range g.order {
			ranks[n] = uniform
		}
		return ranks
	}

	return pageRank(g.nodes, outEdges, outDegree, 0.85, 100, 1e-6)
}

func pageRank(
	nodes map[string]struct{},
	outEdges map[string][]string,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	if n == 0 {
		return nil
	}

	rank := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for node := range nodes {
		rank[node] = initial
	}

	teleport := (1.0 - alpha) / float64(n)

	for iter := 0; iter < maxIter; iter++ {
		newRank := make(map[string]float64, n)

		// Dangling node contribution (nodes with no outgoing edges)
		var danglingSum float64
		for node := range nodes {
			if outDegree[node] == 0 {
				danglingSum += rank[node]
			}
		}
		danglingContrib := alpha * danglingSum / float64(n)

		for node := range nodes {
			newRank[node] = teleport + danglingContrib
		}

		for src, targets := range outEdges {
			contrib := alpha * rank[src] / float64(outDegree[src])
			for _, tgt := range targets {
				newRank[tgt] += contrib
			}
		}

		var diff float64
		for node := range nodes {
			diff += math.Abs(newRank[node] - rank[node])
		}

		rank = newRank

		if diff < tol {
			break
		}
	}

	return rank
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
