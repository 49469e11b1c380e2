// Package graph provides the directed multigraph used to model bot
// conversation flows, with capped simple-path enumeration over possibly
// cyclic graphs.
package graph

import "sort"

// Edge is a directed transition between two dialogs. Parallel edges are
// allowed; Label carries the transition condition or intent name, empty for
// unconditional transitions.
type Edge struct {
	From  string
	To    string
	Label string
}

type edge struct {
	to    int
	label string
}

// MultiGraph is an adjacency-list multigraph keyed by dialog name.
type MultiGraph struct {
	names []string
	index map[string]int
	adj   [][]edge
}

// New returns an empty graph.
func New() *MultiGraph {
	return &MultiGraph{index: map[string]int{}}
}

// AddNode registers a dialog and returns its ID. Adding twice is a no-op.
func (g *MultiGraph) AddNode(name string) int {
	if id, ok := g.index[name]; ok {
		return id
	}
	id := len(g.names)
	g.index[name] = id
	g.names = append(g.names, name)
	g.adj = append(g.adj, nil)
	return id
}

// AddEdge adds a directed labeled edge, creating endpoints as needed.
func (g *MultiGraph) AddEdge(from, to, label string) {
	u := g.AddNode(from)
	v := g.AddNode(to)
	g.adj[u] = append(g.adj[u], edge{to: v, label: label})
}

// HasNode reports whether a dialog is in the graph.
func (g *MultiGraph) HasNode(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Nodes returns all dialog names in sorted order.
func (g *MultiGraph) Nodes() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	sort.Strings(out)
	return out
}

// OutEdges returns the outgoing edges of a dialog in insertion order.
func (g *MultiGraph) OutEdges(name string) []Edge {
	u, ok := g.index[name]
	if !ok {
		return nil
	}
	out := make([]Edge, 0, len(g.adj[u]))
	for _, e := range g.adj[u] {
		out = append(out, Edge{From: name, To: g.names[e.to], Label: e.label})
	}
	return out
}

// Successors returns the distinct direct successors of a dialog, sorted.
func (g *MultiGraph) Successors(name string) []string {
	u, ok := g.index[name]
	if !ok {
		return nil
	}
	seen := map[int]bool{}
	var out []string
	for _, e := range g.adj[u] {
		if !seen[e.to] {
			seen[e.to] = true
			out = append(out, g.names[e.to])
		}
	}
	sort.Strings(out)
	return out
}

// SimplePaths enumerates simple paths (no repeated node) from one dialog to
// another, each as a sequence of dialog names including both endpoints.
// Enumeration stops after maxPaths paths so cyclic graphs terminate;
// maxPaths <= 0 means no cap.
func (g *MultiGraph) SimplePaths(from, to string, maxPaths int) [][]string {
	u, okU := g.index[from]
	v, okV := g.index[to]
	if !okU || !okV {
		return nil
	}

	var paths [][]string
	onPath := make([]bool, len(g.names))
	stack := []int{u}
	onPath[u] = true

	var dfs func(node int) bool
	dfs = func(node int) bool {
		if node == v {
			path := make([]string, len(stack))
			for i, id := range stack {
				path[i] = g.names[id]
			}
			paths = append(paths, path)
			return maxPaths > 0 && len(paths) >= maxPaths
		}
		// Visit parallel edges once per distinct successor.
		visited := map[int]bool{}
		for _, e := range g.adj[node] {
			if onPath[e.to] || visited[e.to] {
				continue
			}
			visited[e.to] = true
			onPath[e.to] = true
			stack = append(stack, e.to)
			done := dfs(e.to)
			stack = stack[:len(stack)-1]
			onPath[e.to] = false
			if done {
				return true
			}
		}
		return false
	}
	dfs(u)
	return paths
}

// Export is the persistable form of a graph.
type Export struct {
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// Export flattens the graph for JSON persistence. Nodes keep insertion
// order so FromExport rebuilds identical IDs.
func (g *MultiGraph) Export() Export {
	out := Export{Nodes: append([]string(nil), g.names...)}
	for _, name := range g.names {
		out.Edges = append(out.Edges, g.OutEdges(name)...)
	}
	return out
}

// FromExport rebuilds a graph from its persisted form.
func FromExport(e Export) *MultiGraph {
	g := New()
	for _, name := range e.Nodes {
		g.AddNode(name)
	}
	for _, edge := range e.Edges {
		g.AddEdge(edge.From, edge.To, edge.Label)
	}
	return g
}

// SimplePathExists reports whether at least one simple path connects the
// two dialogs.
func (g *MultiGraph) SimplePathExists(from, to string) bool {
	return len(g.SimplePaths(from, to, 1)) > 0
}

// TransitionConditions returns the distinct non-empty edge labels along the
// first simple path between two dialogs, in path order. These are the
// conditions a conversation must satisfy to travel from one dialog to the
// other.
func (g *MultiGraph) TransitionConditions(from, to string) []string {
	paths := g.SimplePaths(from, to, 1)
	if len(paths) == 0 {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	path := paths[0]
	for i := 0; i+1 < len(path); i++ {
		for _, e := range g.OutEdges(path[i]) {
			if e.To != path[i+1] || e.Label == "" || seen[e.Label] {
				continue
			}
			seen[e.Label] = true
			out = append(out, e.Label)
		}
	}
	return out
}

// Interior returns the union of interior nodes (endpoints excluded) over
// all simple paths from one dialog to another, sorted.
func (g *MultiGraph) Interior(from, to string, maxPaths int) []string {
	seen := map[string]bool{}
	for _, path := range g.SimplePaths(from, to, maxPaths) {
		if len(path) < 3 {
			continue
		}
		for _, name := range path[1 : len(path)-1] {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
