// Package dag provides a small directed acyclic graph used to describe how
// pipeline steps read and write table columns.
//
// Nodes keep insertion order, so every listing and the topological order are
// deterministic and follow the order the graph was built in.
package dag

import (
	"fmt"
	"slices"
)

// Node is a vertex in the graph.
type Node struct {
	// ID is unique within the graph.
	ID string
	// Kind tags the node, e.g. "step" or "column".
	Kind string
	// Data holds arbitrary node data.
	Data any
}

// Graph is a directed graph with insertion-ordered nodes.
type Graph struct {
	order   []string
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children
	parents map[string][]string // child -> parents
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node, or updates kind and data of an existing one.
func (g *Graph) AddNode(id, kind string, data any) {
	if n, ok := g.nodes[id]; ok {
		n.Kind = kind
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Kind: kind, Data: data}
	g.order = append(g.order, id)
}

// AddEdge adds a directed edge; child depends on parent.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, ok := g.nodes[parentID]; !ok {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, ok := g.nodes[childID]; !ok {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// NodesOfKind returns the nodes with the given kind in insertion order.
func (g *Graph) NodesOfKind(kind string) []*Node {
	var out []*Node
	for _, id := range g.order {
		if n := g.nodes[id]; n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Parents returns the direct dependencies of a node.
func (g *Graph) Parents(id string) []string { return g.parents[id] }

// Children returns the direct dependents of a node.
func (g *Graph) Children(id string) []string { return g.edges[id] }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, children := range g.edges {
		n += len(children)
	}
	return n
}

// HasCycle reports whether the graph has a cycle and, if so, one cycle path
// starting and ending at the same node.
func (g *Graph) HasCycle() (bool, []string) {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = active
		stack = append(stack, id)
		for _, child := range g.edges[id] {
			switch state[child] {
			case active:
				start := slices.Index(stack, child)
				cycle = append(slices.Clone(stack[start:]), child)
				return true
			case unvisited:
				if dfs(child) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range g.order {
		if state[id] == unvisited && dfs(id) {
			return true, cycle
		}
	}
	return false, nil
}

// TopologicalSort returns nodes with dependencies before dependents. Among
// nodes whose dependencies are satisfied, insertion order wins.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if cyclic, path := g.HasCycle(); cyclic {
		return nil, fmt.Errorf("cycle detected: %v", path)
	}

	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.parents[id])
	}

	out := make([]*Node, 0, len(g.nodes))
	emitted := make(map[string]bool, len(g.nodes))
	for len(out) < len(g.order) {
		for _, id := range g.order {
			if emitted[id] || indegree[id] > 0 {
				continue
			}
			emitted[id] = true
			out = append(out, g.nodes[id])
			for _, child := range g.edges[id] {
				indegree[child]--
			}
			break
		}
	}
	return out, nil
}

// Downstream returns every node reachable from the given nodes, excluding
// them, in insertion order.
func (g *Graph) Downstream(ids ...string) []string {
	return g.reach(ids, g.edges)
}

// Upstream returns every node the given nodes transitively depend on,
// excluding them, in insertion order.
func (g *Graph) Upstream(ids ...string) []string {
	return g.reach(ids, g.parents)
}

func (g *Graph) reach(ids []string, next map[string][]string) []string {
	seen := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		for _, n := range next[id] {
			if !seen[n] {
				seen[n] = true
				walk(n)
			}
		}
	}
	for _, id := range ids {
		walk(id)
	}
	for _, id := range ids {
		delete(seen, id)
	}

	var out []string
	for _, id := range g.order {
		if seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// Roots returns nodes without parents in insertion order.
func (g *Graph) Roots() []string {
	var out []string
	for _, id := range g.order {
		if len(g.parents[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Leaves returns nodes without children in insertion order.
func (g *Graph) Leaves() []string {
	var out []string
	for _, id := range g.order {
		if len(g.edges[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}
