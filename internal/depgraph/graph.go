// Package depgraph builds the DATA_FLOW dependency graph over a compiled
// AST: which nodes must be evaluated before a given node can be evaluated,
// and the topological order the thunk engine schedules them in.
package depgraph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/relayform/journeyengine/internal/ast"
	"github.com/relayform/journeyengine/pkg/errs"
)

// EdgeKind names the single edge kind the graph carries today. Kept as a
// type, not a bare string, so a second kind (e.g. CONTROL_FLOW) can be added
// without changing every call site.
type EdgeKind string

// DataFlow is the only edge kind: "from" must be evaluated before "to" can
// read its value.
const DataFlow EdgeKind = "DATA_FLOW"

// Edge records one dependency: From must resolve before To, plus where in
// To's declaration the dependency was declared.
type Edge struct {
	Kind     EdgeKind
	From     ast.ID
	To       ast.ID
	Property string
	Index    int // -1 when the property is not a list entry
}

// Graph is the dependency graph over one compiled AST (plus whatever
// pseudo nodes its REFERENCE nodes touch). It is built once per
// compilation and is read-only thereafter; per-request runtime node
// extensions get their own Graph via Extend.
type Graph struct {
	mu         sync.RWMutex
	nodes      map[ast.ID]struct{}
	dependsOn  map[ast.ID][]Edge // To -> edges naming what it depends on
	dependents map[ast.ID][]Edge // From -> edges naming what depends on it
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[ast.ID]struct{}),
		dependsOn:  make(map[ast.ID][]Edge),
		dependents: make(map[ast.ID][]Edge),
	}
}

func (g *Graph) ensureNode(id ast.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[id] = struct{}{}
}

// AddEdge records that to depends on from.
func (g *Graph) AddEdge(from, to ast.ID, property string, index int) {
	g.ensureNode(from)
	g.ensureNode(to)
	e := Edge{Kind: DataFlow, From: from, To: to, Property: property, Index: index}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dependsOn[to] = append(g.dependsOn[to], e)
	g.dependents[from] = append(g.dependents[from], e)
}

// DependsOn returns the edges describing what id must wait on.
func (g *Graph) DependsOn(id ast.ID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.dependsOn[id]...)
}

// Dependents returns the edges describing what waits on id.
func (g *Graph) Dependents(id ast.ID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.dependents[id]...)
}

// Nodes returns every node id known to the graph, sorted for determinism.
func (g *Graph) Nodes() []ast.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, string(id))
	}
	sort.Strings(out)
	ids := make([]ast.ID, len(out))
	for i, s := range out {
		ids[i] = ast.ID(s)
	}
	return ids
}

// TopologicalOrder computes an evaluation order via Kahn's algorithm: nodes
// with no unresolved dependencies first, breaking ties by ID for
// determinism. It returns a SCHEMA_VIOLATION error if the graph contains a
// cycle; schema.CheckSerializability calls it after wiring to reject cyclic
// graphs.
func (g *Graph) TopologicalOrder() ([]ast.ID, error) {
	g.mu.RLock()
	indegree := make(map[ast.ID]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.dependsOn[id])
	}
	g.mu.RUnlock()

	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, string(id))
		}
	}
	sort.Strings(queue)

	var order []ast.ID
	for len(queue) > 0 {
		id := ast.ID(queue[0])
		queue = queue[1:]
		order = append(order, id)

		var unlocked []string
		for _, e := range g.Dependents(id) {
			indegree[e.To]--
			if indegree[e.To] == 0 {
				unlocked = append(unlocked, string(e.To))
			}
		}
		sort.Strings(unlocked)
		queue = append(queue, unlocked...)
		sort.Strings(queue)
	}

	if len(order) != len(indegree) {
		return nil, errs.New(errs.SchemaViolation, "", fmt.Sprintf("cycle detected in dependency graph (%d of %d nodes ordered)", len(order), len(indegree)), nil)
	}
	return order, nil
}

// Extend returns a fresh graph seeded with copies of base's nodes and edges,
// so a request can add edges without mutating the compile-time graph.
func Extend(base *Graph) *Graph {
	g := NewGraph()
	for _, id := range base.Nodes() {
		g.ensureNode(id)
		for _, e := range base.DependsOn(id) {
			g.AddEdge(e.From, e.To, e.Property, e.Index)
		}
	}
	return g
}
