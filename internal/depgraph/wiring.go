package depgraph

import (
	"github.com/relayform/journeyengine/internal/ast"
)

// Build walks a compiled AST and wires its DATA_FLOW dependency graph: every
// child relationship recorded in a node's PropertyMap becomes an edge from
// the child to its parent (the child must resolve first), and every
// REFERENCE node gets an additional edge from the pseudo node its path
// resolves to. This is deliberately the only place that knows the edge
// contract — every other pass reuses ast.Walk without caring what "depends
// on" means for a given node kind.
func Build(root *ast.Node, pseudos *ast.PseudoRegistry) *Graph {
	g := NewGraph()
	v := &wiringVisitor{graph: g, pseudos: pseudos}
	ast.Walk(root, v)
	return g
}

type wiringVisitor struct {
	graph   *Graph
	pseudos *ast.PseudoRegistry
	stack   []*ast.Node
}

func (v *wiringVisitor) EnterNode(n *ast.Node, ctx *ast.TraversalContext) ast.VisitResult {
	v.graph.ensureNode(n.ID)

	if len(v.stack) > 0 && len(ctx.Path) > 0 {
		parent := v.stack[len(v.stack)-1]
		seg := ctx.Path[len(ctx.Path)-1]
		v.graph.AddEdge(n.ID, parent.ID, seg.Property, seg.Index)
	}

	if n.Kind == ast.KindReference {
		if raw, ok := n.Props.Literal("path"); ok {
			if path, ok := raw.([]string); ok && len(path) >= 2 {
				if kind, ok := ast.PseudoForReferenceType(path[0]); ok {
					if pseudo, ok := v.pseudos.Lookup(kind, path[1]); ok {
						v.graph.AddEdge(pseudo.ID, n.ID, "path", -1)
					}
				}
			}
		}
	}

	v.stack = append(v.stack, n)
	return ast.Continue
}

func (v *wiringVisitor) ExitNode(n *ast.Node, ctx *ast.TraversalContext) {
	v.stack = v.stack[:len(v.stack)-1]
}
