package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayform/journeyengine/internal/ast"
)

func TestTopologicalOrder_RespectsDependencies(t *testing.T) {
	g := NewGraph()
	a, b, c := ast.ID("a"), ast.ID("b"), ast.ID("c")
	// c depends on b, b depends on a.
	g.AddEdge(a, b, "input", -1)
	g.AddEdge(b, c, "input", -1)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []ast.ID{a, b, c}, order)
}

func TestTopologicalOrder_DeterministicTieBreakByID(t *testing.T) {
	g := NewGraph()
	// three independent roots, each with an edge into parent: the roots must
	// come back sorted, ahead of parent.
	g.AddEdge(ast.ID("z"), ast.ID("parent"), "x", 0)
	g.AddEdge(ast.ID("a"), ast.ID("parent"), "x", 1)
	g.AddEdge(ast.ID("m"), ast.ID("parent"), "x", 2)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	// a, m, z all have indegree 0 and must be emitted in sorted order
	// before parent (which depends on all three).
	assert.Equal(t, []ast.ID{"a", "m", "z", "parent"}, order)
}

func TestTopologicalOrder_DetectsCycle(t *testing.T) {
	g := NewGraph()
	g.AddEdge(ast.ID("a"), ast.ID("b"), "p", -1)
	g.AddEdge(ast.ID("b"), ast.ID("a"), "p", -1)

	_, err := g.TopologicalOrder()
	assert.Error(t, err)
}

func TestDependsOnAndDependents(t *testing.T) {
	g := NewGraph()
	g.AddEdge(ast.ID("pseudo:answer:email"), ast.ID("ref:1"), "path", -1)

	deps := g.DependsOn(ast.ID("ref:1"))
	require.Len(t, deps, 1)
	assert.Equal(t, ast.ID("pseudo:answer:email"), deps[0].From)

	dependents := g.Dependents(ast.ID("pseudo:answer:email"))
	require.Len(t, dependents, 1)
	assert.Equal(t, ast.ID("ref:1"), dependents[0].To)
}

func TestExtend_CopiesEdgesWithoutLinkingToParent(t *testing.T) {
	base := NewGraph()
	base.AddEdge(ast.ID("a"), ast.ID("b"), "input", -1)

	ext := Extend(base)
	ext.AddEdge(ast.ID("b"), ast.ID("c"), "input", -1)

	order, err := ext.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []ast.ID{"a", "b", "c"}, order)

	// base must not see the runtime-only edge.
	baseOrder, err := base.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []ast.ID{"a", "b"}, baseOrder)
}

func TestBuild_WiresStructuralAndReferenceEdges(t *testing.T) {
	result, err := ast.Compile(map[string]any{
		"type":  "journey",
		"code":  "j",
		"title": "J",
		"steps": []any{
			map[string]any{
				"type": "step",
				"path": "step1",
				"blocks": []any{
					map[string]any{
						"type":      "block",
						"blockType": "field",
						"code":      "email",
					},
				},
				"onAccess": []any{
					map[string]any{
						"TransitionType": "Access",
						"effects": []any{
							map[string]any{
								"type":         "Function",
								"FunctionType": "Effect",
								"name":         "log",
								"arguments": []any{
									map[string]any{
										"type": "Reference",
										"path": []any{"answers", "email"},
									},
								},
							},
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)

	graph := Build(result.Root, result.Pseudos)

	// find the REFERENCE node and confirm an edge from the ANSWER pseudo.
	var refID ast.ID
	for id, n := range result.Nodes.All() {
		if n.Kind == ast.KindReference {
			refID = id
		}
	}
	require.NotEmpty(t, refID)

	pseudo, ok := result.Pseudos.Lookup(ast.PseudoAnswer, "email")
	require.True(t, ok)

	deps := graph.DependsOn(refID)
	found := false
	for _, e := range deps {
		if e.From == pseudo.ID {
			found = true
		}
	}
	assert.True(t, found, "REFERENCE must depend on its pseudo node")

	// the whole thing must still be acyclic.
	_, err = graph.TopologicalOrder()
	assert.NoError(t, err)
}
