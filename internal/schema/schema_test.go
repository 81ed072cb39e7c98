package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayform/journeyengine/internal/ast"
	"github.com/relayform/journeyengine/internal/depgraph"
	"github.com/relayform/journeyengine/pkg/errs"
)

func validJourney() map[string]any {
	return map[string]any{
		"type": "journey", "code": "j", "title": "J",
		"steps": []any{
			map[string]any{
				"type": "step", "path": "step1",
				"blocks": []any{
					map[string]any{"type": "block", "blockType": "field", "code": "name"},
				},
			},
		},
	}
}

func TestCheckDocument_AcceptsValidJourney(t *testing.T) {
	issues := CheckDocument(validJourney())
	assert.False(t, issues.HasIssues(), "%v", issues.Issues)
}

func TestCheckDocument_RejectsMissingJourneyCode(t *testing.T) {
	doc := validJourney()
	delete(doc, "code")
	issues := CheckDocument(doc)
	require.True(t, issues.HasIssues())
	assert.Equal(t, errs.SchemaViolation, issues.Issues[0].Kind())
}

func TestCheckDocument_RejectsUnrecognizedDiscriminator(t *testing.T) {
	issues := CheckDocument(map[string]any{"type": "spaceship"})
	require.True(t, issues.HasIssues())
}

func TestCheckDocument_RejectsBadBlockType(t *testing.T) {
	doc := validJourney()
	blocks := doc["steps"].([]any)[0].(map[string]any)["blocks"].([]any)
	blocks[0].(map[string]any)["blockType"] = "weird"
	issues := CheckDocument(doc)
	require.True(t, issues.HasIssues())
}

func TestCheckDocument_ValidatesIterateMode(t *testing.T) {
	doc := map[string]any{
		"type": "Iterate", "input": map[string]any{"type": "Reference", "path": []any{"answers", "x"}}, "mode": "SOMETHING_ELSE",
	}
	issues := CheckDocument(doc)
	require.True(t, issues.HasIssues())
}

func TestCheckSerializability_AcceptsAcyclicGraph(t *testing.T) {
	result, err := ast.Compile(validJourney())
	require.NoError(t, err)
	graph := depgraph.Build(result.Root, result.Pseudos)
	assert.NoError(t, CheckSerializability(graph))
}

func TestCheckSerializability_RejectsCycle(t *testing.T) {
	g := depgraph.NewGraph()
	g.AddEdge("a", "b", "x", -1)
	g.AddEdge("b", "a", "y", -1)
	assert.Error(t, CheckSerializability(g))
}

func TestCheckRawSerializability_AcceptsPlainJSONShapes(t *testing.T) {
	doc := map[string]any{
		"a": 1.0, "b": "s", "c": true, "d": nil,
		"e": []any{1.0, "x", map[string]any{"f": 2.0}},
	}
	assert.NoError(t, CheckRawSerializability(doc))
}

func TestCheckRawSerializability_RejectsUnsupportedLeafType(t *testing.T) {
	doc := map[string]any{"fn": func() {}}
	err := CheckRawSerializability(doc)
	require.Error(t, err)
	ne, ok := err.(*errs.NodeError)
	require.True(t, ok)
	assert.Equal(t, errs.SerializationFailed, ne.Kind())
}

func TestCheckRawSerializability_RejectsCircularMap(t *testing.T) {
	cyclic := map[string]any{"name": "loop"}
	cyclic["self"] = cyclic
	err := CheckRawSerializability(cyclic)
	require.Error(t, err)
	assert.Equal(t, errs.SerializationFailed, err.(*errs.NodeError).Kind())
}

func TestCheckRawSerializability_RejectsCircularSlice(t *testing.T) {
	cyclic := make([]any, 1)
	cyclic[0] = cyclic
	err := CheckRawSerializability(map[string]any{"items": cyclic})
	require.Error(t, err)
	assert.Equal(t, errs.SerializationFailed, err.(*errs.NodeError).Kind())
}
