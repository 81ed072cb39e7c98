package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleJourney() map[string]any {
	return map[string]any{
		"type":  "journey",
		"code":  "onboarding",
		"title": "Onboarding",
		"steps": []any{
			map[string]any{
				"type": "step",
				"path": "welcome/:userId",
				"blocks": []any{
					map[string]any{
						"type":         "block",
						"blockType":    "field",
						"code":         "name",
						"defaultValue": "Anonymous",
					},
					map[string]any{
						"type":      "block",
						"blockType": "basic",
						"variant":   "heading",
					},
				},
			},
		},
	}
}

func TestCompile_RegistersStructureNodesAndPseudos(t *testing.T) {
	result, err := Compile(sampleJourney())
	require.NoError(t, err)

	require.Equal(t, KindJourney, result.Root.Kind)

	nodes := result.Nodes.All()
	var journeys, steps, blocks int
	for _, n := range nodes {
		switch n.Kind {
		case KindJourney:
			journeys++
		case KindStep:
			steps++
		case KindBlock:
			blocks++
		}
	}
	assert.Equal(t, 1, journeys)
	assert.Equal(t, 1, steps)
	assert.Equal(t, 2, blocks)

	_, ok := result.Pseudos.Lookup(PseudoAnswer, "name")
	assert.True(t, ok, "field block must contribute an ANSWER pseudo")
	_, ok = result.Pseudos.Lookup(PseudoPost, "name")
	assert.True(t, ok, "field block must contribute a POST pseudo")
	_, ok = result.Pseudos.Lookup(PseudoAnswerLocal, "name")
	assert.True(t, ok, "field block must contribute an ANSWER_LOCAL pseudo so the REFERENCE handler's dynamic switch has somewhere to resolve to")
	_, ok = result.Pseudos.Lookup(PseudoParams, "userId")
	assert.True(t, ok, "a :userId path segment must contribute a PARAMS pseudo")
}

func TestCompile_MissingStepsIsASchemaViolation(t *testing.T) {
	doc := map[string]any{"type": "journey", "code": "x", "title": "X"}
	_, err := Compile(doc)
	require.Error(t, err)
	ce, ok := err.(interface{ HasIssues() bool })
	require.True(t, ok)
	assert.True(t, ce.HasIssues())
}

func stepNode(t *testing.T, result *CompileResult) *Node {
	t.Helper()
	items := result.Root.Props.List("steps")
	require.Len(t, items, 1)
	require.True(t, items[0].IsChild)
	return items[0].Child
}

func TestStepFieldInfo_CollectsFieldDefaultAcrossNestedBlocks(t *testing.T) {
	result, err := Compile(sampleJourney())
	require.NoError(t, err)

	step := stepNode(t, result)
	fields := StepFieldInfo(step)

	info, ok := fields["name"]
	require.True(t, ok)
	assert.True(t, info.HasDefault)
	assert.Equal(t, "Anonymous", info.DefaultLiteral)
	assert.Nil(t, info.DefaultNode)
	assert.Nil(t, info.FormatPipeline)

	// the "basic" block carries no code and must not appear.
	assert.NotContains(t, fields, "")
}

func TestDeriveStepMetadata_MarksAncestryAndDescendantsOnlyForTarget(t *testing.T) {
	result, err := Compile(sampleJourney())
	require.NoError(t, err)

	step := stepNode(t, result)
	overlay := DeriveStepMetadata(result.Metadata, result.Root, step.ID)

	journeyMD := overlay.Get(result.Root.ID)
	require.NotNil(t, journeyMD)
	assert.True(t, journeyMD.IsAncestorOfStep)
	assert.False(t, journeyMD.IsCurrentStep)

	stepMD := overlay.Get(step.ID)
	require.NotNil(t, stepMD)
	assert.True(t, stepMD.IsCurrentStep)
	assert.Equal(t, result.Root.ID, stepMD.AttachedToParentNode)

	blockItems := step.Props.List("blocks")
	require.Len(t, blockItems, 2)
	blockMD := overlay.Get(blockItems[0].Child.ID)
	require.NotNil(t, blockMD)
	assert.True(t, blockMD.IsDescendantOfStep)
	assert.Equal(t, step.ID, blockMD.AttachedToParentNode)
	assert.Equal(t, "blocks", blockMD.AttachedToParentProperty)
	assert.Equal(t, 0, blockMD.AttachedToParentIndex)

	// the base registry (pre-overlay) must be untouched by the per-request pass.
	baseStepMD := result.Metadata.Get(step.ID)
	require.NotNil(t, baseStepMD)
	assert.False(t, baseStepMD.IsCurrentStep)
}
