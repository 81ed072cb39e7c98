package thunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayform/journeyengine/internal/ast"
	"github.com/relayform/journeyengine/internal/depgraph"
)

// fakeSource is a minimal in-memory PseudoSource for tests.
type fakeSource struct {
	answers map[string]any
	data    map[string]any
	query   map[string]any
	params  map[string]any
	post    map[string]any
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		answers: map[string]any{},
		data:    map[string]any{},
		query:   map[string]any{},
		params:  map[string]any{},
		post:    map[string]any{},
	}
}

func (f *fakeSource) Answer(code string) (any, bool) { v, ok := f.answers[code]; return v, ok }
func (f *fakeSource) Data(key string) (any, bool)    { v, ok := f.data[key]; return v, ok }
func (f *fakeSource) Query(key string) (any, bool)   { v, ok := f.query[key]; return v, ok }
func (f *fakeSource) Param(key string) (any, bool)   { v, ok := f.params[key]; return v, ok }
func (f *fakeSource) Post(key string) (any, bool)    { v, ok := f.post[key]; return v, ok }

func newEngine(t *testing.T, doc map[string]any) (*ast.CompileResult, *EvalContext, *fakeSource) {
	t.Helper()
	result, err := ast.Compile(doc)
	require.NoError(t, err)

	graph := depgraph.Build(result.Root, result.Pseudos)
	source := newFakeSource()
	e := NewEvalContext(context.Background(), result.Root, result.Nodes, result.Pseudos, result.Metadata, graph, result.Gen, source)
	return result, e, source
}

func simpleFieldJourney() map[string]any {
	return map[string]any{
		"type":  "journey",
		"code":  "j",
		"title": "J",
		"steps": []any{
			map[string]any{
				"type": "step",
				"path": "step1",
				"blocks": []any{
					map[string]any{
						"type":         "block",
						"blockType":    "field",
						"code":         "name",
						"defaultValue": "Anonymous",
					},
				},
			},
		},
	}
}

func TestResolveLocalAnswer_DefaultWhenNothingElsePresent(t *testing.T) {
	result, e, _ := newEngine(t, simpleFieldJourney())
	step := result.Root.Props.List("steps")[0].Child
	e.UseStep(step)

	v, err := e.resolveLocalAnswer("name")
	require.NoError(t, err)
	assert.Equal(t, "Anonymous", v)
}

func TestResolveLocalAnswer_PostBeatsDefault(t *testing.T) {
	result, e, _ := newEngine(t, simpleFieldJourney())
	step := result.Root.Props.List("steps")[0].Child
	e.UseStep(step)
	e.Post = map[string]any{"name": "Alice"}

	v, err := e.resolveLocalAnswer("name")
	require.NoError(t, err)
	assert.Equal(t, "Alice", v)
}

func TestResolveLocalAnswer_ActionMutationBeatsEverything(t *testing.T) {
	result, e, _ := newEngine(t, simpleFieldJourney())
	step := result.Root.Props.List("steps")[0].Child
	e.UseStep(step)
	e.Post = map[string]any{"name": "Alice"}
	e.SetAnswer("name", "Overridden")

	v, err := e.resolveLocalAnswer("name")
	require.NoError(t, err)
	assert.Equal(t, "Overridden", v)
}

func TestResolveLocalAnswer_LoadFallsBackWhenNoOtherSource(t *testing.T) {
	doc := map[string]any{
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
						"code":      "name",
					},
				},
			},
		},
	}
	result, e, source := newEngine(t, doc)
	step := result.Root.Props.List("steps")[0].Child
	e.UseStep(step)
	source.answers["name"] = "Persisted"

	v, err := e.resolveLocalAnswer("name")
	require.NoError(t, err)
	assert.Equal(t, "Persisted", v)
}

func TestResolveLocalAnswer_ScopeFrameBeatsEverything(t *testing.T) {
	result, e, _ := newEngine(t, simpleFieldJourney())
	step := result.Root.Props.List("steps")[0].Child
	e.UseStep(step)
	e.SetAnswer("name", "Overridden")

	e.PushScope(map[string]any{"name": "FromScope"})
	v, err := e.resolveLocalAnswer("name")
	require.NoError(t, err)
	assert.Equal(t, "FromScope", v)

	e.PopScope()
	v, err = e.resolveLocalAnswer("name")
	require.NoError(t, err)
	assert.Equal(t, "Overridden", v)
}

func TestResolve_AnswerLocalSeedsLoadOncePerRequest(t *testing.T) {
	doc := map[string]any{
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
						"code":      "name",
					},
				},
			},
		},
	}
	result, e, source := newEngine(t, doc)
	step := result.Root.Props.List("steps")[0].Child
	e.UseStep(step)
	source.answers["name"] = "Persisted"

	pseudo, ok := result.Pseudos.Lookup(ast.PseudoAnswerLocal, "name")
	require.True(t, ok)

	v1, err := e.Resolve(context.Background(), pseudo.ID)
	require.NoError(t, err)
	assert.Equal(t, "Persisted", v1)

	// mutate the backing source; pseudo nodes are not cached, but the
	// persisted answer was recorded as a load mutation on the first read and
	// is not re-read, so the result must not change.
	source.answers["name"] = "Changed"
	v2, err := e.Resolve(context.Background(), pseudo.ID)
	require.NoError(t, err)
	assert.Equal(t, "Persisted", v2)
}

// iterateMapJourney builds a journey with one step (field "score", so
// ANSWER_LOCAL resolution for it checks the active scope frame first) and an
// ITERATE/MAP node whose input reads data key "items" and whose yield is a
// FORMAT node (an ordinary, cacheable AST node, not a pseudo) templating the
// per-item "score" field. Because the same FORMAT node ID is resolved once
// per iteration item, this is the exact shape spec §8 scenario 4 and
// iterateHandler (internal/handlers/control.go) exercise against a real,
// memoizing EvalContext rather than handlers_test.go's non-memoizing fake.
func iterateMapJourney() map[string]any {
	return map[string]any{
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
						"code":      "score",
					},
					map[string]any{
						"type":      "block",
						"blockType": "field",
						"code":      "scores",
						"defaultValue": map[string]any{
							"type": "Iterate",
							"mode": "MAP",
							"input": map[string]any{
								"type": "Reference",
								"path": []any{"data", "items"},
							},
							"yield": map[string]any{
								"type":     "Format",
								"template": "score:%v",
								"arguments": []any{
									map[string]any{
										"type": "Reference",
										"path": []any{"answers", "score"},
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

func TestResolve_IterateMap_DoesNotMemoizeAcrossIterationItems(t *testing.T) {
	result, e, source := newEngine(t, iterateMapJourney())
	step := result.Root.Props.List("steps")[0].Child
	e.UseStep(step)
	source.data["items"] = []any{
		map[string]any{"score": 1},
		map[string]any{"score": 2},
		map[string]any{"score": 3},
	}

	var iterateNode *ast.Node
	for _, n := range result.Nodes.All() {
		if n.Kind == ast.KindIterate {
			iterateNode = n
			break
		}
	}
	require.NotNil(t, iterateNode, "journey must compile an ITERATE node")

	v, err := e.Resolve(context.Background(), iterateNode.ID)
	require.NoError(t, err)

	got, ok := v.([]any)
	require.True(t, ok, "MAP must return a slice, got %T", v)
	require.Len(t, got, 3)
	assert.Equal(t, []any{"score:1", "score:2", "score:3"}, got)
}

func TestEffectCtx_DataAndSessionRoundTrip(t *testing.T) {
	_, e, source := newEngine(t, simpleFieldJourney())
	source.data["k"] = "fromSource"

	v, ok := e.GetData("k")
	require.True(t, ok)
	assert.Equal(t, "fromSource", v)

	e.SetData("k", "overridden")
	v, ok = e.GetData("k")
	require.True(t, ok)
	assert.Equal(t, "overridden", v)

	_, ok = e.GetSession("missing")
	assert.False(t, ok)
	e.SetSession("token", "abc")
	v, ok = e.GetSession("token")
	require.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestTransitionType_SetAndGet(t *testing.T) {
	_, e, _ := newEngine(t, simpleFieldJourney())
	assert.Equal(t, "", e.TransitionType())
	e.SetTransitionType("action")
	assert.Equal(t, "action", e.TransitionType())
}
