package transition

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayform/journeyengine/internal/ast"
	"github.com/relayform/journeyengine/internal/depgraph"
	"github.com/relayform/journeyengine/internal/fnregistry"
	"github.com/relayform/journeyengine/internal/thunk"
)

func init() {
	_ = fnregistry.Register(fnregistry.Entry{
		Name: "transitionTestMarkVisited", Type: fnregistry.Effect, Arity: 0,
		Fn: fnregistry.EffectFunc(func(_ context.Context, ectx fnregistry.EffectCtx, _ []any) (any, error) {
			ectx.SetData("visited", ectx.TransitionType())
			return nil, nil
		}),
	})
	_ = fnregistry.Register(fnregistry.Entry{
		Name: "transitionTestAlwaysFail", Type: fnregistry.Effect, Arity: 0,
		Fn: fnregistry.EffectFunc(func(context.Context, fnregistry.EffectCtx, []any) (any, error) {
			return nil, fmt.Errorf("boom")
		}),
	})
}

// fakeSource is a minimal in-memory thunk.PseudoSource for tests.
type fakeSource struct {
	answers map[string]any
	data    map[string]any
	query   map[string]any
	params  map[string]any
	post    map[string]any
}

func newFakeSource() *fakeSource {
	return &fakeSource{answers: map[string]any{}, data: map[string]any{}, query: map[string]any{}, params: map[string]any{}, post: map[string]any{}}
}
func (f *fakeSource) Answer(code string) (any, bool) { v, ok := f.answers[code]; return v, ok }
func (f *fakeSource) Data(key string) (any, bool)    { v, ok := f.data[key]; return v, ok }
func (f *fakeSource) Query(key string) (any, bool)   { v, ok := f.query[key]; return v, ok }
func (f *fakeSource) Param(key string) (any, bool)   { v, ok := f.params[key]; return v, ok }
func (f *fakeSource) Post(key string) (any, bool)    { v, ok := f.post[key]; return v, ok }

// fakeEffectCtx wraps an EvalContext to satisfy fnregistry.EffectCtx, mirroring
// how the embedding application would thread its own handle through.
type fakeEffectCtx struct{ e *thunk.EvalContext }

func (f fakeEffectCtx) TransitionType() string                { return f.e.TransitionType() }
func (f fakeEffectCtx) GetAnswer(code string) (any, bool)      { return f.e.GetAnswer(code) }
func (f fakeEffectCtx) SetAnswer(code string, value any)       { f.e.SetAnswer(code, value) }
func (f fakeEffectCtx) GetData(key string) (any, bool)         { return f.e.GetData(key) }
func (f fakeEffectCtx) SetData(key string, value any)          { f.e.SetData(key, value) }
func (f fakeEffectCtx) GetRequestParam(key string) (string, bool) { return f.e.GetRequestParam(key) }
func (f fakeEffectCtx) GetSession(key string) (any, bool)      { return f.e.GetSession(key) }
func (f fakeEffectCtx) SetSession(key string, value any)       { f.e.SetSession(key, value) }

func compileAndWire(t *testing.T, doc map[string]any) (*ast.CompileResult, *thunk.EvalContext, *fakeSource) {
	t.Helper()
	result, err := ast.Compile(doc)
	require.NoError(t, err)
	graph := depgraph.Build(result.Root, result.Pseudos)
	source := newFakeSource()
	e := thunk.NewEvalContext(context.Background(), result.Root, result.Nodes, result.Pseudos, result.Metadata, graph, result.Gen, source)
	return result, e, source
}

func conditionNode(name string, args ...any) map[string]any {
	return map[string]any{"type": "Function", "FunctionType": "Condition", "name": name, "arguments": args}
}

// TestAccessTransition_DenialStopsLifecycle mirrors spec.md §8 scenario 5: a
// truthy NOT(isAuthenticated)-shaped predicate redirects and the lifecycle
// must not proceed to the step's onAction/onSubmission phases.
func TestAccessTransition_DenialStopsLifecycle(t *testing.T) {
	doc := map[string]any{
		"type": "journey", "code": "j", "title": "J",
		"steps": []any{
			map[string]any{
				"type": "step", "path": "secure",
				"onAccess": []any{
					map[string]any{
						"TransitionType": "Access",
						"when":           map[string]any{"LogicType": "Not", "operand": conditionNode("equals", true, false)},
						"next": []any{
							map[string]any{"type": "Next", "goto": "/login"},
						},
					},
				},
			},
		},
	}
	result, e, _ := compileAndWire(t, doc)
	step := result.Root.Props.List("steps")[0].Child

	outcome, failures, err := Run(context.Background(), e, nil, step, Request{Kind: "access"}, fakeEffectCtx{e})
	require.NoError(t, err)
	assert.Nil(t, failures)
	assert.Equal(t, OutcomeRedirect, outcome.Kind)
	assert.Equal(t, "/login", outcome.Goto)
}

func TestAccessTransition_ContinuesWhenGuardFalse(t *testing.T) {
	doc := map[string]any{
		"type": "journey", "code": "j", "title": "J",
		"steps": []any{
			map[string]any{
				"type": "step", "path": "secure",
				"onAccess": []any{
					map[string]any{
						"TransitionType": "Access",
						"when":           conditionNode("equals", true, false),
						"next":           []any{map[string]any{"type": "Next", "goto": "/login"}},
					},
				},
			},
		},
	}
	result, e, _ := compileAndWire(t, doc)
	step := result.Root.Props.List("steps")[0].Child

	outcome, _, err := Run(context.Background(), e, nil, step, Request{Kind: "access"}, fakeEffectCtx{e})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, outcome.Kind)
}

func TestSubmitTransition_ValidPathRunsOnValidEffectsAndNext(t *testing.T) {
	doc := map[string]any{
		"type": "journey", "code": "j", "title": "J",
		"steps": []any{
			map[string]any{
				"type": "step", "path": "form",
				"blocks": []any{
					map[string]any{"type": "block", "blockType": "field", "code": "email"},
				},
				"onSubmission": map[string]any{
					"TransitionType": "Submit",
					"validate":       true,
					"onValid": map[string]any{
						"effects": []any{map[string]any{"type": "Function", "FunctionType": "Effect", "name": "transitionTestMarkVisited"}},
						"next":    []any{map[string]any{"type": "Next", "goto": "/done"}},
					},
					"onInvalid": map[string]any{
						"next": []any{map[string]any{"type": "Next", "goto": "/retry"}},
					},
				},
			},
		},
	}
	result, e, source := compileAndWire(t, doc)
	step := result.Root.Props.List("steps")[0].Child
	source.answers["email"] = "a@b.io"

	outcome, failures, err := Run(context.Background(), e, nil, step, Request{Kind: "submit"}, fakeEffectCtx{e})
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, OutcomeRedirect, outcome.Kind)
	assert.Equal(t, "/done", outcome.Goto)

	visited, ok := e.GetData("visited")
	require.True(t, ok)
	assert.Equal(t, "submit", visited)
}

func TestSubmitTransition_InvalidPathRunsOnInvalidNext(t *testing.T) {
	doc := map[string]any{
		"type": "journey", "code": "j", "title": "J",
		"steps": []any{
			map[string]any{
				"type": "step", "path": "form",
				"blocks": []any{
					map[string]any{
						"type": "block", "blockType": "field", "code": "email",
						"validate": []any{
							map[string]any{"type": "Validation", "condition": conditionNode("notEmpty", map[string]any{"type": "Reference", "path": []any{"post", "email"}}), "message": "required"},
						},
					},
				},
				"onSubmission": map[string]any{
					"TransitionType": "Submit",
					"validate":       true,
					"onValid":        map[string]any{"next": []any{map[string]any{"type": "Next", "goto": "/done"}}},
					"onInvalid":      map[string]any{"next": []any{map[string]any{"type": "Next", "goto": "/retry"}}},
				},
			},
		},
	}
	result, e, _ := compileAndWire(t, doc)
	step := result.Root.Props.List("steps")[0].Child
	e.Post = map[string]any{}

	outcome, failures, err := Run(context.Background(), e, nil, step, Request{Kind: "submit"}, fakeEffectCtx{e})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "required", failures[0].Message)
	assert.Equal(t, OutcomeRedirect, outcome.Kind)
	assert.Equal(t, "/retry", outcome.Goto)
}

func TestActionTransition_OnlyMatchingNamedActionFires(t *testing.T) {
	doc := map[string]any{
		"type": "journey", "code": "j", "title": "J",
		"steps": []any{
			map[string]any{
				"type": "step", "path": "form",
				"onAction": []any{
					map[string]any{
						"TransitionType": "Action", "name": "save",
						"effects": []any{map[string]any{"type": "Function", "FunctionType": "Effect", "name": "transitionTestMarkVisited"}},
					},
					map[string]any{
						"TransitionType": "Action", "name": "delete",
						"effects": []any{map[string]any{"type": "Function", "FunctionType": "Effect", "name": "transitionTestAlwaysFail"}},
					},
				},
			},
		},
	}
	result, e, _ := compileAndWire(t, doc)
	step := result.Root.Props.List("steps")[0].Child

	outcome, _, err := Run(context.Background(), e, nil, step, Request{Kind: "action", ActionName: "save"}, fakeEffectCtx{e})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, outcome.Kind)
	v, ok := e.GetData("visited")
	require.True(t, ok)
	assert.Equal(t, "action", v)
}

func TestAccessTransition_EffectFailureAborts(t *testing.T) {
	doc := map[string]any{
		"type": "journey", "code": "j", "title": "J",
		"steps": []any{
			map[string]any{
				"type": "step", "path": "form",
				"onAccess": []any{
					map[string]any{
						"TransitionType": "Access",
						"effects":        []any{map[string]any{"type": "Function", "FunctionType": "Effect", "name": "transitionTestAlwaysFail"}},
					},
				},
			},
		},
	}
	result, e, _ := compileAndWire(t, doc)
	step := result.Root.Props.List("steps")[0].Child

	_, _, err := Run(context.Background(), e, nil, step, Request{Kind: "access"}, fakeEffectCtx{e})
	require.Error(t, err)
}

func TestAccessTransition_OuterJourneyRunsBeforeStep(t *testing.T) {
	doc := map[string]any{
		"type": "journey", "code": "outer", "title": "Outer",
		"onAccess": []any{
			map[string]any{
				"TransitionType": "Access",
				"next":           []any{map[string]any{"type": "Next", "goto": "/outer-redirect"}},
			},
		},
		"steps": []any{
			map[string]any{
				"type": "step", "path": "inner",
				"onAccess": []any{
					map[string]any{
						"TransitionType": "Access",
						"next":           []any{map[string]any{"type": "Next", "goto": "/inner-redirect"}},
					},
				},
			},
		},
	}
	result, e, _ := compileAndWire(t, doc)
	step := result.Root.Props.List("steps")[0].Child

	outcome, _, err := Run(context.Background(), e, []*ast.Node{result.Root}, step, Request{Kind: "access"}, fakeEffectCtx{e})
	require.NoError(t, err)
	assert.Equal(t, "/outer-redirect", outcome.Goto)
}
