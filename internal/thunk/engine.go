// Package thunk is the lazy, memoized evaluation engine described in spec
// §4.3: given a compiled AST plus its dependency graph, it resolves any
// node's value on demand, caching each node's result for the lifetime of
// one request and dispatching to the registered handlers.Handler for the
// node's Kind.
package thunk

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/relayform/journeyengine/internal/ast"
	"github.com/relayform/journeyengine/internal/depgraph"
	"github.com/relayform/journeyengine/internal/handlers"
	"github.com/relayform/journeyengine/pkg/errs"
)

// PseudoSource answers lookups against the five external input kinds a
// pseudo node can stand in for. The embedding application implements this
// against its own answer store, session, and request shell.
type PseudoSource interface {
	Answer(code string) (any, bool)
	Data(key string) (any, bool)
	Query(key string) (any, bool)
	Param(key string) (any, bool)
	Post(key string) (any, bool)
}

type cacheState int

const (
	notStarted cacheState = iota
	inFlight
	resolved
	failed
)

type cacheEntry struct {
	state cacheState
	value handlers.Value
	err   error
}

// scopeFrame is one ITERATE iteration's bound variables: the current item's
// own fields spread alongside the reserved @index/@item/@key/@value/@type
// keys (spec §4.3.1 ITERATE step 4), consulted ahead of the persisted
// answer store for the duration of evaluating that iteration's
// yield/predicate subtree. id is a per-push sequence number identifying this
// particular frame instance, so the memoization cache can distinguish "node
// N evaluated under iteration 0's scope" from "node N evaluated under
// iteration 1's scope" even though both pushes share the same bindings keys.
type scopeFrame struct {
	id       int
	bindings map[string]any
}

// cacheKey is the memoization cache's key: a node ID plus the identity of
// the scope-frame stack active when it was resolved (spec §4.3 "The cache
// key is the node ID plus the identities of active scope frames"). Two
// resolutions of the same expression node under different ITERATE items
// carry different scope signatures and so never collide in the cache.
type cacheKey struct {
	id    ast.ID
	scope string
}

// MutationSource names where an answer's current value most recently came
// from, per the ANSWER_LOCAL precedence order in spec §4.3.2.
type MutationSource string

const (
	MutationAction    MutationSource = "action"
	MutationProcessed MutationSource = "processed"
	MutationPost      MutationSource = "post"
	MutationDefault   MutationSource = "default"
	MutationLoad      MutationSource = "load"
)

// Mutation is one entry of an answer's provenance history.
type Mutation struct {
	Value  any
	Source MutationSource
}

// EvalContext is the per-request evaluation context: request-scoped
// registry extensions, the memoization cache, the scope-frame stack, and
// the pseudo-input source. It is not safe for concurrent use by two
// request contexts sharing the same object (spec §4.6 scheduling model),
// but a single EvalContext's own invoke calls may run concurrently with
// each other when resolving independent dependencies.
type EvalContext struct {
	Ctx      context.Context
	Root     *ast.Node
	Nodes    *ast.NodeRegistry
	Pseudos  *ast.PseudoRegistry
	Metadata *ast.MetadataRegistry
	Graph    *depgraph.Graph
	Gen      *ast.IDGenerator
	Source   PseudoSource

	// Fields maps a field block's code to its compiled default/format
	// pipeline facts, used by ANSWER_LOCAL resolution steps 2 and 4, and
	// doubles as the set of field codes belonging to the step being served
	// this request: a REFERENCE with refType "answers" whose key is present
	// here resolves through ANSWER_LOCAL (the per-request fill order)
	// instead of the raw persisted ANSWER pseudo, matching spec §3's
	// "ANSWER_LOCAL ... for a field on the active step". Populate via
	// UseStep before running a request's transitions.
	Fields map[string]ast.FieldInfo
	// Post carries the current request's raw submitted values, keyed by
	// field code, consulted before the persisted answer store.
	Post map[string]any

	mu             sync.Mutex
	transitionType string
	cache          map[cacheKey]*cacheEntry
	mutations      map[string][]Mutation // per-code provenance history, source order
	loadSeeded     map[string]bool       // codes whose persisted "load" mutation has been seeded
	pendingData    map[string]any
	session        map[string]any
	scopes         []scopeFrame
	scopeSeq       int
}

// NewEvalContext builds a request-scoped evaluation context over a compiled
// AST. Nodes/Pseudos/Graph should already be request-scoped extensions
// (ast.NodeRegistry.Extend, ast.PseudoRegistry.Extend, depgraph.Extend) of
// the compile-time registries so runtime node materialization never mutates
// shared state.
func NewEvalContext(ctx context.Context, root *ast.Node, nodes *ast.NodeRegistry, pseudos *ast.PseudoRegistry, meta *ast.MetadataRegistry, graph *depgraph.Graph, gen *ast.IDGenerator, source PseudoSource) *EvalContext {
	return &EvalContext{
		Ctx:         ctx,
		Root:        root,
		Nodes:       nodes,
		Pseudos:     pseudos,
		Metadata:    meta,
		Graph:       graph,
		Gen:         gen,
		Source:      source,
		Fields:      make(map[string]ast.FieldInfo),
		cache:       make(map[cacheKey]*cacheEntry),
		mutations:   make(map[string][]Mutation),
		loadSeeded:  make(map[string]bool),
		pendingData: make(map[string]any),
		session:     make(map[string]any),
	}
}

// UseStep populates Fields from step's blocks, so ANSWER_LOCAL resolution
// and the ANSWER/ANSWER_LOCAL reference switch (spec §3) see the step being
// served this request.
func (e *EvalContext) UseStep(step *ast.Node) {
	e.Fields = ast.StepFieldInfo(step)
}

// SetTransitionType records the @transitionType the current lifecycle phase
// pushes ("access", "action", or "submit") ahead of running its effects.
func (e *EvalContext) SetTransitionType(t string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transitionType = t
}

// TransitionType implements fnregistry.EffectCtx.
func (e *EvalContext) TransitionType() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transitionType
}

// Resolve is the suspendable invoke(nodeId) primitive: it may dispatch to an
// async handler.
func (e *EvalContext) Resolve(ctx context.Context, id ast.ID) (handlers.Value, error) {
	return e.resolve(ctx, id, true)
}

// ResolveSync is invokeSync(nodeId): it is a programmer error (ENGINE_MISUSE)
// to call it on a node whose handler or transitive dependencies are async.
func (e *EvalContext) ResolveSync(id ast.ID) (handlers.Value, error) {
	return e.resolve(e.Ctx, id, false)
}

func (e *EvalContext) resolve(ctx context.Context, id ast.ID, allowAsync bool) (handlers.Value, error) {
	// Pseudo-node handlers (and, by extension, ANSWER_LOCAL's mutation-history
	// reads/writes) bypass the cache entirely, per spec §4.3: "Pseudo-node
	// handlers and handlers that mutate global.answers bypass the cache so
	// per-request ordering and provenance are observable." Re-dispatching
	// every call lets a later SetAnswer (an "action" mutation recorded by an
	// effect) be visible to the very next read of that code, rather than
	// returning a value cached before the mutation happened.
	if pseudo, ok := e.Pseudos.GetByID(id); ok {
		return e.resolvePseudo(pseudo)
	}

	key := cacheKey{id: id, scope: e.scopeSignature()}

	e.mu.Lock()
	if entry, ok := e.cache[key]; ok {
		e.mu.Unlock()
		switch entry.state {
		case resolved:
			return entry.value, nil
		case failed:
			return nil, entry.err
		case inFlight:
			return nil, errs.New(errs.EngineMisuse, string(id), "cyclic invoke detected at evaluation time", nil)
		}
	}
	entry := &cacheEntry{state: inFlight}
	e.cache[key] = entry
	e.mu.Unlock()

	value, err := e.dispatch(ctx, id, allowAsync)

	e.mu.Lock()
	if err != nil {
		entry.state, entry.err = failed, err
	} else {
		entry.state, entry.value = resolved, value
	}
	e.mu.Unlock()

	return value, err
}

// scopeSignature returns an identity string for the currently active scope
// frame stack, distinguishing "node N under no active scope" from "node N
// under iteration item 0's scope" from "node N under iteration item 1's
// scope" (spec §4.3's cache key is "the node ID plus the identities of
// active scope frames"). Each PushScope call assigns its frame a fresh
// sequence number, so two frames with identical bindings (e.g. two
// single-field iteration items) never collide.
func (e *EvalContext) scopeSignature() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.scopes) == 0 {
		return ""
	}
	var b strings.Builder
	for i, f := range e.scopes {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(strconv.Itoa(f.id))
	}
	return b.String()
}

// dispatch resolves an ordinary (non-pseudo) AST node; resolve already
// routes pseudo IDs to resolvePseudo before a cache entry is ever created for
// them, so this is only reached for registered ast.Node kinds.
func (e *EvalContext) dispatch(ctx context.Context, id ast.ID, allowAsync bool) (handlers.Value, error) {
	n, ok := e.Nodes.Get(id)
	if !ok {
		return nil, errs.New(errs.LookupFailed, string(id), "node not found in registry", nil)
	}

	h, ok := handlers.Get(n.Kind)
	if !ok {
		return nil, errs.New(errs.EngineMisuse, string(id), fmt.Sprintf("no handler registered for kind %s", n.Kind), nil)
	}

	if !allowAsync && h.IsAsync(n, e) {
		return nil, errs.New(errs.EngineMisuse, string(id), "invokeSync called on a node with async dependencies", nil)
	}

	return h.Resolve(ctx, n, e)
}

// Node implements handlers.Resolver.
func (e *EvalContext) Node(id ast.ID) (*ast.Node, bool) { return e.Nodes.Get(id) }

// Pseudo implements handlers.Resolver.
func (e *EvalContext) Pseudo(id ast.ID) (*ast.PseudoNode, bool) { return e.Pseudos.GetByID(id) }

// Metadata implements handlers.Resolver.
func (e *EvalContext) Metadata(id ast.ID) *ast.Metadata { return e.Metadata.Get(id) }

// MaterializeRuntimeNodes implements handlers.Resolver: it registers nodes
// into the request-scoped (already-extended) NodeRegistry and returns their
// IDs. Callers are responsible for constructing nodes with IDs drawn from
// e.Gen in the RuntimeAST category; the ITERATE handler does not call it and
// binds each item through PushIterationScope instead.
func (e *EvalContext) MaterializeRuntimeNodes(nodes []*ast.Node) []ast.ID {
	ids := make([]ast.ID, 0, len(nodes))
	for _, n := range nodes {
		_ = e.Nodes.Register(n)
		ids = append(ids, n.ID)
	}
	return ids
}

// PushScope installs a new ITERATE iteration's bound variables.
func (e *EvalContext) PushScope(bindings map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scopeSeq++
	e.scopes = append(e.scopes, scopeFrame{id: e.scopeSeq, bindings: bindings})
}

// PopScope removes the innermost scope frame.
func (e *EvalContext) PopScope() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.scopes) > 0 {
		e.scopes = e.scopes[:len(e.scopes)-1]
	}
}

// PushIterationScope implements handlers.scopedResolver for the ITERATE
// handler.
func (e *EvalContext) PushIterationScope(bindings map[string]any) { e.PushScope(bindings) }

// PopIterationScope implements handlers.scopedResolver.
func (e *EvalContext) PopIterationScope() { e.PopScope() }

// LookupPseudo implements handlers.pseudoLookup, letting the REFERENCE
// handler turn a (kind, key) pair back into the pseudo node's ID without
// recomputing ID-generation rules.
func (e *EvalContext) LookupPseudo(kind ast.PseudoKind, key string) (ast.ID, bool) {
	p, ok := e.Pseudos.Lookup(kind, key)
	if !ok {
		return "", false
	}
	return p.ID, true
}

// SetAnswer implements fnregistry.EffectCtx: an effect-set value is recorded
// as an "action" mutation, which ANSWER_LOCAL resolution protects from being
// clobbered by a later, empty POST (spec §9 "Answer provenance").
func (e *EvalContext) SetAnswer(code string, value any) {
	e.appendMutation(code, Mutation{Value: value, Source: MutationAction})
}

// GetAnswer implements fnregistry.EffectCtx, reading the field's current
// ANSWER_LOCAL-precedence value.
func (e *EvalContext) GetAnswer(code string) (any, bool) {
	v, err := e.resolveLocalAnswer(code)
	return v, err == nil && v != nil
}

// SetData records a value set by an effect earlier in this request.
func (e *EvalContext) SetData(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingData[key] = value
}

// GetData implements fnregistry.EffectCtx.
func (e *EvalContext) GetData(key string) (any, bool) {
	e.mu.Lock()
	if v, ok := e.pendingData[key]; ok {
		e.mu.Unlock()
		return v, true
	}
	e.mu.Unlock()
	if e.Source == nil {
		return nil, false
	}
	return e.Source.Data(key)
}

// GetRequestParam implements fnregistry.EffectCtx.
func (e *EvalContext) GetRequestParam(key string) (string, bool) {
	if e.Source == nil {
		return "", false
	}
	v, ok := e.Source.Param(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetSession implements fnregistry.EffectCtx against an in-memory
// per-request session map; the request shell's "opaque handle" (spec §6)
// is realized here as a plain map since this engine has no transport layer
// of its own to hand back a richer handle.
func (e *EvalContext) GetSession(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.session[key]
	return v, ok
}

// SetSession implements fnregistry.EffectCtx.
func (e *EvalContext) SetSession(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session[key] = value
}

func (e *EvalContext) appendMutation(code string, m Mutation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mutations[code] = append(e.mutations[code], m)
}

func (e *EvalContext) lastMutation(code string) (Mutation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	hist := e.mutations[code]
	if len(hist) == 0 {
		return Mutation{}, false
	}
	return hist[len(hist)-1], true
}

// seedLoadMutation lazily records the persisted answer store's value for
// code as a "load" mutation, the first time this request consults it, so
// step 5 of ANSWER_LOCAL resolution has something to fall back to. The load
// mutation is placed ahead of any mutation already recorded this request, so
// an earlier effect's "action" mutation stays the latest entry.
func (e *EvalContext) seedLoadMutation(code string) {
	e.mu.Lock()
	if e.loadSeeded[code] || e.Source == nil {
		e.mu.Unlock()
		return
	}
	e.loadSeeded[code] = true
	e.mu.Unlock()
	if v, ok := e.Source.Answer(code); ok {
		e.mu.Lock()
		e.mutations[code] = append([]Mutation{{Value: v, Source: MutationLoad}}, e.mutations[code]...)
		e.mu.Unlock()
	}
}

// resolveLocalAnswer implements the ANSWER_LOCAL precedence order of spec
// §4.3.2: an existing "action" mutation wins outright; otherwise try, in
// order, the field's formatPipeline, the current submission's POST value,
// the field's compiled default, and finally an existing "load" mutation
// (the persisted answer) before giving up with nil. Each attempt that
// errors is treated as "not present" and the next source is tried; only a
// newly produced value is appended to the provenance history (steps 1 and 5
// leave it untouched).
func (e *EvalContext) resolveLocalAnswer(code string) (any, error) {
	e.mu.Lock()
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if v, ok := e.scopes[i].bindings[code]; ok {
			e.mu.Unlock()
			return v, nil
		}
	}
	e.mu.Unlock()

	e.seedLoadMutation(code)

	if m, ok := e.lastMutation(code); ok && m.Source == MutationAction {
		return m.Value, nil
	}

	info, hasField := e.Fields[code]

	if hasField && info.FormatPipeline != nil {
		if v, err := e.Resolve(e.Ctx, info.FormatPipeline.ID); err == nil {
			e.appendMutation(code, Mutation{Value: v, Source: MutationProcessed})
			return v, nil
		}
	}

	if postVal, ok := e.lookupPost(code); ok {
		e.appendMutation(code, Mutation{Value: postVal, Source: MutationPost})
		return postVal, nil
	}

	if hasField && info.HasDefault {
		var v any
		var err error
		if info.DefaultNode != nil {
			v, err = e.Resolve(e.Ctx, info.DefaultNode.ID)
		} else {
			v = info.DefaultLiteral
		}
		if err == nil {
			e.appendMutation(code, Mutation{Value: v, Source: MutationDefault})
			return v, nil
		}
	}

	if m, ok := e.lastMutation(code); ok && m.Source == MutationLoad {
		return m.Value, nil
	}

	return nil, nil
}

func (e *EvalContext) lookupPost(code string) (any, bool) {
	if e.Post != nil {
		if v, ok := e.Post[code]; ok {
			return v, true
		}
	}
	if e.Source != nil {
		return e.Source.Post(code)
	}
	return nil, false
}

// IsCurrentStepAnswer reports whether code names a field on the step being
// served this request, selecting ANSWER_LOCAL over the raw ANSWER pseudo
// for a REFERENCE that names it (spec §3).
func (e *EvalContext) IsCurrentStepAnswer(code string) bool {
	_, ok := e.Fields[code]
	return ok
}

func (e *EvalContext) resolvePseudo(p *ast.PseudoNode) (handlers.Value, error) {
	switch p.Key.Kind {
	case ast.PseudoAnswerLocal:
		return e.resolveLocalAnswer(p.Key.Key)
	case ast.PseudoAnswer:
		if m, ok := e.lastMutation(p.Key.Key); ok {
			return m.Value, nil
		}
		if e.Source == nil {
			return nil, nil
		}
		v, _ := e.Source.Answer(p.Key.Key)
		return v, nil
	case ast.PseudoData:
		e.mu.Lock()
		if v, ok := e.pendingData[p.Key.Key]; ok {
			e.mu.Unlock()
			return v, nil
		}
		e.mu.Unlock()
		if e.Source == nil {
			return nil, nil
		}
		v, _ := e.Source.Data(p.Key.Key)
		return v, nil
	case ast.PseudoQuery:
		if e.Source == nil {
			return nil, nil
		}
		v, _ := e.Source.Query(p.Key.Key)
		return v, nil
	case ast.PseudoParams:
		if e.Source == nil {
			return nil, nil
		}
		v, _ := e.Source.Param(p.Key.Key)
		return v, nil
	case ast.PseudoPost:
		if e.Post != nil {
			if v, ok := e.Post[p.Key.Key]; ok {
				return v, nil
			}
		}
		if e.Source == nil {
			return nil, nil
		}
		v, _ := e.Source.Post(p.Key.Key)
		return v, nil
	default:
		return nil, errs.New(errs.EngineMisuse, string(p.ID), fmt.Sprintf("unhandled pseudo kind %s", p.Key.Kind), nil)
	}
}
