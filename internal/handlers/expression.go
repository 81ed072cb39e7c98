package handlers

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/relayform/journeyengine/internal/ast"
	"github.com/relayform/journeyengine/internal/fnregistry"
	"github.com/relayform/journeyengine/pkg/errs"
)

func init() {
	must(Register(referenceHandler{}))
	must(Register(formatHandler{}))
	must(Register(pipelineHandler{}))
	must(Register(functionHandler{}))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// IsAsyncID reports whether the node or pseudo node id resolves
// asynchronously, recursing through its registered handler. Pseudo nodes
// never suspend on their own account; the source they read from is
// expected to be in-memory.
func IsAsyncID(id ast.ID, r Resolver) bool {
	if _, ok := r.Pseudo(id); ok {
		return false
	}
	n, ok := r.Node(id)
	if !ok {
		return false
	}
	h, ok := Get(n.Kind)
	if !ok {
		return false
	}
	return h.IsAsync(n, r)
}

func childAsync(n *ast.Node, r Resolver) bool {
	for _, name := range n.Props.Names() {
		pv, _ := n.Props.Get(name)
		if pv.IsChild() {
			if IsAsyncID(pv.Child.ID, r) {
				return true
			}
			continue
		}
		if pv.HasList {
			for _, item := range pv.List {
				if item.IsChild && IsAsyncID(item.Child.ID, r) {
					return true
				}
			}
		}
	}
	return false
}

// referenceHandler resolves REFERENCE nodes by forwarding to the pseudo
// node its path points at, then walking any remaining path segments through
// the returned value via safe property access. A path of length < 2 is
// accepted by the compiler as a valid (if useless) author input: per spec
// §3 invariant 5 it gets no pseudo node and no edge, and evaluates to
// undefined.
type referenceHandler struct{}

func (referenceHandler) Kind() ast.Kind { return ast.KindReference }
func (referenceHandler) IsAsync(n *ast.Node, r Resolver) bool {
	return false
}
func (referenceHandler) Resolve(ctx context.Context, n *ast.Node, r Resolver) (Value, error) {
	raw, _ := n.Props.Literal("path")
	path, _ := raw.([]string)
	if len(path) < 2 {
		return nil, nil
	}
	kind, ok := ast.PseudoForReferenceType(path[0])
	if !ok {
		return nil, errs.New(errs.SchemaViolation, string(n.ID), fmt.Sprintf("unrecognized reference type %q", path[0]), nil)
	}
	// A reference to the active step's own field resolves through
	// ANSWER_LOCAL (the per-request fill order), not the raw persisted
	// answer store, per spec §3's pseudo-node catalogue.
	if kind == ast.PseudoAnswer {
		if stepAware, ok := r.(currentStepLookup); ok && stepAware.IsCurrentStepAnswer(path[1]) {
			kind = ast.PseudoAnswerLocal
		}
	}
	// The dependency graph carries the edge from the pseudo node to this
	// REFERENCE, keyed by (kind, path[1]); the thunk engine resolves a
	// pseudo node directly via its ID, so we re-derive it through the
	// Resolver's pseudo lookup surface rather than recomputing an ID here.
	pseudoResolver, ok := r.(pseudoLookup)
	if !ok {
		return nil, errs.New(errs.EngineMisuse, string(n.ID), "resolver does not support pseudo lookup", nil)
	}
	pseudoID, ok := pseudoResolver.LookupPseudo(kind, path[1])
	if !ok {
		return nil, errs.New(errs.LookupFailed, string(n.ID), fmt.Sprintf("no pseudo node for %s:%s", kind, path[1]), nil)
	}
	base, err := r.Resolve(ctx, pseudoID)
	if err != nil {
		return nil, err
	}
	return walkSafe(n.ID, base, path[2:])
}

// unsafeKeys names the property keys safe-property-access must refuse to
// traverse into, per spec §4.3.1 / §8.
var unsafeKeys = map[string]bool{"__proto__": true, "constructor": true, "prototype": true}

// walkSafe walks rest through base, one segment at a time: a map lookup by
// string key, or a slice index when the segment parses as a non-negative
// integer. A missing intermediate value yields undefined without error; an
// unsafe key yields SECURITY_VIOLATION.
func walkSafe(nodeID ast.ID, base any, rest []string) (Value, error) {
	cur := base
	for _, seg := range rest {
		if unsafeKeys[seg] {
			return nil, errs.New(errs.SecurityViolation, string(nodeID), fmt.Sprintf("refused to access unsafe property %q", seg), nil)
		}
		if cur == nil {
			return nil, nil
		}
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, nil
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, nil
			}
			cur = v[idx]
		default:
			return nil, nil
		}
	}
	return cur, nil
}

// pseudoLookup is an optional extension a Resolver may implement to map a
// (PseudoKind, key) pair back to its node ID; engines that pre-resolve
// REFERENCE -> pseudo edges at wiring time implement it over their
// PseudoRegistry.
type pseudoLookup interface {
	LookupPseudo(kind ast.PseudoKind, key string) (ast.ID, bool)
}

// currentStepLookup is an optional Resolver extension reporting whether a
// field code belongs to the step being served this request.
type currentStepLookup interface {
	IsCurrentStepAnswer(code string) bool
}

// formatHandler resolves FORMAT nodes: a printf-style template plus
// positional arguments, each of which may be a literal or an expression.
type formatHandler struct{}

func (formatHandler) Kind() ast.Kind { return ast.KindFormat }
func (formatHandler) IsAsync(n *ast.Node, r Resolver) bool {
	return childAsync(n, r)
}
func (formatHandler) Resolve(ctx context.Context, n *ast.Node, r Resolver) (Value, error) {
	template, _ := n.Props.Literal("template")
	tmpl, _ := template.(string)
	args, err := resolveList(ctx, n.Props.List("arguments"), r)
	if err != nil {
		return nil, err
	}
	anyArgs := make([]any, len(args))
	copy(anyArgs, args)
	return fmt.Sprintf(tmpl, anyArgs...), nil
}

// pipelineHandler resolves PIPELINE nodes: an input value threaded through
// an ordered list of transformer FUNCTION nodes.
type pipelineHandler struct{}

func (pipelineHandler) Kind() ast.Kind { return ast.KindPipeline }
func (pipelineHandler) IsAsync(n *ast.Node, r Resolver) bool {
	return childAsync(n, r)
}
func (pipelineHandler) Resolve(ctx context.Context, n *ast.Node, r Resolver) (Value, error) {
	input := n.Props.Child("input")
	if input == nil {
		return nil, errs.New(errs.EvaluationFailed, string(n.ID), "pipeline missing input", nil)
	}
	value, err := r.Resolve(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	for _, item := range n.Props.List("transformers") {
		if !item.IsChild {
			continue
		}
		transformed, err := applyTransformer(ctx, item.Child, value, r)
		if err != nil {
			return nil, err
		}
		value = transformed
	}
	return value, nil
}

func applyTransformer(ctx context.Context, fnNode *ast.Node, input any, r Resolver) (any, error) {
	name, _ := fnNode.Props.Literal("name")
	fname, _ := name.(string)
	entry, ok := fnregistry.Get(fname, fnregistry.Transformer)
	if !ok {
		return nil, errs.New(errs.TransformerFailed, string(fnNode.ID), fmt.Sprintf("transformer %q not found", fname), nil)
	}
	fn, ok := entry.Fn.(fnregistry.TransformerFunc)
	if !ok {
		return nil, errs.New(errs.EngineMisuse, string(fnNode.ID), fmt.Sprintf("transformer %q has the wrong function signature", fname), nil)
	}
	args, err := resolveList(ctx, fnNode.Props.List("arguments"), r)
	if err != nil {
		return nil, err
	}
	fullArgs := append([]any{input}, args...)
	out, err := fn(ctx, fullArgs)
	if err != nil {
		return nil, errs.New(errs.TransformerFailed, string(fnNode.ID), err.Error(), err)
	}
	return out, nil
}

// functionHandler resolves FUNCTION nodes (FunctionType = Condition,
// Transformer, or Effect) invoked directly, rather than through a PIPELINE
// or a predicate wrapper: e.g. a condition used in a CONDITIONAL's
// predicate, or an effect listed directly under a transition.
type functionHandler struct{}

func (functionHandler) Kind() ast.Kind { return ast.KindFunction }
func (functionHandler) IsAsync(n *ast.Node, r Resolver) bool {
	name, _ := n.Props.Literal("name")
	ftRaw, _ := n.Props.Literal("FunctionType")
	ft, _ := ftRaw.(string)
	if entry, ok := fnregistry.Get(fmt.Sprint(name), fnregistry.FuncType(ft)); ok && entry.Async {
		return true
	}
	return childAsync(n, r)
}
func (functionHandler) Resolve(ctx context.Context, n *ast.Node, r Resolver) (Value, error) {
	name, _ := n.Props.Literal("name")
	fname, _ := name.(string)
	ftRaw, _ := n.Props.Literal("FunctionType")
	ft := fnregistry.FuncType(fmt.Sprint(ftRaw))

	entry, ok := fnregistry.Get(fname, ft)
	if !ok {
		return nil, errs.New(errs.EvaluationFailed, string(n.ID), fmt.Sprintf("FUNCTION_NOT_FOUND: %s %q", ft, fname), nil)
	}

	args, err := resolveList(ctx, n.Props.List("arguments"), r)
	if err != nil {
		return nil, err
	}

	switch ft {
	case fnregistry.Condition:
		fn, ok := entry.Fn.(fnregistry.ConditionFunc)
		if !ok {
			return nil, errs.New(errs.EngineMisuse, string(n.ID), "condition function has the wrong signature", nil)
		}
		result, err := fn(ctx, args)
		if err != nil {
			return nil, errs.New(errs.EvaluationFailed, string(n.ID), err.Error(), err)
		}
		return result, nil
	case fnregistry.Transformer:
		fn, ok := entry.Fn.(fnregistry.TransformerFunc)
		if !ok {
			return nil, errs.New(errs.EngineMisuse, string(n.ID), "transformer function has the wrong signature", nil)
		}
		result, err := fn(ctx, args)
		if err != nil {
			return nil, errs.New(errs.TransformerFailed, string(n.ID), err.Error(), err)
		}
		return result, nil
	case fnregistry.Effect:
		ectx, ok := EffectContextFrom(ctx)
		if !ok {
			return nil, errs.New(errs.EngineMisuse, string(n.ID), "effect invoked without an effect context", nil)
		}
		fn, ok := entry.Fn.(fnregistry.EffectFunc)
		if !ok {
			return nil, errs.New(errs.EngineMisuse, string(n.ID), "effect function has the wrong signature", nil)
		}
		result, err := fn(ctx, ectx, args)
		if err != nil {
			return nil, errs.New(errs.EffectFailed, string(n.ID), err.Error(), err)
		}
		return result, nil
	default:
		return nil, errs.New(errs.SchemaViolation, string(n.ID), fmt.Sprintf("unrecognized FunctionType %q", ft), nil)
	}
}

// resolveList resolves an ordered mix of literal and child-node list items,
// concurrently for the child entries, preserving order in the output.
func resolveList(ctx context.Context, items []ast.ListItem, r Resolver) ([]any, error) {
	out := make([]any, len(items))
	var wg sync.WaitGroup
	errCh := make(chan error, len(items))
	for i, item := range items {
		if !item.IsChild {
			out[i] = item.Literal
			continue
		}
		wg.Add(1)
		go func(i int, child *ast.Node) {
			defer wg.Done()
			v, err := r.Resolve(ctx, child.ID)
			if err != nil {
				errCh <- err
				return
			}
			out[i] = v
		}(i, item.Child)
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return nil, err
	}
	return out, nil
}
