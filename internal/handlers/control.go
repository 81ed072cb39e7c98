package handlers

import (
	"context"
	"fmt"
	"sort"

	"github.com/relayform/journeyengine/internal/ast"
	"github.com/relayform/journeyengine/pkg/errs"
)

func init() {
	must(Register(conditionalHandler{}))
	must(Register(validationHandler{}))
	must(Register(iterateHandler{}))
	must(Register(nextHandler{}))
}

// conditionalHandler resolves CONDITIONAL nodes: evaluate predicate, then
// resolve only the matching branch (then/else), each of which may be a
// literal or a child expression.
type conditionalHandler struct{}

func (conditionalHandler) Kind() ast.Kind { return ast.KindConditional }
func (conditionalHandler) IsAsync(n *ast.Node, r Resolver) bool {
	return childAsync(n, r)
}
func (conditionalHandler) Resolve(ctx context.Context, n *ast.Node, r Resolver) (Value, error) {
	predicate := n.Props.Child("predicate")
	if predicate == nil {
		return nil, errs.New(errs.SchemaViolation, string(n.ID), "conditional requires predicate", nil)
	}
	cond, err := r.Resolve(ctx, predicate.ID)
	if err != nil {
		return nil, err
	}
	branch := "else"
	if asBool(cond) {
		branch = "then"
	}
	return resolvePropertyValue(ctx, n, branch, r)
}

// validationHandler resolves VALIDATION nodes: a condition that must hold,
// surfacing its message (literal or expression) when it does not.
type validationHandler struct{}

func (validationHandler) Kind() ast.Kind { return ast.KindValidation }
func (validationHandler) IsAsync(n *ast.Node, r Resolver) bool {
	return childAsync(n, r)
}
func (validationHandler) Resolve(ctx context.Context, n *ast.Node, r Resolver) (Value, error) {
	condition := n.Props.Child("condition")
	if condition == nil {
		return nil, errs.New(errs.SchemaViolation, string(n.ID), "validation requires condition", nil)
	}
	ok, err := r.Resolve(ctx, condition.ID)
	if err != nil {
		return nil, err
	}
	if asBool(ok) {
		return true, nil
	}
	message, err := resolvePropertyValue(ctx, n, "message", r)
	if err != nil {
		return nil, err
	}
	details, _ := n.Props.Literal("details")
	return nil, errs.New(errs.EvaluationFailed, string(n.ID), fmt.Sprint(message), nil).WithDetails(details)
}

// iterateHandler resolves ITERATE nodes: evaluate input (a list, or an
// object whose entries are normalized into items), then, per mode, apply
// yield (MAP) or predicate (FILTER/FIND) to each element under a
// per-iteration scope frame.
type iterateHandler struct{}

func (iterateHandler) Kind() ast.Kind { return ast.KindIterate }
func (iterateHandler) IsAsync(n *ast.Node, r Resolver) bool {
	return childAsync(n, r)
}
func (iterateHandler) Resolve(ctx context.Context, n *ast.Node, r Resolver) (Value, error) {
	input := n.Props.Child("input")
	if input == nil {
		return nil, errs.New(errs.SchemaViolation, string(n.ID), "iterate requires input", nil)
	}
	inputVal, err := r.Resolve(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	modeRaw, _ := n.Props.Literal("mode")
	mode, _ := modeRaw.(string)

	items, err := normalizeIterateInput(n.ID, inputVal)
	if err != nil {
		return nil, err
	}

	scoped, ok := r.(scopedResolver)
	if !ok {
		return nil, errs.New(errs.EngineMisuse, string(n.ID), "resolver does not support iteration scopes", nil)
	}

	if len(items) == 0 {
		if mode == "FIND" {
			return nil, nil
		}
		return []any{}, nil
	}

	switch mode {
	case "MAP":
		out := make([]any, 0, len(items))
		for _, it := range items {
			scoped.PushIterationScope(iterationBindings(it.index, it.value))
			v, err := resolvePropertyValue(ctx, n, "yield", r)
			scoped.PopIterationScope()
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case "FILTER":
		predicate := n.Props.Child("predicate")
		if predicate == nil {
			return nil, errs.New(errs.SchemaViolation, string(n.ID), "filter iterate requires predicate", nil)
		}
		out := []any{}
		for _, it := range items {
			scoped.PushIterationScope(iterationBindings(it.index, it.value))
			v, err := r.Resolve(ctx, predicate.ID)
			scoped.PopIterationScope()
			if err != nil {
				return nil, err
			}
			if asBool(v) {
				out = append(out, it.value)
			}
		}
		return out, nil
	case "FIND":
		predicate := n.Props.Child("predicate")
		if predicate == nil {
			return nil, errs.New(errs.SchemaViolation, string(n.ID), "find iterate requires predicate", nil)
		}
		for _, it := range items {
			scoped.PushIterationScope(iterationBindings(it.index, it.value))
			v, err := r.Resolve(ctx, predicate.ID)
			scoped.PopIterationScope()
			if err != nil {
				return nil, err
			}
			if asBool(v) {
				return it.value, nil
			}
		}
		return nil, nil
	default:
		return nil, errs.New(errs.SchemaViolation, string(n.ID), fmt.Sprintf("unrecognized iterate mode %q", mode), nil)
	}
}

// iterateItem is a surviving ITERATE input element paired with its index in
// the normalized (pre-filter) sequence, since FILTER/MAP must report indices
// from before null items were dropped.
type iterateItem struct {
	index int
	value any
}

// normalizeIterateInput implements the ITERATE input contract: arrays pass
// through; plain objects become entries keyed by '@key' (merging in '@value'
// for non-object values); anything else is a TYPE_MISMATCH. Object keys are
// visited in sorted order so iteration is deterministic. Null/undefined
// entries are dropped while the original index is preserved for the
// survivors.
func normalizeIterateInput(nodeID ast.ID, inputVal any) ([]iterateItem, error) {
	var raw []any
	switch v := inputVal.(type) {
	case []any:
		raw = v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		raw = make([]any, 0, len(keys))
		for _, k := range keys {
			val := v[k]
			if obj, ok := val.(map[string]any); ok {
				entry := make(map[string]any, len(obj)+1)
				for ek, ev := range obj {
					entry[ek] = ev
				}
				entry["@key"] = k
				raw = append(raw, entry)
			} else {
				raw = append(raw, map[string]any{"@key": k, "@value": val})
			}
		}
	case nil:
		raw = nil
	default:
		return nil, errs.New(errs.TypeMismatch, string(nodeID), fmt.Sprintf("iterate input must be a list or object, got %T", inputVal), nil)
	}

	items := make([]iterateItem, 0, len(raw))
	for i, v := range raw {
		if v == nil {
			continue
		}
		items = append(items, iterateItem{index: i, value: v})
	}
	return items, nil
}

// iterationBindings builds the per-element scope frame: the item's own
// fields spread directly (when it's an object), plus the reserved '@index',
// '@type', and '@item' keys.
func iterationBindings(index int, item any) map[string]any {
	bindings := map[string]any{}
	if obj, ok := item.(map[string]any); ok {
		for k, v := range obj {
			bindings[k] = v
		}
	}
	bindings["@index"] = index
	bindings["@type"] = "iterator"
	bindings["@item"] = item
	return bindings
}

// scopedResolver is an optional extension a Resolver may implement to
// support ITERATE's per-element bound variables.
type scopedResolver interface {
	PushIterationScope(bindings map[string]any)
	PopIterationScope()
}

// nextHandler resolves NEXT nodes: an optional guard, then a goto target
// (literal step path or expression).
type nextHandler struct{}

func (nextHandler) Kind() ast.Kind { return ast.KindNext }
func (nextHandler) IsAsync(n *ast.Node, r Resolver) bool {
	return childAsync(n, r)
}
func (nextHandler) Resolve(ctx context.Context, n *ast.Node, r Resolver) (Value, error) {
	if when := n.Props.Child("when"); when != nil {
		ok, err := r.Resolve(ctx, when.ID)
		if err != nil {
			return nil, err
		}
		if !asBool(ok) {
			return nil, nil
		}
	}
	return resolvePropertyValue(ctx, n, "goto", r)
}

// resolvePropertyValue resolves a single property that may hold either a
// child expression or a literal (the "expression or literal" slots:
// CONDITIONAL then/else, VALIDATION message, NEXT.goto, ITERATE yield).
func resolvePropertyValue(ctx context.Context, n *ast.Node, name string, r Resolver) (Value, error) {
	pv, ok := n.Props.Get(name)
	if !ok {
		return nil, nil
	}
	if pv.IsChild() {
		return r.Resolve(ctx, pv.Child.ID)
	}
	return pv.Literal, nil
}
