package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/relayform/journeyengine/internal/ast"
	"github.com/relayform/journeyengine/internal/fnregistry"
	"github.com/relayform/journeyengine/pkg/errs"
)

func init() {
	must(Register(testHandler{}))
	must(Register(notHandler{}))
	must(Register(variadicHandler{kind: ast.KindAnd}))
	must(Register(variadicHandler{kind: ast.KindOr}))
	must(Register(variadicHandler{kind: ast.KindXor}))
}

func asBool(v Value) bool {
	b, _ := v.(bool)
	return b
}

// testHandler resolves TEST nodes: a subject evaluated, then handed to a
// condition FUNCTION (via the condition's argument list, subject first),
// optionally negated.
type testHandler struct{}

func (testHandler) Kind() ast.Kind { return ast.KindTest }
func (testHandler) IsAsync(n *ast.Node, r Resolver) bool {
	return childAsync(n, r)
}
func (testHandler) Resolve(ctx context.Context, n *ast.Node, r Resolver) (Value, error) {
	subject := n.Props.Child("subject")
	condition := n.Props.Child("condition")
	if subject == nil || condition == nil {
		return nil, errs.New(errs.SchemaViolation, string(n.ID), "test requires subject and condition", nil)
	}
	subjectVal, err := r.Resolve(ctx, subject.ID)
	if err != nil {
		return nil, err
	}
	conditionVal, err := resolveConditionWithSubject(ctx, condition, subjectVal, r)
	if err != nil {
		return nil, err
	}
	negate, _ := n.Props.Literal("negate")
	if asBool(negate) {
		return !conditionVal, nil
	}
	return conditionVal, nil
}

// resolveConditionWithSubject evaluates a condition FUNCTION node with
// subject prepended to its declared argument list, matching the FUNCTION
// handler's own dispatch but without re-deriving the node through the
// registry (the condition node is already in hand from TEST's Props).
func resolveConditionWithSubject(ctx context.Context, condition *ast.Node, subject any, r Resolver) (bool, error) {
	args, err := resolveList(ctx, condition.Props.List("arguments"), r)
	if err != nil {
		return false, err
	}
	fname, _ := condition.Props.Literal("name")
	entry, ok := fnregistry.Get(fmt.Sprint(fname), fnregistry.Condition)
	if !ok {
		return false, errs.New(errs.EvaluationFailed, string(condition.ID), "FUNCTION_NOT_FOUND: condition", nil)
	}
	fn, ok := entry.Fn.(fnregistry.ConditionFunc)
	if !ok {
		return false, errs.New(errs.EngineMisuse, string(condition.ID), "condition function has the wrong signature", nil)
	}
	fullArgs := append([]any{subject}, args...)
	result, err := fn(ctx, fullArgs)
	if err != nil {
		return false, errs.New(errs.EvaluationFailed, string(condition.ID), err.Error(), err)
	}
	return result, nil
}

// notHandler resolves NOT nodes.
type notHandler struct{}

func (notHandler) Kind() ast.Kind { return ast.KindNot }
func (notHandler) IsAsync(n *ast.Node, r Resolver) bool {
	return childAsync(n, r)
}
func (notHandler) Resolve(ctx context.Context, n *ast.Node, r Resolver) (Value, error) {
	operand := n.Props.Child("operand")
	if operand == nil {
		return nil, errs.New(errs.SchemaViolation, string(n.ID), "not requires operand", nil)
	}
	v, err := r.Resolve(ctx, operand.ID)
	if err != nil {
		return nil, err
	}
	return !asBool(v), nil
}

// variadicHandler resolves AND/OR/XOR over an ordered operand list. AND/OR
// evaluate left-to-right and short-circuit, since their effect ordering is
// observable; XOR needs every operand's truth value to count how many are
// truthy, so it evaluates all operands concurrently.
type variadicHandler struct{ kind ast.Kind }

func (h variadicHandler) Kind() ast.Kind { return h.kind }
func (h variadicHandler) IsAsync(n *ast.Node, r Resolver) bool {
	return childAsync(n, r)
}
func (h variadicHandler) Resolve(ctx context.Context, n *ast.Node, r Resolver) (Value, error) {
	operands := n.Props.List("operands")

	switch h.kind {
	case ast.KindAnd:
		for _, item := range operands {
			if !item.IsChild {
				if !asBool(item.Literal) {
					return false, nil
				}
				continue
			}
			v, err := r.Resolve(ctx, item.Child.ID)
			if err != nil {
				return nil, err
			}
			if !asBool(v) {
				return false, nil
			}
		}
		return true, nil
	case ast.KindOr:
		for _, item := range operands {
			if !item.IsChild {
				if asBool(item.Literal) {
					return true, nil
				}
				continue
			}
			v, err := r.Resolve(ctx, item.Child.ID)
			if err != nil {
				return nil, err
			}
			if asBool(v) {
				return true, nil
			}
		}
		return false, nil
	case ast.KindXor:
		results := make([]bool, len(operands))
		var wg sync.WaitGroup
		errCh := make(chan error, len(operands))
		for i, item := range operands {
			if !item.IsChild {
				results[i] = asBool(item.Literal)
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
				results[i] = asBool(v)
			}(i, item.Child)
		}
		wg.Wait()
		close(errCh)
		if err := <-errCh; err != nil {
			return nil, err
		}
		count := 0
		for _, v := range results {
			if v {
				count++
			}
		}
		return count == 1, nil
	default:
		return nil, errs.New(errs.EngineMisuse, string(n.ID), "unreachable variadic predicate kind", nil)
	}
}
