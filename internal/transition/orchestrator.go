// Package transition implements the per-step lifecycle orchestrator of
// spec §4.4: it drives ACCESS, ACTION, and SUBMIT transitions in their
// fixed order, pushing the @transitionType scope effects expect and
// stopping the lifecycle at the first non-"continue" outcome.
package transition

import (
	"context"
	"fmt"

	"github.com/relayform/journeyengine/internal/ast"
	"github.com/relayform/journeyengine/internal/fnregistry"
	"github.com/relayform/journeyengine/internal/handlers"
	"github.com/relayform/journeyengine/internal/thunk"
	"github.com/relayform/journeyengine/pkg/errs"
)

// OutcomeKind is the lifecycle's terminal signal.
type OutcomeKind string

const (
	OutcomeContinue OutcomeKind = "continue"
	OutcomeRedirect OutcomeKind = "redirect"
	OutcomeError    OutcomeKind = "error"
)

// Outcome is what a single transition (or the whole lifecycle) resolves to.
type Outcome struct {
	Kind     OutcomeKind
	Goto     any
	Status   int
	Message  string
	Executed bool
}

// Request describes one inbound lifecycle run: which step is targeted and,
// for ACTION/SUBMIT requests, what was posted.
type Request struct {
	// Kind is "access", "action", or "submit".
	Kind       string
	ActionName string
}

// ValidationFailure is one VALIDATION node that did not hold during a
// SUBMIT's validation pass.
type ValidationFailure struct {
	NodeID  ast.ID
	Message string
	Details any
}

// Run drives the fixed lifecycle order: outer-journey onAccess (top-down),
// then the target step's onAccess, then (for action/submit requests) its
// onAction or onSubmission. journeyChain is the list of ancestor JOURNEY
// nodes from outermost to innermost, ending with the step's own parent.
func Run(ctx context.Context, e *thunk.EvalContext, journeyChain []*ast.Node, step *ast.Node, req Request, ectx fnregistry.EffectCtx) (Outcome, []ValidationFailure, error) {
	e.UseStep(step)

	for _, j := range journeyChain {
		for _, item := range j.Props.List("onAccess") {
			if !item.IsChild {
				continue
			}
			outcome, err := runAccess(ctx, e, item.Child, ectx)
			if err != nil {
				return Outcome{}, nil, err
			}
			if outcome.Kind != OutcomeContinue {
				return outcome, nil, nil
			}
		}
	}

	for _, item := range step.Props.List("onAccess") {
		if !item.IsChild {
			continue
		}
		outcome, err := runAccess(ctx, e, item.Child, ectx)
		if err != nil {
			return Outcome{}, nil, err
		}
		if outcome.Kind != OutcomeContinue {
			return outcome, nil, nil
		}
	}

	if req.Kind == "action" {
		for _, item := range step.Props.List("onAction") {
			if !item.IsChild {
				continue
			}
			matched, outcome, err := runAction(ctx, e, item.Child, req.ActionName, ectx)
			if err != nil {
				return Outcome{}, nil, err
			}
			if matched {
				return outcome, nil, nil
			}
		}
		return Outcome{Kind: OutcomeContinue}, nil, nil
	}

	if req.Kind == "submit" {
		submit := step.Props.Child("onSubmission")
		if submit == nil {
			return Outcome{Kind: OutcomeContinue}, nil, nil
		}
		return runSubmit(ctx, e, step, submit, ectx)
	}

	return Outcome{Kind: OutcomeContinue}, nil, nil
}

func runAccess(ctx context.Context, e *thunk.EvalContext, n *ast.Node, ectx fnregistry.EffectCtx) (Outcome, error) {
	if when := n.Props.Child("when"); when != nil {
		ok, err := e.Resolve(ctx, when.ID)
		if err != nil || !truthy(ok) {
			return Outcome{Kind: OutcomeContinue, Executed: false}, nil
		}
	}

	e.SetTransitionType("access")
	actx := handlers.WithEffectContext(ctx, ectx)
	if err := runEffects(actx, e, n.Props.List("effects")); err != nil {
		return Outcome{}, err
	}

	return evaluateNext(ctx, e, n.Props.List("next"))
}

func runAction(ctx context.Context, e *thunk.EvalContext, n *ast.Node, actionName string, ectx fnregistry.EffectCtx) (bool, Outcome, error) {
	name, _ := n.Props.Literal("name")
	if fmt.Sprint(name) != actionName {
		return false, Outcome{}, nil
	}
	if when := n.Props.Child("when"); when != nil {
		ok, err := e.Resolve(ctx, when.ID)
		if err != nil || !truthy(ok) {
			return false, Outcome{}, nil
		}
	}

	e.SetTransitionType("action")
	actx := handlers.WithEffectContext(ctx, ectx)
	if err := runEffects(actx, e, n.Props.List("effects")); err != nil {
		return true, Outcome{}, err
	}
	outcome, err := evaluateNext(ctx, e, n.Props.List("next"))
	return true, outcome, err
}

func runSubmit(ctx context.Context, e *thunk.EvalContext, step, submit *ast.Node, ectx fnregistry.EffectCtx) (Outcome, []ValidationFailure, error) {
	if when := submit.Props.Child("when"); when != nil {
		ok, err := e.Resolve(ctx, when.ID)
		if err != nil || !truthy(ok) {
			return Outcome{Kind: OutcomeContinue, Executed: false}, nil, nil
		}
	}

	var failures []ValidationFailure
	if validate, _ := submit.Props.Literal("validate"); truthy(validate) {
		var err error
		failures, err = collectValidationFailures(ctx, e, step)
		if err != nil {
			return Outcome{}, nil, err
		}
	}

	e.SetTransitionType("submit")
	actx := handlers.WithEffectContext(ctx, ectx)
	if err := runEffects(actx, e, submit.Props.List("onAlwaysEffects")); err != nil {
		return Outcome{}, failures, err
	}

	if len(failures) == 0 {
		if err := runEffects(actx, e, submit.Props.List("onValidEffects")); err != nil {
			return Outcome{}, failures, err
		}
		outcome, err := evaluateNext(ctx, e, submit.Props.List("onValidNext"))
		return outcome, failures, err
	}

	if err := runEffects(actx, e, submit.Props.List("onInvalidEffects")); err != nil {
		return Outcome{}, failures, err
	}
	outcome, err := evaluateNext(ctx, e, submit.Props.List("onInvalidNext"))
	return outcome, failures, err
}

// collectValidationFailures walks the step subtree evaluating every
// VALIDATION node; a submission is valid iff this list comes back empty.
func collectValidationFailures(ctx context.Context, e *thunk.EvalContext, step *ast.Node) ([]ValidationFailure, error) {
	var failures []ValidationFailure
	var walkErr error
	ast.Walk(step, validationCollector{
		ctx: ctx, e: e,
		onFailure: func(f ValidationFailure) { failures = append(failures, f) },
		onError:   func(err error) { walkErr = err },
	})
	return failures, walkErr
}

type validationCollector struct {
	ctx       context.Context
	e         *thunk.EvalContext
	onFailure func(ValidationFailure)
	onError   func(error)
}

func (v validationCollector) EnterNode(n *ast.Node, _ *ast.TraversalContext) ast.VisitResult {
	if n.Kind != ast.KindValidation {
		return ast.Continue
	}
	_, err := v.e.Resolve(v.ctx, n.ID)
	if err == nil {
		return ast.Continue
	}
	ne, ok := err.(*errs.NodeError)
	if !ok || ne.Kind() != errs.EvaluationFailed {
		v.onError(err)
		return ast.Stop
	}
	v.onFailure(ValidationFailure{NodeID: n.ID, Message: ne.Msg, Details: ne.Details})
	return ast.Continue
}

func (v validationCollector) ExitNode(n *ast.Node, _ *ast.TraversalContext) {}

func runEffects(ctx context.Context, e *thunk.EvalContext, items []ast.ListItem) error {
	for _, item := range items {
		if !item.IsChild {
			continue
		}
		if _, err := e.Resolve(ctx, item.Child.ID); err != nil {
			return errs.New(errs.EffectFailed, string(item.Child.ID), err.Error(), err)
		}
	}
	return nil
}

func evaluateNext(ctx context.Context, e *thunk.EvalContext, items []ast.ListItem) (Outcome, error) {
	for _, item := range items {
		if !item.IsChild {
			continue
		}
		n := item.Child
		if when := n.Props.Child("when"); when != nil {
			ok, err := e.Resolve(ctx, when.ID)
			if err != nil {
				return Outcome{}, err
			}
			if !truthy(ok) {
				continue
			}
		}
		if errRaw, hasErr := n.Props.Literal("error"); hasErr && errRaw != nil {
			errMap, _ := errRaw.(map[string]any)
			status, _ := errMap["status"].(float64)
			message, _ := errMap["message"].(string)
			return Outcome{Kind: OutcomeError, Status: int(status), Message: message}, nil
		}
		gotoVal, err := resolveGoto(ctx, e, n)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeRedirect, Goto: gotoVal}, nil
	}
	return Outcome{Kind: OutcomeContinue}, nil
}

func resolveGoto(ctx context.Context, e *thunk.EvalContext, n *ast.Node) (any, error) {
	pv, ok := n.Props.Get("goto")
	if !ok {
		return nil, nil
	}
	if pv.IsChild() {
		return e.Resolve(ctx, pv.Child.ID)
	}
	return pv.Literal, nil
}

func truthy(v any) bool {
	b, _ := v.(bool)
	return b
}
