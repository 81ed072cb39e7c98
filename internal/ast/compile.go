// Package ast implements the AST compiler described in spec.md §4.1: it
// canonicalizes an author's JSON journey into uniquely identified, typed
// nodes, classifies each as structure / expression / predicate / transition,
// registers it, and records parent-metadata for later step-scoped passes.
package ast

import (
	"fmt"
	"strings"

	"github.com/relayform/journeyengine/pkg/errs"
)

// CompileResult is the output of compiling one journey: the frozen
// compile-time registries plus the parsed root node.
type CompileResult struct {
	Root     *Node
	Nodes    *NodeRegistry
	Pseudos  *PseudoRegistry
	Metadata *MetadataRegistry
	Gen      *IDGenerator
}

// Compile canonicalizes a decoded journey document (as produced by
// encoding/json into map[string]any / []any / primitives) into a registered
// AST plus its pseudo-node and parent-metadata registries. The caller is
// expected to have already run the schema + serializability checks
// (internal/schema) — Compile assumes acyclic, JSON-safe input and focuses
// purely on identification, classification, and registration.
func Compile(journeyJSON any) (*CompileResult, error) {
	c := &Compiler{
		gen:     NewIDGenerator(),
		nodes:   NewNodeRegistry(),
		pseudos: NewPseudoRegistry(),
		issues:  &errs.CompileErrors{},
	}

	root, err := c.compileNode(journeyJSON)
	if err != nil {
		c.issues.Add(errs.New(errs.SchemaViolation, "", err.Error(), err))
	}
	if c.issues.HasIssues() {
		return nil, c.issues
	}

	meta := ComputeParentMetadata(root)

	return &CompileResult{
		Root:     root,
		Nodes:    c.nodes,
		Pseudos:  c.pseudos,
		Metadata: meta,
		Gen:      c.gen,
	}, nil
}

// Compiler holds the mutable state of a single compilation: the shared ID
// generator and the registries being populated.
type Compiler struct {
	gen     *IDGenerator
	nodes   *NodeRegistry
	pseudos *PseudoRegistry
	issues  *errs.CompileErrors
}

// NewCompiler returns a fresh compiler with empty registries, for callers
// that need to drive compilation manually.
func NewCompiler() *Compiler {
	return &Compiler{gen: NewIDGenerator(), nodes: NewNodeRegistry(), pseudos: NewPseudoRegistry(), issues: &errs.CompileErrors{}}
}

func discriminate(m map[string]any) (Kind, bool) {
	if lt, ok := m["LogicType"].(string); ok {
		switch lt {
		case "Test":
			return KindTest, true
		case "Not":
			return KindNot, true
		case "And":
			return KindAnd, true
		case "Or":
			return KindOr, true
		case "Xor":
			return KindXor, true
		}
	}
	if tt, ok := m["TransitionType"].(string); ok {
		switch tt {
		case "Access":
			return KindAccess, true
		case "Action":
			return KindAction, true
		case "Submit":
			return KindSubmit, true
		}
	}
	if t, ok := m["type"].(string); ok {
		switch t {
		case "journey":
			return KindJourney, true
		case "step":
			return KindStep, true
		case "block":
			return KindBlock, true
		case "Reference":
			return KindReference, true
		case "Format":
			return KindFormat, true
		case "Pipeline":
			return KindPipeline, true
		case "Function":
			return KindFunction, true
		case "Conditional":
			return KindConditional, true
		case "Validation":
			return KindValidation, true
		case "Iterate":
			return KindIterate, true
		case "Next":
			return KindNext, true
		}
	}
	return "", false
}

func (c *Compiler) compileNode(raw any) (*Node, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object node, got %T", raw)
	}
	kind, ok := discriminate(m)
	if !ok {
		return nil, fmt.Errorf("object has no recognized node discriminator: %v", keysOf(m))
	}

	n := NewNode(c.gen.Next(CategoryCompileAST), kind)
	if err := c.nodes.Register(n); err != nil {
		return nil, err
	}

	switch kind {
	case KindJourney:
		c.compileJourney(n, m)
	case KindStep:
		c.compileStep(n, m)
	case KindBlock:
		c.compileBlock(n, m)
	case KindReference:
		c.compileReference(n, m)
	case KindFormat:
		c.compileFormat(n, m)
	case KindPipeline:
		c.compilePipeline(n, m)
	case KindFunction:
		c.compileFunction(n, m)
	case KindConditional:
		c.compileConditional(n, m)
	case KindValidation:
		c.compileValidation(n, m)
	case KindIterate:
		c.compileIterate(n, m)
	case KindNext:
		c.compileNext(n, m)
	case KindTest:
		c.compileTest(n, m)
	case KindNot:
		c.compileNot(n, m)
	case KindAnd, KindOr, KindXor:
		c.compileVariadicPredicate(n, m)
	case KindAccess:
		c.compileAccess(n, m)
	case KindAction:
		c.compileAction(n, m)
	case KindSubmit:
		c.compileSubmit(n, m)
	}

	return n, nil
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// compileExprOrLiteral compiles raw as an AST node if it looks like one
// (an object carrying a recognized discriminator), otherwise stores it as a
// literal pass-through value, per the many "expression or literal" slots in
// the author contract (CONDITIONAL then/else, NEXT.goto, VALIDATION.message,
// field defaultValue).
func (c *Compiler) compileExprOrLiteral(raw any) PropertyValue {
	if m, ok := raw.(map[string]any); ok {
		if _, ok := discriminate(m); ok {
			child, err := c.compileNode(raw)
			if err != nil {
				c.issues.Add(errs.New(errs.SchemaViolation, "", err.Error(), err))
				return PropertyValue{}
			}
			return PropertyValue{Child: child}
		}
	}
	return PropertyValue{Literal: raw}
}

// compileList compiles a JSON array where each entry may be an expression
// node or a plain literal (FORMAT arguments, PIPELINE-adjacent literal
// args).
func (c *Compiler) compileList(raw any) []ListItem {
	arr, ok := raw.([]any)
	if !ok {
		c.issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("expected array, got %T", raw), nil))
		return nil
	}
	items := make([]ListItem, 0, len(arr))
	for _, entry := range arr {
		pv := c.compileExprOrLiteral(entry)
		if pv.Child != nil {
			items = append(items, ListItem{Child: pv.Child, IsChild: true})
		} else {
			items = append(items, ListItem{Literal: pv.Literal})
		}
	}
	return items
}

// compileNodeList compiles a JSON array where every entry is required to be
// an AST node (journey.steps, step.blocks, transition effects, PIPELINE
// transformers, predicate operands, transition next outcomes).
func (c *Compiler) compileNodeList(raw any) []ListItem {
	arr, ok := raw.([]any)
	if !ok {
		c.issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("expected array of nodes, got %T", raw), nil))
		return nil
	}
	items := make([]ListItem, 0, len(arr))
	for _, entry := range arr {
		child, err := c.compileNode(entry)
		if err != nil {
			c.issues.Add(errs.New(errs.SchemaViolation, "", err.Error(), err))
			continue
		}
		items = append(items, ListItem{Child: child, IsChild: true})
	}
	return items
}

func firstOf(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func (c *Compiler) compileJourney(n *Node, m map[string]any) {
	n.Props.SetLiteral("code", m["code"])
	n.Props.SetLiteral("title", m["title"])
	n.Props.SetLiteral("path", m["path"])
	if data, ok := m["data"]; ok {
		n.Props.SetLiteral("data", data)
	}
	if onAccess, ok := m["onAccess"]; ok {
		n.Props.SetList("onAccess", c.compileNodeList(onAccess))
	}
	if steps, ok := m["steps"]; ok {
		n.Props.SetList("steps", c.compileNodeList(steps))
	} else {
		c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), "journey requires steps", nil))
	}
	if children, ok := m["children"]; ok {
		n.Props.SetList("children", c.compileNodeList(children))
	}
}

func (c *Compiler) compileStep(n *Node, m map[string]any) {
	path, _ := m["path"].(string)
	n.Props.SetLiteral("path", path)
	n.Props.SetLiteral("title", m["title"])

	for _, segment := range strings.Split(path, "/") {
		if strings.HasPrefix(segment, ":") && len(segment) > 1 {
			key := segment[1:]
			c.pseudos.EnsureNode(c.gen, CategoryCompilePseudo, PseudoParams, key)
		}
	}

	if blocks, ok := m["blocks"]; ok {
		n.Props.SetList("blocks", c.compileNodeList(blocks))
	}
	if onAccess, ok := m["onAccess"]; ok {
		n.Props.SetList("onAccess", c.compileNodeList(onAccess))
	}
	if onAction, ok := m["onAction"]; ok {
		n.Props.SetList("onAction", c.compileNodeList(onAction))
	}
	if onSubmission, ok := m["onSubmission"]; ok {
		child, err := c.compileNode(onSubmission)
		if err != nil {
			c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), err.Error(), err))
		} else {
			n.Props.SetChild("onSubmission", child)
		}
	}
}

func (c *Compiler) compileBlock(n *Node, m map[string]any) {
	n.Props.SetLiteral("variant", m["variant"])
	blockType, _ := m["blockType"].(string)
	n.Props.SetLiteral("blockType", blockType)

	if blockType != "field" {
		return
	}

	code, _ := m["code"].(string)
	n.Props.SetLiteral("code", code)
	if code != "" {
		c.pseudos.EnsureNode(c.gen, CategoryCompilePseudo, PseudoAnswer, code)
		c.pseudos.EnsureNode(c.gen, CategoryCompilePseudo, PseudoPost, code)
		c.pseudos.EnsureNode(c.gen, CategoryCompilePseudo, PseudoAnswerLocal, code)
	}

	if dv, ok := m["defaultValue"]; ok {
		n.Props.Set("defaultValue", c.compileExprOrLiteral(dv))
	}
	if fp, ok := firstOf(m, "formatPipeline", "formatters"); ok {
		n.Props.Set("formatPipeline", c.compileExprOrLiteral(fp))
	}
	if validate, ok := m["validate"]; ok {
		n.Props.SetList("validate", c.compileNodeList(validate))
	}
	if dependent, ok := m["dependent"]; ok {
		n.Props.SetLiteral("dependent", dependent)
	}
	if multiple, ok := m["multiple"]; ok {
		n.Props.SetLiteral("multiple", multiple)
	}
}

func (c *Compiler) compileReference(n *Node, m map[string]any) {
	rawPath, _ := m["path"].([]any)
	path := make([]string, 0, len(rawPath))
	for _, seg := range rawPath {
		s, _ := seg.(string)
		path = append(path, s)
	}
	n.Props.SetLiteral("path", path)

	if len(path) >= 2 {
		if kind, ok := PseudoForReferenceType(path[0]); ok {
			c.pseudos.EnsureNode(c.gen, CategoryCompilePseudo, kind, path[1])
		}
	}
}

func (c *Compiler) compileFormat(n *Node, m map[string]any) {
	n.Props.SetLiteral("template", m["template"])
	if args, ok := m["arguments"]; ok {
		n.Props.SetList("arguments", c.compileList(args))
	}
}

func (c *Compiler) compilePipeline(n *Node, m map[string]any) {
	input, ok := m["input"]
	if !ok {
		c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), "pipeline requires input", nil))
		return
	}
	child, err := c.compileNode(input)
	if err != nil {
		c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), err.Error(), err))
	} else {
		n.Props.SetChild("input", child)
	}
	if transformers, ok := m["transformers"]; ok {
		n.Props.SetList("transformers", c.compileNodeList(transformers))
	}
}

func (c *Compiler) compileFunction(n *Node, m map[string]any) {
	name, _ := m["name"].(string)
	n.Props.SetLiteral("name", name)
	ft, _ := m["FunctionType"].(string)
	n.Props.SetLiteral("FunctionType", ft)
	if args, ok := m["arguments"]; ok {
		n.Props.SetList("arguments", c.compileList(args))
	}
}

func (c *Compiler) compileConditional(n *Node, m map[string]any) {
	predicate, ok := m["predicate"]
	if !ok {
		c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), "conditional requires predicate", nil))
	} else {
		child, err := c.compileNode(predicate)
		if err != nil {
			c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), err.Error(), err))
		} else {
			n.Props.SetChild("predicate", child)
		}
	}
	if thenRaw, ok := firstOf(m, "then", "thenValue"); ok {
		n.Props.Set("then", c.compileExprOrLiteral(thenRaw))
	}
	if elseRaw, ok := firstOf(m, "else", "elseValue"); ok {
		n.Props.Set("else", c.compileExprOrLiteral(elseRaw))
	}
}

func (c *Compiler) compileValidation(n *Node, m map[string]any) {
	condition, ok := m["condition"]
	if !ok {
		c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), "validation requires condition", nil))
	} else {
		child, err := c.compileNode(condition)
		if err != nil {
			c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), err.Error(), err))
		} else {
			n.Props.SetChild("condition", child)
		}
	}
	if message, ok := m["message"]; ok {
		n.Props.Set("message", c.compileExprOrLiteral(message))
	}
	if details, ok := m["details"]; ok {
		n.Props.SetLiteral("details", details)
	}
}

func (c *Compiler) compileIterate(n *Node, m map[string]any) {
	input, ok := m["input"]
	if !ok {
		c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), "iterate requires input", nil))
	} else {
		child, err := c.compileNode(input)
		if err != nil {
			c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), err.Error(), err))
		} else {
			n.Props.SetChild("input", child)
		}
	}
	mode, _ := m["mode"].(string)
	n.Props.SetLiteral("mode", mode)
	if yield, ok := m["yield"]; ok {
		n.Props.Set("yield", c.compileExprOrLiteral(yield))
	}
	if predicate, ok := m["predicate"]; ok {
		child, err := c.compileNode(predicate)
		if err != nil {
			c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), err.Error(), err))
		} else {
			n.Props.SetChild("predicate", child)
		}
	}
}

func (c *Compiler) compileNext(n *Node, m map[string]any) {
	if when, ok := m["when"]; ok {
		child, err := c.compileNode(when)
		if err != nil {
			c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), err.Error(), err))
		} else {
			n.Props.SetChild("when", child)
		}
	}
	if gotoRaw, ok := m["goto"]; ok {
		n.Props.Set("goto", c.compileExprOrLiteral(gotoRaw))
	}
	if errRaw, ok := m["error"]; ok {
		n.Props.SetLiteral("error", errRaw)
	}
}

func (c *Compiler) compileTest(n *Node, m map[string]any) {
	subject, ok := m["subject"]
	if ok {
		child, err := c.compileNode(subject)
		if err != nil {
			c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), err.Error(), err))
		} else {
			n.Props.SetChild("subject", child)
		}
	}
	condition, ok := m["condition"]
	if ok {
		child, err := c.compileNode(condition)
		if err != nil {
			c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), err.Error(), err))
		} else {
			n.Props.SetChild("condition", child)
		}
	}
	negate, _ := m["negate"].(bool)
	n.Props.SetLiteral("negate", negate)
}

func (c *Compiler) compileNot(n *Node, m map[string]any) {
	operand, ok := m["operand"]
	if !ok {
		c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), "not requires operand", nil))
		return
	}
	child, err := c.compileNode(operand)
	if err != nil {
		c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), err.Error(), err))
		return
	}
	n.Props.SetChild("operand", child)
}

func (c *Compiler) compileVariadicPredicate(n *Node, m map[string]any) {
	operands, ok := m["operands"]
	if !ok {
		c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), fmt.Sprintf("%s requires operands", n.Kind), nil))
		return
	}
	n.Props.SetList("operands", c.compileNodeList(operands))
}

func (c *Compiler) compileAccess(n *Node, m map[string]any) {
	c.compileGuardedEffects(n, m)
	if next, ok := m["next"]; ok {
		n.Props.SetList("next", c.compileNodeList(next))
	}
}

func (c *Compiler) compileAction(n *Node, m map[string]any) {
	name, _ := m["name"].(string)
	n.Props.SetLiteral("name", name)
	c.compileGuardedEffects(n, m)
}

func (c *Compiler) compileGuardedEffects(n *Node, m map[string]any) {
	if when, ok := m["when"]; ok {
		child, err := c.compileNode(when)
		if err != nil {
			c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), err.Error(), err))
		} else {
			n.Props.SetChild("when", child)
		}
	}
	if effects, ok := m["effects"]; ok {
		n.Props.SetList("effects", c.compileNodeList(effects))
	}
}

func (c *Compiler) compileSubmit(n *Node, m map[string]any) {
	if when, ok := m["when"]; ok {
		child, err := c.compileNode(when)
		if err != nil {
			c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), err.Error(), err))
		} else {
			n.Props.SetChild("when", child)
		}
	}
	validate, _ := m["validate"].(bool)
	n.Props.SetLiteral("validate", validate)

	for _, group := range []string{"onValid", "onInvalid", "onAlways"} {
		raw, ok := m[group]
		if !ok {
			continue
		}
		gm, ok := raw.(map[string]any)
		if !ok {
			c.issues.Add(errs.New(errs.SchemaViolation, string(n.ID), fmt.Sprintf("%s must be an object", group), nil))
			continue
		}
		if effects, ok := gm["effects"]; ok {
			n.Props.SetList(group+"Effects", c.compileNodeList(effects))
		}
		if group != "onAlways" {
			if next, ok := gm["next"]; ok {
				n.Props.SetList(group+"Next", c.compileNodeList(next))
			}
		}
	}
}
