package ast

// FieldInfo is one field block's ANSWER_LOCAL-relevant facts: its compiled
// default value, which may be a literal or an expression node.
type FieldInfo struct {
	DefaultNode    *Node
	DefaultLiteral any
	HasDefault     bool
	FormatPipeline *Node
}

// StepFieldInfo walks a compiled STEP's blocks and collects the per-field
// facts the evaluation engine needs to serve ANSWER_LOCAL resolution for
// that step: the set of field codes it owns plus each field's compiled
// default value and format pipeline (if any). Composite/nested blocks are
// walked too, via ast.Walk, so a field buried under a repeating or grouped
// block is still picked up.
func StepFieldInfo(step *Node) map[string]FieldInfo {
	out := make(map[string]FieldInfo)
	Walk(step, &fieldCollector{out: out})
	return out
}

type fieldCollector struct {
	out map[string]FieldInfo
}

func (f *fieldCollector) EnterNode(n *Node, _ *TraversalContext) VisitResult {
	if n.Kind != KindBlock {
		return Continue
	}
	blockType, _ := n.Props.Literal("blockType")
	if blockType != "field" {
		return Continue
	}
	codeRaw, _ := n.Props.Literal("code")
	code, _ := codeRaw.(string)
	if code == "" {
		return Continue
	}
	info := FieldInfo{}
	if dv, ok := n.Props.Get("defaultValue"); ok {
		info.HasDefault = true
		if dv.IsChild() {
			info.DefaultNode = dv.Child
		} else {
			info.DefaultLiteral = dv.Literal
		}
	}
	if fp := n.Props.Child("formatPipeline"); fp != nil {
		info.FormatPipeline = fp
	}
	f.out[code] = info
	return Continue
}

func (f *fieldCollector) ExitNode(n *Node, _ *TraversalContext) {}
