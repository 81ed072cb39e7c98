package ast

// ComputeParentMetadata runs the compile-time half of the §4.1 traversal: a
// single DFS that records attachedToParentNode/attachedToParentProperty for
// every non-root node. It carries no step target, so it never sets the
// step-scope flags; those are added per-request by DeriveStepMetadata.
func ComputeParentMetadata(root *Node) *MetadataRegistry {
	reg := NewMetadataRegistry()
	v := &metadataVisitor{reg: reg, setParentLinks: true}
	Walk(root, v)
	return reg
}

// DeriveStepMetadata layers a per-request overlay on top of a compile-time
// MetadataRegistry, adding isCurrentStep on targetStepID, isAncestorOfStep on
// the root→target path inclusive, and isDescendantOfStep on everything
// reached below the target. The base registry (and its parent-link data) is
// never mutated.
func DeriveStepMetadata(base *MetadataRegistry, root *Node, targetStepID ID) *MetadataRegistry {
	overlay := base.Extend()
	v := &metadataVisitor{reg: overlay, targetID: targetStepID}
	Walk(root, v)
	return overlay
}

type metadataVisitor struct {
	reg            *MetadataRegistry
	stack          []*Node
	targetID       ID
	inTarget       bool
	setParentLinks bool
}

func (v *metadataVisitor) EnterNode(n *Node, ctx *TraversalContext) VisitResult {
	md := v.reg.Ensure(n.ID)

	if v.setParentLinks && len(v.stack) > 0 {
		parent := v.stack[len(v.stack)-1]
		md.AttachedToParentNode = parent.ID
		if len(ctx.Path) > 0 {
			seg := ctx.Path[len(ctx.Path)-1]
			md.AttachedToParentProperty = seg.Property
			md.AttachedToParentIndex = seg.Index
		}
	}

	v.stack = append(v.stack, n)

	if v.targetID != "" && n.ID == v.targetID {
		md.IsCurrentStep = true
		for _, ancestor := range v.stack {
			v.reg.Ensure(ancestor.ID).IsAncestorOfStep = true
		}
		v.inTarget = true
	} else if v.inTarget {
		md.IsDescendantOfStep = true
	}

	return Continue
}

func (v *metadataVisitor) ExitNode(n *Node, ctx *TraversalContext) {
	if v.targetID != "" && n.ID == v.targetID {
		v.inTarget = false
	}
	v.stack = v.stack[:len(v.stack)-1]
}
