package ast

// VisitResult controls how Walk proceeds after a visitor callback.
type VisitResult int

const (
	Continue VisitResult = iota
	SkipChildren
	Stop
)

// PathSegment is one step of the positional path from a traversal's root:
// a property key, optionally paired with a list index (-1 when the
// property is a single child rather than a list entry).
type PathSegment struct {
	Property string
	Index    int
}

// TraversalContext is threaded through a Walk, accumulating the path from
// the root to the node currently being visited.
type TraversalContext struct {
	Path []PathSegment
}

// Visitor abstracts one pass over an AST subtree. Higher-level passes
// (metadata traversal, dependency wiring, rendering) are all expressed as a
// Visitor rather than a hand-rolled recursive function, so the tree shape
// lives in exactly one place: Walk.
type Visitor interface {
	EnterNode(n *Node, ctx *TraversalContext) VisitResult
	ExitNode(n *Node, ctx *TraversalContext)
}

// Walk performs a depth-first traversal of root and its children in
// property-declaration order, invoking v at each node. Children are visited
// according to the ordering recorded in Node.Props: properties in insertion
// order, whether single-child or list, with a list property's items in list
// order.
func Walk(root *Node, v Visitor) {
	walk(root, &TraversalContext{}, v)
}

func walk(n *Node, ctx *TraversalContext, v Visitor) VisitResult {
	if n == nil {
		return Continue
	}

	result := v.EnterNode(n, ctx)
	if result == Stop {
		return Stop
	}
	if result != SkipChildren {
		for _, prop := range n.Props.Names() {
			pv, _ := n.Props.Get(prop)
			if pv.IsChild() {
				ctx.Path = append(ctx.Path, PathSegment{Property: prop, Index: -1})
				if walk(pv.Child, ctx, v) == Stop {
					ctx.Path = ctx.Path[:len(ctx.Path)-1]
					v.ExitNode(n, ctx)
					return Stop
				}
				ctx.Path = ctx.Path[:len(ctx.Path)-1]
				continue
			}
			if pv.HasList {
				for idx, item := range pv.List {
					if !item.IsChild {
						continue
					}
					ctx.Path = append(ctx.Path, PathSegment{Property: prop, Index: idx})
					if walk(item.Child, ctx, v) == Stop {
						ctx.Path = ctx.Path[:len(ctx.Path)-1]
						v.ExitNode(n, ctx)
						return Stop
					}
					ctx.Path = ctx.Path[:len(ctx.Path)-1]
				}
			}
		}
	}

	v.ExitNode(n, ctx)
	return Continue
}
