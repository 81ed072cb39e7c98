package ast

// Kind is the discriminator + sub-kind tag carried by every AST node.
type Kind string

// Structure kinds.
const (
	KindJourney Kind = "JOURNEY"
	KindStep    Kind = "STEP"
	KindBlock   Kind = "BLOCK"
)

// Expression kinds.
const (
	KindReference   Kind = "REFERENCE"
	KindFormat      Kind = "FORMAT"
	KindPipeline    Kind = "PIPELINE"
	KindFunction    Kind = "FUNCTION"
	KindConditional Kind = "CONDITIONAL"
	KindValidation  Kind = "VALIDATION"
	KindIterate     Kind = "ITERATE"
	KindNext        Kind = "NEXT"
)

// Predicate kinds.
const (
	KindTest Kind = "TEST"
	KindNot  Kind = "NOT"
	KindAnd  Kind = "AND"
	KindOr   Kind = "OR"
	KindXor  Kind = "XOR"
)

// Transition kinds.
const (
	KindAccess Kind = "ACCESS"
	KindAction Kind = "ACTION"
	KindSubmit Kind = "SUBMIT"
)

// Class buckets a Kind into one of the four families the spec uses to
// classify nodes during compilation.
type Class string

const (
	ClassStructure  Class = "structure"
	ClassExpression Class = "expression"
	ClassPredicate  Class = "predicate"
	ClassTransition Class = "transition"
	ClassPseudo     Class = "pseudo"
)

var classOf = map[Kind]Class{
	KindJourney: ClassStructure, KindStep: ClassStructure, KindBlock: ClassStructure,
	KindReference: ClassExpression, KindFormat: ClassExpression, KindPipeline: ClassExpression,
	KindFunction: ClassExpression, KindConditional: ClassExpression, KindValidation: ClassExpression,
	KindIterate: ClassExpression, KindNext: ClassExpression,
	KindTest: ClassPredicate, KindNot: ClassPredicate, KindAnd: ClassPredicate, KindOr: ClassPredicate, KindXor: ClassPredicate,
	KindAccess: ClassTransition, KindAction: ClassTransition, KindSubmit: ClassTransition,
}

// ClassOf classifies a node kind as structure / expression / predicate /
// transition. Pseudo nodes carry their own PseudoKind type (see pseudo.go)
// and are never passed here.
func ClassOf(k Kind) Class {
	if c, ok := classOf[k]; ok {
		return c
	}
	return ""
}

// ListItem is one entry of an ordered property (FORMAT arguments, PIPELINE
// transformers, predicate operands): either a child node or a plain literal.
type ListItem struct {
	Child   *Node
	Literal any
	IsChild bool
}

// PropertyValue is the value stored under one property name on a node: at
// most one of Child (single AST child), Literal (plain JSON value), or List
// (an ordered mix of children/literals) is populated.
type PropertyValue struct {
	Child   *Node
	Literal any
	List    []ListItem
	HasList bool
}

// IsChild reports whether this property holds a single AST child node.
func (p PropertyValue) IsChild() bool { return p.Child != nil }

// PropertyMap is the node's "keyed mapping of property names to values",
// ordered only where the order is observable.
type PropertyMap struct {
	order  []string
	values map[string]PropertyValue
}

// NewPropertyMap returns an empty, ready-to-use property map.
func NewPropertyMap() *PropertyMap {
	return &PropertyMap{values: make(map[string]PropertyValue)}
}

// Set assigns a property value, recording insertion order on first write.
func (p *PropertyMap) Set(name string, v PropertyValue) {
	if _, exists := p.values[name]; !exists {
		p.order = append(p.order, name)
	}
	p.values[name] = v
}

// SetChild is a convenience wrapper for a single-child property.
func (p *PropertyMap) SetChild(name string, child *Node) {
	p.Set(name, PropertyValue{Child: child})
}

// SetLiteral is a convenience wrapper for a literal-only property.
func (p *PropertyMap) SetLiteral(name string, lit any) {
	p.Set(name, PropertyValue{Literal: lit})
}

// SetList is a convenience wrapper for an ordered list property.
func (p *PropertyMap) SetList(name string, items []ListItem) {
	p.Set(name, PropertyValue{List: items, HasList: true})
}

// Get looks up a property by name.
func (p *PropertyMap) Get(name string) (PropertyValue, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Child returns the single AST child stored under name, or nil.
func (p *PropertyMap) Child(name string) *Node {
	v, ok := p.values[name]
	if !ok {
		return nil
	}
	return v.Child
}

// Literal returns the literal stored under name.
func (p *PropertyMap) Literal(name string) (any, bool) {
	v, ok := p.values[name]
	if !ok {
		return nil, false
	}
	return v.Literal, ok
}

// List returns the ordered list stored under name.
func (p *PropertyMap) List(name string) []ListItem {
	v, ok := p.values[name]
	if !ok {
		return nil
	}
	return v.List
}

// Names returns property names in insertion (authoring) order.
func (p *PropertyMap) Names() []string {
	return p.order
}

// Node is a compiled, identified AST node: a structure, expression,
// predicate, or transition element. Nodes are immutable once registered;
// ancestry/step-scope facts live in the separate MetadataRegistry so nodes
// can be shared (read-only) across requests.
type Node struct {
	ID    ID
	Kind  Kind
	Class Class
	Props *PropertyMap
}

// NewNode constructs a frozen-shape node (Props is still mutable by the
// compiler until registration, by convention).
func NewNode(id ID, kind Kind) *Node {
	return &Node{ID: id, Kind: kind, Class: ClassOf(kind), Props: NewPropertyMap()}
}
