package ast

import (
	"fmt"
	"sync"
)

// NodeRegistry is the ID -> AST node index. It is append-only: once an ID is
// registered it cannot be overwritten. A request-scoped evaluation extends a
// frozen compile-time registry via Extend, which returns a new registry that
// reads through to its parent but writes only into its own overlay map, so
// the compile-time layer is never mutated.
type NodeRegistry struct {
	parent *NodeRegistry
	mu     sync.RWMutex
	nodes  map[ID]*Node
}

// NewNodeRegistry returns an empty root registry.
func NewNodeRegistry() *NodeRegistry {
	return &NodeRegistry{nodes: make(map[ID]*Node)}
}

// Register appends a node to this registry layer. It is an error to
// register an ID that already exists in this layer or any ancestor layer.
func (r *NodeRegistry) Register(n *Node) error {
	if n == nil {
		return fmt.Errorf("cannot register nil node")
	}
	if _, exists := r.Get(n.ID); exists {
		return fmt.Errorf("node %s already registered", n.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.ID] = n
	return nil
}

// Get resolves an ID against this layer, falling back to ancestor layers.
func (r *NodeRegistry) Get(id ID) (*Node, bool) {
	r.mu.RLock()
	n, ok := r.nodes[id]
	r.mu.RUnlock()
	if ok {
		return n, true
	}
	if r.parent != nil {
		return r.parent.Get(id)
	}
	return nil, false
}

// Extend returns a child registry layer: a fresh, request-owned overlay that
// reads through to r but never writes back into it, so nodes registered
// during a request stay out of the compile-time registry.
func (r *NodeRegistry) Extend() *NodeRegistry {
	return &NodeRegistry{parent: r, nodes: make(map[ID]*Node)}
}

// All flattens this layer and every ancestor into one map, parent entries
// first so overlay entries win on ID collision (which should never happen
// given IDs are namespaced by category). Intended for tests and invariant
// checks, not the evaluation hot path.
func (r *NodeRegistry) All() map[ID]*Node {
	out := make(map[ID]*Node)
	if r.parent != nil {
		for id, n := range r.parent.All() {
			out[id] = n
		}
	}
	r.mu.RLock()
	for id, n := range r.nodes {
		out[id] = n
	}
	r.mu.RUnlock()
	return out
}

// PseudoRegistry is the (PseudoKind, externalKey) -> pseudo node index, kept
// in a namespace separate from NodeRegistry. Duplicate keys are coalesced:
// EnsureNode returns the existing node if one was already synthesized for
// that key anywhere in the layer chain.
type PseudoRegistry struct {
	parent *PseudoRegistry
	mu     sync.RWMutex
	byKey  map[PseudoKey]*PseudoNode
	byID   map[ID]*PseudoNode
}

// NewPseudoRegistry returns an empty root pseudo registry.
func NewPseudoRegistry() *PseudoRegistry {
	return &PseudoRegistry{byKey: make(map[PseudoKey]*PseudoNode), byID: make(map[ID]*PseudoNode)}
}

// Lookup resolves a pseudo node by (kind, key), searching this layer then
// ancestors.
func (r *PseudoRegistry) Lookup(kind PseudoKind, key string) (*PseudoNode, bool) {
	pk := PseudoKey{Kind: kind, Key: key}
	r.mu.RLock()
	n, ok := r.byKey[pk]
	r.mu.RUnlock()
	if ok {
		return n, true
	}
	if r.parent != nil {
		return r.parent.Lookup(kind, key)
	}
	return nil, false
}

// GetByID resolves a pseudo node by its node ID.
func (r *PseudoRegistry) GetByID(id ID) (*PseudoNode, bool) {
	r.mu.RLock()
	n, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return n, true
	}
	if r.parent != nil {
		return r.parent.GetByID(id)
	}
	return nil, false
}

// EnsureNode returns the pseudo node for (kind, key), synthesizing and
// registering a fresh one in this layer if none exists anywhere in the
// layer chain.
func (r *PseudoRegistry) EnsureNode(gen *IDGenerator, cat Category, kind PseudoKind, key string) *PseudoNode {
	if n, ok := r.Lookup(kind, key); ok {
		return n
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pk := PseudoKey{Kind: kind, Key: key}
	if n, ok := r.byKey[pk]; ok {
		return n
	}
	n := &PseudoNode{ID: gen.Next(cat), Key: pk}
	r.byKey[pk] = n
	r.byID[n.ID] = n
	return n
}

// Extend returns a child pseudo-registry layer for a per-request runtime
// extension. ANSWER_LOCAL pseudo nodes are not added here: the compiler
// synthesizes them for every field up front.
func (r *PseudoRegistry) Extend() *PseudoRegistry {
	return &PseudoRegistry{parent: r, byKey: make(map[PseudoKey]*PseudoNode), byID: make(map[ID]*PseudoNode)}
}

// All flattens this layer and its ancestors, for tests and invariant checks.
func (r *PseudoRegistry) All() map[ID]*PseudoNode {
	out := make(map[ID]*PseudoNode)
	if r.parent != nil {
		for id, n := range r.parent.All() {
			out[id] = n
		}
	}
	r.mu.RLock()
	for id, n := range r.byID {
		out[id] = n
	}
	r.mu.RUnlock()
	return out
}
