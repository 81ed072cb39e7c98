// Package handlers holds the per-node-kind evaluation contract and the
// registry that dispatches a thunk's resolution to the right implementation,
// mirroring the teacher's plugin.Plugin / plugin.RegisterPlugin pattern but
// keyed on ast.Kind instead of a step type string.
package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/relayform/journeyengine/internal/ast"
)

// Value is whatever a node resolves to at evaluation time: a plain JSON-ish
// value (string, float64, bool, nil, []any, map[string]any) or, for
// predicate nodes, a bool.
type Value = any

// Resolver is the minimal surface a Handler needs from the evaluation
// engine: resolve a child node's value (sync or async) without the handler
// package needing to import the engine package back (which owns memoization,
// scope frames, and runtime node materialization).
type Resolver interface {
	Resolve(ctx context.Context, id ast.ID) (Value, error)
	ResolveSync(id ast.ID) (Value, error)
	Node(id ast.ID) (*ast.Node, bool)
	Pseudo(id ast.ID) (*ast.PseudoNode, bool)
	Metadata(id ast.ID) *ast.Metadata
	// MaterializeRuntimeNodes registers a batch of synthetic nodes (e.g. one
	// ITERATE iteration's bound variables) scoped to the current request and
	// returns their assigned IDs in input order.
	MaterializeRuntimeNodes(nodes []*ast.Node) []ast.ID
}

// Handler implements the evaluation semantics for exactly one ast.Kind.
type Handler interface {
	// Kind reports which node kind this handler resolves.
	Kind() ast.Kind
	// IsAsync reports whether resolving n can require awaiting an external
	// operation (an effect's async FUNCTION, or a descendant that is async).
	// The thunk engine uses this to decide invoke vs invokeSync dispatch.
	IsAsync(n *ast.Node, r Resolver) bool
	// Resolve computes n's value, using r to obtain any dependency's value.
	Resolve(ctx context.Context, n *ast.Node, r Resolver) (Value, error)
}

// Registry is the append-only Kind -> Handler index, populated once at
// program startup by each handler's init().
type Registry struct {
	mu       sync.RWMutex
	handlers map[ast.Kind]Handler
}

var defaultRegistry = NewRegistry()

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[ast.Kind]Handler)}
}

// Register installs h for its own Kind() in the default registry.
func Register(h Handler) error {
	return defaultRegistry.Register(h)
}

// Register installs h for its own Kind(), erroring on a duplicate
// registration for the same kind.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("cannot register nil handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Kind()]; exists {
		return fmt.Errorf("handler already registered for kind %s", h.Kind())
	}
	r.handlers[h.Kind()] = h
	return nil
}

// Get returns the handler registered for kind.
func Get(kind ast.Kind) (Handler, bool) {
	return defaultRegistry.Get(kind)
}

// Get returns the handler registered for kind.
func (r *Registry) Get(kind ast.Kind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Default returns the process-wide handler registry every built-in handler
// registers itself into.
func Default() *Registry { return defaultRegistry }
