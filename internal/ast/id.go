package ast

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Category is one of the four node namespaces an ID can belong to. IDs are
// unique within a category, not globally, so "compile_ast:3" and
// "runtime_pseudo:3" can coexist.
type Category string

const (
	CategoryCompileAST    Category = "compile_ast"
	CategoryRuntimeAST    Category = "runtime_ast"
	CategoryCompilePseudo Category = "compile_pseudo"
	CategoryRuntimePseudo Category = "runtime_pseudo"
)

// ID is the stable identifier of an AST or pseudo node: "«category»:«n»".
type ID string

// Format builds an ID string from its parts.
func Format(cat Category, n int) ID {
	return ID(fmt.Sprintf("%s:%d", cat, n))
}

// Parse splits an ID back into its category and monotonic counter.
func Parse(id ID) (Category, int, error) {
	parts := strings.SplitN(string(id), ":", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed node id %q", id)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("malformed node id %q: %w", id, err)
	}
	return Category(parts[0]), n, nil
}

// IDGenerator hands out monotonically increasing, per-category IDs. A single
// generator is shared by a compilation (compile_ast/compile_pseudo) or by a
// request's runtime extension (runtime_ast/runtime_pseudo); generators are
// never shared across two concurrent compilations.
type IDGenerator struct {
	mu       sync.Mutex
	counters map[Category]int
}

// NewIDGenerator returns a generator with every counter starting at zero.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{counters: make(map[Category]int)}
}

// Next allocates the next ID in the given category.
func (g *IDGenerator) Next(cat Category) ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.counters[cat]
	g.counters[cat] = n + 1
	return Format(cat, n)
}
