package ast

import "sync"

// Metadata holds the compilation-specific facts the spec keeps orthogonal to
// the frozen AST: parent linkage and step-scope membership.
type Metadata struct {
	AttachedToParentNode     ID
	AttachedToParentProperty string
	AttachedToParentIndex    int // -1 when the property is not a list
	IsAncestorOfStep         bool
	IsDescendantOfStep       bool
	IsCurrentStep            bool
}

// MetadataRegistry is the ID -> Metadata index. Compilation produces a root
// registry holding only parent linkage (computed once, shared read-only
// across requests); DeriveStepMetadata layers a per-request overlay on top
// that adds the step-scope flags for whichever step the request targets,
// without mutating the shared root.
type MetadataRegistry struct {
	parent *MetadataRegistry
	mu     sync.RWMutex
	data   map[ID]*Metadata
}

// NewMetadataRegistry returns an empty root registry.
func NewMetadataRegistry() *MetadataRegistry {
	return &MetadataRegistry{data: make(map[ID]*Metadata)}
}

// Ensure returns the Metadata for id, creating it (copy-on-write from any
// parent layer) on first access so callers can set individual fields
// without a separate existence check.
func (m *MetadataRegistry) Ensure(id ID) *Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	if md, ok := m.data[id]; ok {
		return md
	}
	if m.parent != nil {
		if pmd := m.parent.Get(id); pmd != nil {
			clone := *pmd
			m.data[id] = &clone
			return &clone
		}
	}
	md := &Metadata{AttachedToParentIndex: -1}
	m.data[id] = md
	return md
}

// Get returns the Metadata for id, reading through to parent layers, or nil
// if the node was never visited anywhere in the chain.
func (m *MetadataRegistry) Get(id ID) *Metadata {
	m.mu.RLock()
	md, ok := m.data[id]
	m.mu.RUnlock()
	if ok {
		return md
	}
	if m.parent != nil {
		return m.parent.Get(id)
	}
	return nil
}

// Set installs a fully-formed Metadata record in this layer, overwriting any
// existing entry.
func (m *MetadataRegistry) Set(id ID, md *Metadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = md
}

// Extend returns a per-request overlay layer on top of m.
func (m *MetadataRegistry) Extend() *MetadataRegistry {
	return &MetadataRegistry{parent: m, data: make(map[ID]*Metadata)}
}
