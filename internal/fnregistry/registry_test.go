package fnregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	fn := ConditionFunc(func(_ context.Context, args []any) (bool, error) {
		return true, nil
	})
	require.NoError(t, r.Register(Entry{Name: "always", Type: Condition, Arity: 0, Fn: fn}))

	e, ok := r.Get("always", Condition)
	require.True(t, ok)
	assert.Equal(t, "always", e.Name)

	_, ok = r.Get("always", Transformer)
	assert.False(t, ok, "registration is scoped to (name, type), not name alone")
}

func TestRegistry_RejectsDuplicateNameAndType(t *testing.T) {
	r := NewRegistry()
	fn := ConditionFunc(func(_ context.Context, args []any) (bool, error) { return true, nil })
	require.NoError(t, r.Register(Entry{Name: "dup", Type: Condition, Fn: fn}))

	err := r.Register(Entry{Name: "dup", Type: Condition, Fn: fn})
	assert.Error(t, err)

	// same name, different type, is allowed.
	err = r.Register(Entry{Name: "dup", Type: Transformer, Fn: TransformerFunc(func(_ context.Context, args []any) (any, error) {
		return nil, nil
	})})
	assert.NoError(t, err)
}

func TestRegistry_RejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Entry{Name: "", Type: Condition})
	assert.Error(t, err)
}

func TestDefaultRegistry_HasBuiltins(t *testing.T) {
	for _, name := range []string{"equals", "notEmpty", "greaterThan", "oneOf"} {
		_, ok := Get(name, Condition)
		assert.True(t, ok, "builtin condition %q must be registered", name)
	}
	for _, name := range []string{"trim", "upper", "lower", "defaultTo"} {
		_, ok := Get(name, Transformer)
		assert.True(t, ok, "builtin transformer %q must be registered", name)
	}
}
