package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeError_ErrorFormatsWithAndWithoutNodeID(t *testing.T) {
	withNode := New(LookupFailed, "compile_ast:3", "missing pseudo", nil)
	assert.Equal(t, "LOOKUP_FAILED[compile_ast:3]: missing pseudo", withNode.Error())

	withoutNode := New(Cancelled, "", "request aborted", nil)
	assert.Equal(t, "CANCELLED: request aborted", withoutNode.Error())
}

func TestNodeError_UnwrapAndErrorsAs(t *testing.T) {
	cause := fmt.Errorf("boom")
	wrapped := New(EffectFailed, "compile_ast:1", "effect blew up", cause)

	assert.Equal(t, cause, wrapped.Unwrap())

	var ne *NodeError
	require.True(t, errors.As(error(wrapped), &ne))
	assert.Equal(t, EffectFailed, ne.Kind())
}

func TestNodeError_IsComparesOnKindOnly(t *testing.T) {
	a := New(TypeMismatch, "n1", "bad type", nil)
	b := New(TypeMismatch, "n2", "different message, same kind", nil)
	c := New(SchemaViolation, "n1", "bad type", nil)

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
	assert.False(t, a.Is(errors.New("not a NodeError")))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, SecurityViolation, KindOf(New(SecurityViolation, "", "", nil)))
	assert.Equal(t, EvaluationFailed, KindOf(errors.New("plain error, no taxonomy")))

	wrapped := fmt.Errorf("context: %w", New(EngineMisuse, "", "misuse", nil))
	assert.Equal(t, EngineMisuse, KindOf(wrapped))
}

func TestCompileErrors_AddAndHasIssues(t *testing.T) {
	var ce CompileErrors
	assert.False(t, ce.HasIssues())
	assert.Equal(t, "no compile errors", ce.Error())

	ce.Add(New(SchemaViolation, "", "missing steps", nil))
	ce.Add(New(SchemaViolation, "", "missing code", nil))

	require.True(t, ce.HasIssues())
	assert.Equal(t, 2, len(ce.Issues))
	assert.Contains(t, ce.Error(), "2 compile error(s)")
	assert.Contains(t, ce.Error(), "missing steps")
	assert.Contains(t, ce.Error(), "missing code")
}
