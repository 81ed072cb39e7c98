package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDGenerator_PerCategoryMonotonic(t *testing.T) {
	gen := NewIDGenerator()

	assert.Equal(t, ID("compile_ast:0"), gen.Next(CategoryCompileAST))
	assert.Equal(t, ID("compile_ast:1"), gen.Next(CategoryCompileAST))
	assert.Equal(t, ID("compile_pseudo:0"), gen.Next(CategoryCompilePseudo))
	assert.Equal(t, ID("compile_ast:2"), gen.Next(CategoryCompileAST))
}

func TestParse_RoundTripsFormat(t *testing.T) {
	id := Format(CategoryRuntimeAST, 42)
	cat, n, err := Parse(id)
	require.NoError(t, err)
	assert.Equal(t, CategoryRuntimeAST, cat)
	assert.Equal(t, 42, n)
}

func TestParse_RejectsMalformedID(t *testing.T) {
	_, _, err := Parse(ID("no-colon-here"))
	assert.Error(t, err)

	_, _, err = Parse(ID("compile_ast:not-a-number"))
	assert.Error(t, err)
}

func TestIDGenerator_DistinctCategoriesCanShareCounterValue(t *testing.T) {
	gen := NewIDGenerator()
	a := gen.Next(CategoryCompileAST)
	b := gen.Next(CategoryCompilePseudo)
	assert.NotEqual(t, a, b)
	assert.Equal(t, ID("compile_ast:0"), a)
	assert.Equal(t, ID("compile_pseudo:0"), b)
}
