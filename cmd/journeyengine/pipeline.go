package main

import (
	"fmt"
	"os"

	"github.com/relayform/journeyengine/internal/ast"
	"github.com/relayform/journeyengine/internal/authoring"
	"github.com/relayform/journeyengine/internal/depgraph"
	"github.com/relayform/journeyengine/internal/schema"
)

// compiled bundles the artifacts of running a journey document through the
// full schema -> compile -> wiring -> serializability pipeline, shared by
// the compile, eval, and inspect subcommands.
type compiled struct {
	Doc    any
	Result *ast.CompileResult
	Graph  *depgraph.Graph
}

func compileFile(path string) (*compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	doc, err := authoring.LoadDocument(path, data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	if issues := schema.CheckDocument(doc); issues.HasIssues() {
		return nil, issues
	}

	result, err := ast.Compile(doc)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}

	graph := depgraph.Build(result.Root, result.Pseudos)
	if err := schema.CheckSerializability(graph); err != nil {
		return nil, err
	}

	return &compiled{Doc: doc, Result: result, Graph: graph}, nil
}
