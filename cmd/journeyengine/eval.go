package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relayform/journeyengine/internal/ast"
	"github.com/relayform/journeyengine/internal/depgraph"
	"github.com/relayform/journeyengine/internal/thunk"
)

// cliSource answers pseudo-node lookups from flat key=value CLI flags, for
// ad-hoc evaluation against a journey document without a running request
// shell.
type cliSource struct {
	answers map[string]any
	data    map[string]any
	query   map[string]any
	params  map[string]any
	post    map[string]any
}

func (s cliSource) Answer(code string) (any, bool) { v, ok := s.answers[code]; return v, ok }
func (s cliSource) Data(key string) (any, bool)    { v, ok := s.data[key]; return v, ok }
func (s cliSource) Query(key string) (any, bool)   { v, ok := s.query[key]; return v, ok }
func (s cliSource) Param(key string) (any, bool)   { v, ok := s.params[key]; return v, ok }
func (s cliSource) Post(key string) (any, bool)    { v, ok := s.post[key]; return v, ok }

func parseKeyValues(pairs []string) map[string]any {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		parts := strings.SplitN(p, "=", 2)
		if len(parts) != 2 {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(parts[1]), &v); err != nil {
			v = parts[1]
		}
		out[parts[0]] = v
	}
	return out
}

func newEvalCmd(flags *rootFlags) *cobra.Command {
	var answers, data, query, params, post []string

	cmd := &cobra.Command{
		Use:   "eval <journey.json> <node-id>",
		Short: "Resolve a single compiled node's value against supplied inputs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := compileFile(args[0])
			if err != nil {
				return err
			}
			nodeID := ast.ID(args[1])

			source := cliSource{
				answers: parseKeyValues(answers),
				data:    parseKeyValues(data),
				query:   parseKeyValues(query),
				params:  parseKeyValues(params),
				post:    parseKeyValues(post),
			}

			e := thunk.NewEvalContext(
				context.Background(),
				c.Result.Root,
				c.Result.Nodes.Extend(),
				c.Result.Pseudos.Extend(),
				c.Result.Metadata,
				depgraph.Extend(c.Graph),
				c.Result.Gen,
				source,
			)

			value, err := e.Resolve(context.Background(), nodeID)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(value, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&answers, "answer", nil, "code=value, repeatable")
	cmd.Flags().StringArrayVar(&data, "data", nil, "key=value, repeatable")
	cmd.Flags().StringArrayVar(&query, "query", nil, "key=value, repeatable")
	cmd.Flags().StringArrayVar(&params, "param", nil, "key=value, repeatable")
	cmd.Flags().StringArrayVar(&post, "post", nil, "code=value, repeatable")

	return cmd
}
