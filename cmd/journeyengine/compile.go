package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCompileCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <journey.json>",
		Short: "Validate and compile a journey document, reporting its node, pseudo-input and evaluation-order counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(flags, "compile")
			c, err := compileFile(args[0])
			if err != nil {
				return err
			}
			nodes := c.Result.Nodes.All()
			pseudos := c.Result.Pseudos.All()
			order, err := c.Graph.TopologicalOrder()
			if err != nil {
				return err
			}
			log.Info("compiled journey", "nodes", len(nodes), "pseudos", len(pseudos), "evaluationOrder", len(order))
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d nodes, %d pseudo inputs, %d in evaluation order\n", len(nodes), len(pseudos), len(order))
			return nil
		},
	}
}
