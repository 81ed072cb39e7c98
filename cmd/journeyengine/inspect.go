package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/relayform/journeyengine/internal/tui"
)

func newInspectCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <journey.json>",
		Short: "Open a read-only terminal inspector over a compiled journey's graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := compileFile(args[0])
			if err != nil {
				return err
			}
			model := tui.NewModel(c.Result.Root, c.Result.Nodes, c.Graph)
			_, err = tea.NewProgram(model).Run()
			return err
		},
	}
}
