package main

import (
	"github.com/spf13/cobra"

	"github.com/relayform/journeyengine/internal/logging"
)

type rootFlags struct {
	manifestPath string
	logLevel     string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "journeyengine",
		Short:         "Compile, evaluate, and inspect declarative form journeys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.manifestPath, "manifest", "journeyengine.yaml", "path to the project manifest")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "debug, info, warn, or error")

	cmd.AddCommand(newCompileCmd(flags))
	cmd.AddCommand(newEvalCmd(flags))
	cmd.AddCommand(newSyncCmd(flags))
	cmd.AddCommand(newInspectCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newLogger(flags *rootFlags, component string) *logging.Logger {
	l, err := logging.New(logging.Options{Level: flags.logLevel, Component: component})
	if err != nil {
		l = logging.Nop()
	}
	return l
}
