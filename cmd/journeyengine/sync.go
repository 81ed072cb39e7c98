package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relayform/journeyengine/internal/config"
	"github.com/relayform/journeyengine/internal/source"
)

func newSyncCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch or update every journey source declared in the project manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(flags, "sync")
			manifest, err := config.Load(flags.manifestPath)
			if err != nil {
				return err
			}

			baseDir := filepath.Join(filepath.Dir(flags.manifestPath), ".journeyengine", "sources")
			for _, src := range manifest.Sources {
				dir, err := source.Sync(cmd.Context(), baseDir, src)
				if err != nil {
					return fmt.Errorf("sync %q: %w", src.ID, err)
				}
				log.Info("synced source", "id", src.ID, "dir", dir)
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", src.ID, dir)
			}
			return nil
		},
	}
}
