package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meszmate/xmpplink/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := config.GetPaths()
			if err != nil {
				return err
			}
			path := filepath.Join(paths.ConfigDir, "config.toml")

			_, err = os.Stat(path)
			switch {
			case err == nil && !force:
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			case err != nil && !errors.Is(err, os.ErrNotExist):
				return err
			}

			if err := config.Save(config.DefaultConfig()); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config.toml")
	return cmd
}
