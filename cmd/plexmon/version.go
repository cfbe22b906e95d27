package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plexmon/plexmon/internal/api"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "plexmon %s\n", api.Version)
			return nil
		},
	}
}
