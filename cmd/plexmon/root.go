package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	run := newRunCmd()
	cmd := &cobra.Command{
		Use:           "plexmon",
		Short:         "Plex reachability monitor and download bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		// A bare invocation starts the service.
		RunE: run.RunE,
	}

	cmd.AddCommand(run)
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
