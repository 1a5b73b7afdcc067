package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claude-memory/claude-memory-go/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the service version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "claude-memory-service %s (%s)\n", version.Version, version.Commit)
			return nil
		},
	}
}
