package main

import (
	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claude-memory-service",
		Short: "claude-memory-service - conversational memory service",
		Long:  "claude-memory-service stores, compresses, retrieves, and injects conversation memory over MCP and HTTP.",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults are used if omitted)")

	cmd.AddCommand(newServeCmd(), newHealthCmd(), newVersionCmd())
	return cmd
}
