package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/claude-memory/claude-memory-go/pkg/servicecore"
)

var healthDetailed bool

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Build a ServiceCore against the configured stores and report its health",
		RunE:  runHealth,
	}
	cmd.Flags().BoolVar(&healthDetailed, "detailed", false, "include per-component health detail")
	return cmd
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	core, err := servicecore.Build(cfg)
	if err != nil {
		return fmt.Errorf("build service core: %w", err)
	}
	defer core.Close()

	resp := core.HealthCheck(context.Background(), healthDetailed)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}

	if resp.HealthStatus == "unhealthy" {
		os.Exit(1)
	}
	return nil
}
