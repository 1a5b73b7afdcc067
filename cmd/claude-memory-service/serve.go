package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/claude-memory/claude-memory-go/pkg/collector"
	"github.com/claude-memory/claude-memory-go/pkg/config"
	"github.com/claude-memory/claude-memory-go/pkg/httpapi"
	"github.com/claude-memory/claude-memory-go/pkg/mcp"
	"github.com/claude-memory/claude-memory-go/pkg/servicecore"
)

var (
	httpAddr     string
	mcpHTTPAddr  string
	collectorDir string
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the memory service over MCP stdio, with optional HTTP surfaces",
		RunE:  runServe,
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "address to additionally serve the REST HTTP API on (disabled if empty)")
	cmd.Flags().StringVar(&mcpHTTPAddr, "mcp-http-addr", "", "address to additionally serve MCP over streaming HTTP on (disabled if empty)")
	cmd.Flags().StringVar(&collectorDir, "collector-dir", "", "directory of transcript files to watch and ingest (disabled if empty)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	core, err := servicecore.Build(cfg)
	if err != nil {
		return fmt.Errorf("build service core: %w", err)
	}

	mcpServer := mcp.New(core, core, core, core, core, cfg.ProjectID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return core.Run(ctx)
	})

	g.Go(func() error {
		return mcpServer.Run(ctx)
	})

	if mcpHTTPAddr != "" {
		ln, err := net.Listen("tcp", mcpHTTPAddr)
		if err != nil {
			return fmt.Errorf("listen mcp http %s: %w", mcpHTTPAddr, err)
		}
		slog.Info("serving MCP over streaming HTTP", "addr", mcpHTTPAddr)
		g.Go(func() error {
			return mcpServer.RunHTTP(ctx, ln)
		})
	}

	if httpAddr != "" {
		ln, err := net.Listen("tcp", httpAddr)
		if err != nil {
			return fmt.Errorf("listen http %s: %w", httpAddr, err)
		}
		httpServer := httpapi.New(core, core, core, core, cfg.ProjectID)
		slog.Info("serving REST HTTP API", "addr", httpAddr)
		g.Go(func() error {
			return httpServer.Serve(ctx, ln)
		})
	}

	if collectorDir != "" {
		coll := collector.New(core, collectorDir, cfg.ProjectID)
		if err := coll.Watch(); err != nil {
			return fmt.Errorf("start collector: %w", err)
		}
		defer coll.Stop()
	}

	return g.Wait()
}

func loadConfig() (*config.ServiceConfig, error) {
	if configPath == "" {
		cfg := config.Default()
		config.ApplyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(configPath)
}
