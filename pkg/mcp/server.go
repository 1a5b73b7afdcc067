// Package mcp implements the stdio/HTTP MCP server exposing the memory
// service's five tools (spec §6): claude_memory_search,
// claude_memory_inject, claude_memory_status, claude_memory_health, and
// claude_memory_cross_project_search. The transport layer here knows
// nothing about storage, retrieval, or fusion; it depends only on the
// narrow interfaces in types.go, which ServiceCore satisfies.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/claude-memory/claude-memory-go/pkg/version"
)

const (
	toolNameSearch             = "claude_memory_search"
	toolNameInject             = "claude_memory_inject"
	toolNameStatus             = "claude_memory_status"
	toolNameHealth             = "claude_memory_health"
	toolNameCrossProjectSearch = "claude_memory_cross_project_search"
)

// Server is the MCP server. It holds no state beyond the collaborators
// it dispatches to; every tool call is independent (spec §5: the MCP
// server itself is stateless, all session state lives in the relational
// store).
type Server struct {
	searcher      Searcher
	crossSearcher CrossProjectSearcher
	injector      Injector
	status        StatusProvider
	health        HealthChecker
	projectID     string

	server *mcp.Server
}

// New builds a Server wired to the given ServiceCore-backed
// collaborators. projectID scopes claude_memory_search and
// claude_memory_inject (spec §3's project isolation); it is typically
// CLAUDE_MEMORY_PROJECT_ID or the "default" project.
func New(searcher Searcher, crossSearcher CrossProjectSearcher, injector Injector, status StatusProvider, health HealthChecker, projectID string) *Server {
	s := &Server{
		searcher:      searcher,
		crossSearcher: crossSearcher,
		injector:      injector,
		status:        status,
		health:        health,
		projectID:     projectID,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "claude-memory-service",
		Version: version.Version,
	}, nil)

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:         toolNameSearch,
		Description:  "Search stored conversation memories by semantic and keyword relevance.",
		InputSchema:  mustSchemaFor[SearchInput](),
		OutputSchema: mustSchemaFor[SearchOutput](),
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         toolNameInject,
		Description:  "Enrich a prompt with retrieved and fused context from stored memories.",
		InputSchema:  mustSchemaFor[InjectInput](),
		OutputSchema: mustSchemaFor[InjectOutput](),
	}, s.handleInject)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         toolNameStatus,
		Description:  "Report service component status and usage metrics.",
		Annotations:  &mcp.ToolAnnotations{ReadOnlyHint: true},
		InputSchema:  mustSchemaFor[StatusInput](),
		OutputSchema: mustSchemaFor[StatusOutput](),
	}, s.handleStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         toolNameHealth,
		Description:  "Check service health, optionally with per-component detail.",
		Annotations:  &mcp.ToolAnnotations{ReadOnlyHint: true},
		InputSchema:  mustSchemaFor[HealthInput](),
		OutputSchema: mustSchemaFor[HealthOutput](),
	}, s.handleHealth)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         toolNameCrossProjectSearch,
		Description:  "Search stored memories across every active project (global scope).",
		Annotations:  &mcp.ToolAnnotations{ReadOnlyHint: true},
		InputSchema:  mustSchemaFor[CrossProjectSearchInput](),
		OutputSchema: mustSchemaFor[SearchOutput](),
	}, s.handleCrossProjectSearch)

	slog.Debug("registered MCP tools", "tools", []string{
		toolNameSearch, toolNameInject, toolNameStatus, toolNameHealth, toolNameCrossProjectSearch,
	})
}

// Run serves the MCP protocol over stdio until ctx is canceled. Nothing
// but protocol frames may reach stdout (spec §6); all diagnostic logging
// goes through slog to stderr.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

// RunHTTP serves the MCP protocol over streaming HTTP on ln until ctx is
// canceled.
func (s *Server) RunHTTP(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler: mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return s.server
		}, nil),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		return httpServer.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
