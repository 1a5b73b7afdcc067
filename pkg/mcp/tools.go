package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SearchInput is claude_memory_search's input.
type SearchInput struct {
	Query       string   `json:"query" jsonschema:"the search query text"`
	Limit       int      `json:"limit,omitempty" jsonschema:"maximum results to return, 1-20, default 5"`
	MinScore    float64  `json:"min_score,omitempty" jsonschema:"minimum relevance score 0-1, default 0.6"`
	MemoryTypes []string `json:"memory_types,omitempty" jsonschema:"restrict to these memory types: GLOBAL, QUICK, ARCHIVE"`
}

// SearchOutput is claude_memory_search's and
// claude_memory_cross_project_search's output.
type SearchOutput struct {
	Success      bool               `json:"success"`
	Query        string             `json:"query"`
	Results      []SearchResultItem `json:"results"`
	TotalFound   int                `json:"total_found"`
	SearchTimeMS int64              `json:"search_time_ms"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
}

// InjectInput is claude_memory_inject's input.
type InjectInput struct {
	OriginalPrompt string `json:"original_prompt" jsonschema:"the prompt to enrich with retrieved context"`
	QueryText      string `json:"query_text,omitempty" jsonschema:"query used to retrieve context, defaults to original_prompt"`
	ContextHint    string `json:"context_hint,omitempty" jsonschema:"additional hint narrowing retrieval"`
	InjectionMode  string `json:"injection_mode,omitempty" jsonschema:"conservative, balanced, or comprehensive, default balanced"`
	MaxTokens      int    `json:"max_tokens,omitempty" jsonschema:"token budget for injected context"`
}

// InjectOutput is claude_memory_inject's output.
type InjectOutput struct {
	Success          bool           `json:"success"`
	EnhancedPrompt   string         `json:"enhanced_prompt"`
	InjectedMemories int            `json:"injected_memories"`
	TokensUsed       int            `json:"tokens_used"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// StatusInput is claude_memory_status's input (always empty).
type StatusInput struct{}

// StatusOutput is claude_memory_status's output.
type StatusOutput struct {
	Success    bool           `json:"success"`
	Status     string         `json:"status"`
	Components map[string]any `json:"components,omitempty"`
	Metrics    map[string]any `json:"metrics,omitempty"`
}

// HealthInput is claude_memory_health's input.
type HealthInput struct {
	Detailed bool `json:"detailed,omitempty" jsonschema:"include per-component health detail"`
}

// HealthOutput is claude_memory_health's output.
type HealthOutput struct {
	HealthStatus    string         `json:"health_status"`
	Issues          []string       `json:"issues,omitempty"`
	ComponentHealth map[string]any `json:"component_health,omitempty"`
}

// CrossProjectSearchInput is claude_memory_cross_project_search's input.
type CrossProjectSearchInput struct {
	Query    string  `json:"query" jsonschema:"the search query text"`
	Limit    int     `json:"limit,omitempty" jsonschema:"maximum results to return, 1-20, default 5"`
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum relevance score 0-1, default 0.6"`
}

const (
	defaultSearchLimit    = 5
	defaultSearchMinScore = 0.6
	defaultInjectionMode  = "balanced"
)

func normalizeSearchInput(in SearchInput) SearchInput {
	if in.Limit <= 0 {
		in.Limit = defaultSearchLimit
	}
	if in.Limit > 20 {
		in.Limit = 20
	}
	if in.MinScore <= 0 {
		in.MinScore = defaultSearchMinScore
	}
	return in
}

func normalizeInjectionMode(mode string) string {
	switch mode {
	case "conservative", "balanced", "comprehensive":
		return mode
	default:
		return defaultInjectionMode
	}
}

// errorOutput marshals the {error, success:false, tool} shape spec §6
// requires for MCP tool errors, as the sole TextContent of an IsError
// result. It returns a nil Go error deliberately: returning one here would
// let the SDK format its own envelope instead of this one.
func errorOutput[Out any](tool string, err error) (*mcp.CallToolResult, Out, error) {
	var zero Out
	body, _ := json.Marshal(map[string]any{
		"error":   err.Error(),
		"success": false,
		"tool":    tool,
	})
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
	}, zero, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	in = normalizeSearchInput(in)

	resp, err := s.searcher.Search(ctx, SearchRequest{
		Query:       in.Query,
		ProjectID:   s.projectID,
		Limit:       in.Limit,
		MinScore:    in.MinScore,
		MemoryTypes: in.MemoryTypes,
	})
	if err != nil {
		return errorOutput[SearchOutput](toolNameSearch, err)
	}

	return nil, SearchOutput{
		Success:      true,
		Query:        in.Query,
		Results:      resp.Results,
		TotalFound:   resp.TotalFound,
		SearchTimeMS: resp.SearchTimeMS,
		Metadata:     resp.Metadata,
	}, nil
}

func (s *Server) handleInject(ctx context.Context, _ *mcp.CallToolRequest, in InjectInput) (*mcp.CallToolResult, InjectOutput, error) {
	queryText := in.QueryText
	if queryText == "" {
		queryText = in.OriginalPrompt
	}

	resp, err := s.injector.Inject(ctx, InjectRequest{
		OriginalPrompt: in.OriginalPrompt,
		QueryText:      queryText,
		ContextHint:    in.ContextHint,
		ProjectID:      s.projectID,
		InjectionMode:  normalizeInjectionMode(in.InjectionMode),
		MaxTokens:      in.MaxTokens,
	})
	if err != nil {
		return errorOutput[InjectOutput](toolNameInject, err)
	}

	return nil, InjectOutput{
		Success:          true,
		EnhancedPrompt:   resp.EnhancedPrompt,
		InjectedMemories: resp.InjectedMemories,
		TokensUsed:       resp.TokensUsed,
		ProcessingTimeMS: resp.ProcessingTimeMS,
		Metadata:         resp.Metadata,
	}, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	resp := s.status.Status(ctx)
	return nil, StatusOutput{
		Success:    true,
		Status:     "ok",
		Components: resp.Components,
		Metrics:    resp.Metrics,
	}, nil
}

func (s *Server) handleHealth(ctx context.Context, _ *mcp.CallToolRequest, in HealthInput) (*mcp.CallToolResult, HealthOutput, error) {
	resp := s.health.HealthCheck(ctx, in.Detailed)
	return nil, HealthOutput{
		HealthStatus:    resp.HealthStatus,
		Issues:          resp.Issues,
		ComponentHealth: resp.ComponentHealth,
	}, nil
}

func (s *Server) handleCrossProjectSearch(ctx context.Context, _ *mcp.CallToolRequest, in CrossProjectSearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	normalized := normalizeSearchInput(SearchInput{Query: in.Query, Limit: in.Limit, MinScore: in.MinScore})

	resp, err := s.crossSearcher.CrossProjectSearch(ctx, SearchRequest{
		Query:    normalized.Query,
		Limit:    normalized.Limit,
		MinScore: normalized.MinScore,
	})
	if err != nil {
		return errorOutput[SearchOutput](toolNameCrossProjectSearch, err)
	}

	return nil, SearchOutput{
		Success:      true,
		Query:        in.Query,
		Results:      resp.Results,
		TotalFound:   resp.TotalFound,
		SearchTimeMS: resp.SearchTimeMS,
		Metadata:     resp.Metadata,
	}, nil
}
