package mcp

import "context"

// Searcher is the narrow SemanticRetriever-backed surface claude_memory_search
// needs.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (SearchResponse, error)
}

// CrossProjectSearcher backs claude_memory_cross_project_search, which
// relaxes the project filter instead of scoping to one project.
type CrossProjectSearcher interface {
	CrossProjectSearch(ctx context.Context, req SearchRequest) (SearchResponse, error)
}

// Injector is the narrow ContextInjector-backed surface claude_memory_inject
// needs.
type Injector interface {
	Inject(ctx context.Context, req InjectRequest) (InjectResponse, error)
}

// StatusProvider backs claude_memory_status.
type StatusProvider interface {
	Status(ctx context.Context) StatusResponse
}

// HealthChecker backs claude_memory_health.
type HealthChecker interface {
	HealthCheck(ctx context.Context, detailed bool) HealthResponse
}

// SearchRequest is ServiceCore's input for both single-project and
// cross-project search.
type SearchRequest struct {
	Query       string
	ProjectID   string
	Limit       int
	MinScore    float64
	MemoryTypes []string
}

// SearchResultItem is one ranked memory returned by search.
type SearchResultItem struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Summary         string   `json:"summary"`
	RelevanceScore  float64  `json:"relevance_score"`
	MemoryType      string   `json:"memory_type"`
	Keywords        []string `json:"keywords,omitempty"`
	CreatedAt       string   `json:"created_at"`
	MatchType       string   `json:"match_type"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
}

// SearchResponse is ServiceCore's search result, shared by search and
// cross-project search.
type SearchResponse struct {
	Results      []SearchResultItem
	TotalFound   int
	SearchTimeMS int64
	Metadata     map[string]any
}

// InjectRequest is ServiceCore's input for context injection.
type InjectRequest struct {
	OriginalPrompt string
	QueryText      string
	ContextHint    string
	ProjectID      string
	ConversationID string
	InjectionMode  string
	MaxTokens      int
}

// InjectResponse is ServiceCore's context injection result.
type InjectResponse struct {
	EnhancedPrompt   string
	InjectedMemories int
	TokensUsed       int
	ProcessingTimeMS int64
	Metadata         map[string]any
}

// StatusResponse is the component/metric status envelope for
// claude_memory_status.
type StatusResponse struct {
	Components map[string]any
	Metrics    map[string]any
}

// HealthResponse is the health check result for claude_memory_health.
type HealthResponse struct {
	HealthStatus    string
	Issues          []string
	ComponentHealth map[string]any
}
