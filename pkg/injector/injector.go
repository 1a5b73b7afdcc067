// Package injector implements ContextInjector (spec §4.13): orchestrates
// retrieve -> fuse -> build -> limit into one injected context block, plus
// the manual long-form review path.
package injector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
)

// topK is the fixed retrieval width ContextInjector always requests.
const topK = 20

// Retriever is the narrow SemanticRetriever surface ContextInjector needs.
type Retriever interface {
	Retrieve(ctx context.Context, req RetrieveRequest) ([]memtypes.SearchResult, error)
}

// RetrieveRequest mirrors the fields of SemanticRetriever's request type
// that ContextInjector populates.
type RetrieveRequest struct {
	Query          string
	ProjectID      string
	ConversationID string
	TopK           int
	Rerank         bool
}

// Fuser is the narrow MemoryFuser surface ContextInjector needs.
type Fuser interface {
	Fuse(ctx context.Context, query string, units []*memtypes.MemoryUnit) FuseResult
}

type FuseResult struct {
	Content     string
	FusionModel string
	Cost        float64
}

// PromptBuilder is the narrow PromptBuilder surface ContextInjector needs.
type PromptBuilder interface {
	Build(units []memtypes.SearchResult, query string, maxTokens int, fusedContent string) BuildResult
}

type BuildResult struct {
	Content       string
	TokenCount    int
	FragmentCount int
}

// TokenLimiter is the narrow TokenLimiter surface ContextInjector needs.
type TokenLimiter interface {
	Limit(ctx context.Context, text string, maxTokens int, priority string) LimitResult
}

type LimitResult struct {
	Content    string
	TokenCount int
	Truncated  bool
	Compressed bool
}

// ReviewGateway is the narrow ModelGateway surface the manual review path
// needs: a single heavy-tier completion call.
type ReviewGateway interface {
	Complete(ctx context.Context, model string, messages []ReviewMessage, params ReviewParams) (ReviewResult, error)
}

type ReviewMessage struct {
	Role    string
	Content string
}

type ReviewParams struct {
	Temperature float64
	MaxTokens   int
}

type ReviewResult struct {
	Content string
	Cost    float64
}

const priorityMedium = "medium"

// Config holds ContextInjector's tunables.
type Config struct {
	FusionEnabled       bool
	AutoTriggerKeywords []string
	DefaultTokenBudget  int
	RecentWindowSize    int
	ReviewModel         string // heavy/summary tier
}

func (c Config) defaultTokenBudget() int {
	if c.DefaultTokenBudget > 0 {
		return c.DefaultTokenBudget
	}
	return 4000
}

func (c Config) recentWindowSize() int {
	if c.RecentWindowSize > 0 {
		return c.RecentWindowSize
	}
	return 20
}

// Request is Inject's input.
type Request struct {
	Query          string
	ProjectID      string
	ConversationID string
	MaxTokens      int
	ForceFusion    bool // explicit manual review / override always forces fusion
}

// Response is Inject's output (spec §4.13 step 5).
type Response struct {
	Content     string
	TokenCount  int
	MemoryCount int
	Fused       bool
	Cost        float64
	Metadata    map[string]any
}

// Injector is ContextInjector.
type Injector struct {
	retriever Retriever
	fuser     Fuser
	builder   PromptBuilder
	limiter   TokenLimiter
	reviewGw  ReviewGateway
	cfg       Config
}

func New(retriever Retriever, fuser Fuser, builder PromptBuilder, limiter TokenLimiter, reviewGw ReviewGateway, cfg Config) *Injector {
	return &Injector{retriever: retriever, fuser: fuser, builder: builder, limiter: limiter, reviewGw: reviewGw, cfg: cfg}
}

// Inject runs the retrieve -> fuse -> build -> limit pipeline.
func (in *Injector) Inject(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	results, err := in.retriever.Retrieve(ctx, RetrieveRequest{
		Query:          req.Query,
		ProjectID:      req.ProjectID,
		ConversationID: req.ConversationID,
		TopK:           topK,
		Rerank:         true,
	})
	if err != nil {
		return Response{}, err
	}
	if len(results) == 0 {
		return Response{Metadata: map[string]any{"strategy": "empty", "elapsed_time": time.Since(start).Seconds()}}, nil
	}

	budget := req.MaxTokens
	if budget <= 0 {
		budget = in.cfg.defaultTokenBudget()
	}

	var fusedContent string
	var cost float64
	fused := false
	if in.shouldFuse(req) {
		units := unitsFrom(results)
		fr := in.fuser.Fuse(ctx, req.Query, units)
		cost += fr.Cost
		if fr.FusionModel != "none" && fr.FusionModel != "" {
			fusedContent = fr.Content
			fused = true
		}
	}

	built := in.builder.Build(results, req.Query, budget, fusedContent)
	limited := in.limiter.Limit(ctx, built.Content, budget, priorityMedium)

	return Response{
		Content:     limited.Content,
		TokenCount:  limited.TokenCount,
		MemoryCount: len(results),
		Fused:       fused,
		Cost:        cost,
		Metadata: map[string]any{
			"strategy":     "hybrid",
			"truncated":    limited.Truncated,
			"compressed":   limited.Compressed,
			"elapsed_time": time.Since(start).Seconds(),
		},
	}, nil
}

// shouldFuse implements the fuse decision: config must enable fusion, and
// either an explicit manual override or a query keyword match triggers it.
func (in *Injector) shouldFuse(req Request) bool {
	if !in.cfg.FusionEnabled {
		return false
	}
	if req.ForceFusion {
		return true
	}
	return queryTriggersFusion(req.Query, in.cfg.AutoTriggerKeywords)
}

func queryTriggersFusion(query string, triggers []string) bool {
	if len(triggers) == 0 {
		return false
	}
	lower := strings.ToLower(query)
	for _, t := range triggers {
		if t == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func unitsFrom(results []memtypes.SearchResult) []*memtypes.MemoryUnit {
	units := make([]*memtypes.MemoryUnit, len(results))
	for i, r := range results {
		units[i] = r.Unit
	}
	return units
}

// ReviewResponse is the distinct response type for the manual review
// command (spec §4.13: "/memory review").
type ReviewResponse struct {
	Content string
	Cost    float64
}

const reviewPrompt = `Produce a long-form retrospective of this conversation's recent memory units: summarize what happened, key decisions, and open issues.

Recent memory units:
%s`

// Review runs the manual long-form retrospective path: it always retrieves
// the recent window for the conversation and always asks the heavy/summary
// model, bypassing the normal fuse/build/limit pipeline entirely.
func (in *Injector) Review(ctx context.Context, projectID, conversationID string) (ReviewResponse, error) {
	results, err := in.retriever.Retrieve(ctx, RetrieveRequest{
		ProjectID:      projectID,
		ConversationID: conversationID,
		TopK:           in.cfg.recentWindowSize(),
	})
	if err != nil {
		return ReviewResponse{}, err
	}
	if len(results) == 0 {
		return ReviewResponse{}, nil
	}

	var b strings.Builder
	for _, r := range results {
		b.WriteString(r.Unit.Content)
		b.WriteString("\n---\n")
	}

	out, err := in.reviewGw.Complete(ctx, in.cfg.ReviewModel,
		[]ReviewMessage{{Role: "user", Content: fmt.Sprintf(reviewPrompt, b.String())}},
		ReviewParams{Temperature: 0.3, MaxTokens: in.cfg.defaultTokenBudget()})
	if err != nil {
		return ReviewResponse{}, err
	}
	return ReviewResponse{Content: out.Content, Cost: out.Cost}, nil
}
