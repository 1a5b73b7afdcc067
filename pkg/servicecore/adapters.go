// adapters.go bridges each pipeline package's narrow, package-local
// collaborator interfaces to the concrete types ServiceCore constructs.
// Every pipeline package (compressor, retriever, fuser, tokenlimiter,
// injector, projectmanager) deliberately mirrors the fields it needs from
// ModelGateway/SemanticRetriever/etc. in its own local types rather than
// importing the concrete package, so Go's structural typing can't wire
// them automatically even when the shapes line up; these adapters do the
// one-time field copy at the seam.
package servicecore

import (
	"context"

	"github.com/claude-memory/claude-memory-go/pkg/compressor"
	"github.com/claude-memory/claude-memory-go/pkg/cost"
	"github.com/claude-memory/claude-memory-go/pkg/fuser"
	"github.com/claude-memory/claude-memory-go/pkg/injector"
	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
	"github.com/claude-memory/claude-memory-go/pkg/modelgateway"
	"github.com/claude-memory/claude-memory-go/pkg/projectmanager"
	"github.com/claude-memory/claude-memory-go/pkg/promptbuilder"
	"github.com/claude-memory/claude-memory-go/pkg/retriever"
	"github.com/claude-memory/claude-memory-go/pkg/tokenlimiter"
)

// compressorGateway adapts *modelgateway.Gateway to compressor.Gateway,
// additionally reporting spend to CostMonitor under the "compress" bucket
// (spec §4.15) since ModelGateway itself only feeds CostTracker's ledger.
type compressorGateway struct {
	gw      *modelgateway.Gateway
	monitor *cost.Monitor
}

func (a compressorGateway) Complete(ctx context.Context, model string, messages []compressor.GatewayMessage, params compressor.GatewayParams) (compressor.GatewayResult, error) {
	gwMessages := make([]modelgateway.Message, len(messages))
	for i, m := range messages {
		gwMessages[i] = modelgateway.Message{Role: m.Role, Content: m.Content}
	}
	res, err := a.gw.Complete(ctx, model, gwMessages, modelgateway.CompletionParams{
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return compressor.GatewayResult{}, err
	}
	a.monitor.TrackCost("compress", res.Cost)
	out := compressor.GatewayResult{Content: res.Content, Cost: res.Cost}
	out.Usage.InputTokens = res.Usage.InputTokens
	out.Usage.OutputTokens = res.Usage.OutputTokens
	return out, nil
}

// fuserGateway adapts *modelgateway.Gateway to fuser.Gateway.
type fuserGateway struct {
	gw      *modelgateway.Gateway
	monitor *cost.Monitor
}

func (a fuserGateway) Complete(ctx context.Context, model string, messages []fuser.GatewayMessage, params fuser.GatewayParams) (fuser.GatewayResult, error) {
	gwMessages := make([]modelgateway.Message, len(messages))
	for i, m := range messages {
		gwMessages[i] = modelgateway.Message{Role: m.Role, Content: m.Content}
	}
	res, err := a.gw.Complete(ctx, model, gwMessages, modelgateway.CompletionParams{
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return fuser.GatewayResult{}, err
	}
	a.monitor.TrackCost("fuse", res.Cost)
	out := fuser.GatewayResult{Content: res.Content, Cost: res.Cost}
	out.Usage.InputTokens = res.Usage.InputTokens
	out.Usage.OutputTokens = res.Usage.OutputTokens
	return out, nil
}

// tokenLimiterGateway adapts *modelgateway.Gateway to tokenlimiter.Gateway.
type tokenLimiterGateway struct {
	gw      *modelgateway.Gateway
	monitor *cost.Monitor
}

func (a tokenLimiterGateway) Complete(ctx context.Context, model string, messages []tokenlimiter.GatewayMessage, params tokenlimiter.GatewayParams) (tokenlimiter.GatewayResult, error) {
	gwMessages := make([]modelgateway.Message, len(messages))
	for i, m := range messages {
		gwMessages[i] = modelgateway.Message{Role: m.Role, Content: m.Content}
	}
	res, err := a.gw.Complete(ctx, model, gwMessages, modelgateway.CompletionParams{
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return tokenlimiter.GatewayResult{}, err
	}
	a.monitor.TrackCost("compress", res.Cost)
	return tokenlimiter.GatewayResult{Content: res.Content, Cost: res.Cost}, nil
}

// retrieverGateway adapts *modelgateway.Gateway to retriever.Gateway
// (embed + rerank only).
type retrieverGateway struct {
	gw      *modelgateway.Gateway
	monitor *cost.Monitor
}

func (a retrieverGateway) Embed(ctx context.Context, model, text string) (retriever.EmbedResult, error) {
	res, err := a.gw.Embed(ctx, model, text)
	if err != nil {
		return retriever.EmbedResult{}, err
	}
	a.monitor.TrackCost("embed", res.Cost)
	return retriever.EmbedResult{Vector: res.Vector, Dim: res.Dim, Cost: res.Cost}, nil
}

func (a retrieverGateway) Rerank(ctx context.Context, model, query string, docs []string, topK int) (retriever.RerankResult, error) {
	res, err := a.gw.Rerank(ctx, model, query, docs, topK)
	if err != nil {
		return retriever.RerankResult{}, err
	}
	a.monitor.TrackCost("rerank", res.Cost)
	return retriever.RerankResult{Scores: res.Scores, Cost: res.Cost}, nil
}

// reviewGateway adapts *modelgateway.Gateway to injector.ReviewGateway,
// the heavy-tier completion call behind the manual "/memory review" path.
type reviewGateway struct {
	gw      *modelgateway.Gateway
	monitor *cost.Monitor
}

func (a reviewGateway) Complete(ctx context.Context, model string, messages []injector.ReviewMessage, params injector.ReviewParams) (injector.ReviewResult, error) {
	gwMessages := make([]modelgateway.Message, len(messages))
	for i, m := range messages {
		gwMessages[i] = modelgateway.Message{Role: m.Role, Content: m.Content}
	}
	res, err := a.gw.Complete(ctx, model, gwMessages, modelgateway.CompletionParams{
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return injector.ReviewResult{}, err
	}
	a.monitor.TrackCost("review", res.Cost)
	return injector.ReviewResult{Content: res.Content, Cost: res.Cost}, nil
}

// injectorRetriever adapts *retriever.Retriever to injector.Retriever.
type injectorRetriever struct{ r *retriever.Retriever }

func (a injectorRetriever) Retrieve(ctx context.Context, req injector.RetrieveRequest) ([]memtypes.SearchResult, error) {
	return a.r.Retrieve(ctx, retriever.Request{
		Query:          req.Query,
		ProjectID:      req.ProjectID,
		ConversationID: req.ConversationID,
		TopK:           req.TopK,
		Rerank:         req.Rerank,
	})
}

// projectManagerRetriever adapts *retriever.Retriever to
// projectmanager.Retriever.
type projectManagerRetriever struct{ r *retriever.Retriever }

func (a projectManagerRetriever) Retrieve(ctx context.Context, req projectmanager.RetrieveRequest) ([]memtypes.SearchResult, error) {
	return a.r.Retrieve(ctx, retriever.Request{
		Query:     req.Query,
		ProjectID: req.ProjectID,
		TopK:      req.TopK,
	})
}

// injectorFuser adapts *fuser.Fuser to injector.Fuser.
type injectorFuser struct{ f *fuser.Fuser }

func (a injectorFuser) Fuse(ctx context.Context, query string, units []*memtypes.MemoryUnit) injector.FuseResult {
	res := a.f.Fuse(ctx, query, units)
	return injector.FuseResult{Content: res.Content, FusionModel: res.FusionModel, Cost: res.Cost}
}

// injectorPromptBuilder adapts *promptbuilder.Builder to
// injector.PromptBuilder.
type injectorPromptBuilder struct{ b *promptbuilder.Builder }

func (a injectorPromptBuilder) Build(units []memtypes.SearchResult, query string, maxTokens int, fusedContent string) injector.BuildResult {
	res := a.b.Build(units, query, maxTokens, fusedContent)
	return injector.BuildResult{Content: res.Content, TokenCount: res.TokenCount, FragmentCount: res.FragmentCount}
}

// injectorTokenLimiter adapts *tokenlimiter.Limiter to
// injector.TokenLimiter.
type injectorTokenLimiter struct{ l *tokenlimiter.Limiter }

func (a injectorTokenLimiter) Limit(ctx context.Context, text string, maxTokens int, priority string) injector.LimitResult {
	res := a.l.Limit(ctx, text, maxTokens, tokenlimiter.Priority(priority))
	return injector.LimitResult{Content: res.Content, TokenCount: res.TokenCount, Truncated: res.Truncated, Compressed: res.Compressed}
}
