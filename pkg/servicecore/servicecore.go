// Package servicecore implements ServiceCore (spec §4.14): the component
// that owns every collaborator's lifecycle, wires them together through
// the narrow adapter shims in adapters.go, runs the store_conversation and
// background-maintenance flows, and answers the MCP/HTTP surfaces' search,
// inject, status, and health operations.
package servicecore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/claude-memory/claude-memory-go/pkg/compressor"
	"github.com/claude-memory/claude-memory-go/pkg/concurrent"
	"github.com/claude-memory/claude-memory-go/pkg/config"
	"github.com/claude-memory/claude-memory-go/pkg/cost"
	"github.com/claude-memory/claude-memory-go/pkg/environment"
	"github.com/claude-memory/claude-memory-go/pkg/fuser"
	"github.com/claude-memory/claude-memory-go/pkg/injector"
	"github.com/claude-memory/claude-memory-go/pkg/logging"
	"github.com/claude-memory/claude-memory-go/pkg/mcp"
	"github.com/claude-memory/claude-memory-go/pkg/memerr"
	"github.com/claude-memory/claude-memory-go/pkg/memstore/relational"
	"github.com/claude-memory/claude-memory-go/pkg/memstore/vector"
	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
	"github.com/claude-memory/claude-memory-go/pkg/modelgateway"
	"github.com/claude-memory/claude-memory-go/pkg/modelgateway/provider/gemini"
	"github.com/claude-memory/claude-memory-go/pkg/modelgateway/provider/openaicompat"
	"github.com/claude-memory/claude-memory-go/pkg/modelsdev"
	"github.com/claude-memory/claude-memory-go/pkg/projectmanager"
	"github.com/claude-memory/claude-memory-go/pkg/promptbuilder"
	"github.com/claude-memory/claude-memory-go/pkg/retriever"
	"github.com/claude-memory/claude-memory-go/pkg/textproc"
	"github.com/claude-memory/claude-memory-go/pkg/tokencount"
	"github.com/claude-memory/claude-memory-go/pkg/tokenlimiter"
)

const (
	healthLoopInterval      = 60 * time.Second
	metricsLoopInterval     = 30 * time.Second
	cleanupLoopInterval     = time.Hour
	costMonitorLoopInterval = time.Hour
	shutdownDrainWindow     = 30 * time.Second
)

// Core is ServiceCore: the sole owner of every collaborator below and the
// only component allowed to hold references to all of them at once.
type Core struct {
	cfg    *config.ServiceConfig
	logger *slog.Logger

	rel *relational.Store
	vec *vector.Store

	tracker *cost.Tracker
	monitor *cost.Monitor
	gateway *modelgateway.Gateway

	counter *tokencount.Counter
	tp      *textproc.Processor

	compressor *compressor.Compressor
	retriever  *retriever.Retriever
	fuser      *fuser.Fuser
	builder    *promptbuilder.Builder
	limiter    *tokenlimiter.Limiter
	injector   *injector.Injector
	projects   *projectmanager.Manager

	// convLocks serializes writes per conversation_id (spec §5: sequence
	// numbers must strictly increase within a conversation).
	convLocks *concurrent.Map[string, *sync.Mutex]

	mu         sync.Mutex
	errorCount int64
	lastError  string

	closeLog func() error
}

// Build performs ServiceCore's start-up sequencing steps 1-3 (spec
// §4.14): open the stores, construct every collaborator, and ensure the
// default project exists. It does not launch background loops; call Run
// for that.
func Build(cfg *config.ServiceConfig) (*Core, error) {
	logger, closeLog, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	rel, err := relational.Open(cfg.Relational.Path)
	if err != nil {
		return nil, fmt.Errorf("open relational store: %w", err)
	}

	vec, err := vector.Open(cfg.Vector.Path, vector.WithDimension(cfg.Vector.Dimension))
	if err != nil {
		rel.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	modelsStore, err := modelsdev.NewStore()
	if err != nil {
		rel.Close()
		vec.Close()
		return nil, fmt.Errorf("open models.dev pricing store: %w", err)
	}
	tracker := cost.NewTracker(modelsStore)

	budgets := cost.Budgets{
		DailyUSD:       cfg.Budgets.DailyUSD,
		EmbeddingUSD:   cfg.Budgets.EmbeddingUSD,
		FusionUSD:      cfg.Budgets.FusionUSD,
		CompressionUSD: cfg.Budgets.CompressionUSD,
	}
	monitor := cost.NewMonitor(tracker, budgets, func(a cost.Alert) {
		logger.Warn("budget alert", "bucket", a.Bucket, "level", a.Level, "used", a.Used, "budget", a.Budget, "suggestions", a.Suggestions)
	})

	gateway := modelgateway.New(tracker, modelgateway.WithLogger(logger))
	secrets := environment.NewDefaultProvider()
	if err := registerProviders(context.Background(), gateway, secrets, cfg.Providers); err != nil {
		rel.Close()
		vec.Close()
		return nil, fmt.Errorf("register providers: %w", err)
	}

	counter := tokencount.New()
	tp := textproc.New(counter)

	comp := compressor.New(
		compressorGateway{gw: gateway, monitor: monitor},
		tp,
		compressor.ModelTiers{Light: cfg.Models.LightTier, LightSmall: cfg.Models.LightTierSmall, Heavy: cfg.Models.HeavyTier},
		compressor.QualityThresholds{Default: cfg.Memory.QualityThreshold},
	)

	ret := retriever.New(vec, rel, retrieverGateway{gw: gateway, monitor: monitor}, tp, retriever.Config{
		EmbeddingModel:  cfg.Models.EmbeddingModel,
		RerankModel:     cfg.Models.RerankModel,
		DefaultTopK:     cfg.Retrieval.TopK,
		DefaultMinScore: cfg.Retrieval.MinScore,
		RerankTopK:      cfg.Retrieval.RerankTopK,
	})
	if err := ret.Init(); err != nil {
		rel.Close()
		vec.Close()
		return nil, fmt.Errorf("init retriever: %w", err)
	}

	fus, err := fuser.New(fuserGateway{gw: gateway, monitor: monitor}, fuser.Config{
		Enabled:    cfg.Memory.Mode != config.MemoryModeEmbeddingOnly,
		Model:      cfg.Models.FuserModel,
		TokenLimit: cfg.Memory.DefaultMaxTokens,
		PromptPath: cfg.PromptTemplatePath,
	})
	if err != nil {
		rel.Close()
		vec.Close()
		return nil, fmt.Errorf("build fuser: %w", err)
	}

	builder := promptbuilder.New(counter, promptbuilder.Config{GroupByType: true})

	limiter := tokenlimiter.New(counter, tp, tokenLimiterGateway{gw: gateway, monitor: monitor}, tokenlimiter.Config{
		CompressionEnabled: cfg.Memory.Mode != config.MemoryModeEmbeddingOnly,
		CompressionModel:   cfg.Models.CompressionModel,
	})

	inj := injector.New(
		injectorRetriever{r: ret},
		injectorFuser{f: fus},
		injectorPromptBuilder{b: builder},
		injectorTokenLimiter{l: limiter},
		reviewGateway{gw: gateway, monitor: monitor},
		injector.Config{
			FusionEnabled:       cfg.Memory.Mode != config.MemoryModeEmbeddingOnly,
			AutoTriggerKeywords: cfg.Retrieval.AutoFuseKeywords,
			DefaultTokenBudget:  cfg.Memory.DefaultMaxTokens,
			ReviewModel:         cfg.Models.HeavyTier,
		},
	)

	projects := projectmanager.New(rel, projectManagerRetriever{r: ret})
	if err := projects.EnsureDefault(context.Background()); err != nil {
		rel.Close()
		vec.Close()
		return nil, fmt.Errorf("ensure default project: %w", err)
	}

	return &Core{
		cfg:        cfg,
		logger:     logger,
		rel:        rel,
		vec:        vec,
		tracker:    tracker,
		monitor:    monitor,
		gateway:    gateway,
		counter:    counter,
		tp:         tp,
		compressor: comp,
		retriever:  ret,
		fuser:      fus,
		builder:    builder,
		limiter:    limiter,
		injector:   inj,
		projects:   projects,
		convLocks:  concurrent.NewMap[string, *sync.Mutex](),
		closeLog:   closeLog,
	}, nil
}

// buildLogger wires structured logging to a rotating file (spec §6's MCP
// stdio rule: stdout carries protocol frames only, so diagnostics never
// go there).
func buildLogger(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	path := cfg.FilePath
	if path == "" {
		path = "claude-memory-go.log"
	}
	maxSize := int64(cfg.MaxSizeMB) * 1024 * 1024
	if maxSize <= 0 {
		maxSize = logging.DefaultMaxSize
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = logging.DefaultMaxBackups
	}

	rf, err := logging.NewRotatingFile(path, logging.WithMaxSize(maxSize), logging.WithMaxBackups(maxBackups))
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	if cfg.Level != "" {
		_ = level.UnmarshalText([]byte(cfg.Level))
	}

	logger := slog.New(slog.NewJSONHandler(rf, &slog.HandlerOptions{Level: level}))
	return logger, rf.Close, nil
}

// registerProviders registers every configured provider with the gateway
// (spec §9's closed gemini/openrouter/siliconflow variant). API keys are
// resolved through environment.Provider's OS-env -> 1Password -> pass ->
// OS-keychain chain, not a bare os.Getenv, so operators can keep
// provider credentials out of plain environment variables entirely.
func registerProviders(ctx context.Context, gw *modelgateway.Gateway, secrets environment.Provider, providers map[string]config.ProviderConfig) error {
	for name, p := range providers {
		apiKey, _ := secrets.Get(ctx, p.APIKeyEnv)

		var provider modelgateway.Provider
		switch p.Type {
		case "gemini":
			provider = gemini.New(apiKey)
		case "openrouter", "siliconflow":
			baseURL := p.BaseURL
			provider = openaicompat.New(name, baseURL, apiKey)
		default:
			return fmt.Errorf("unknown provider type %q for provider %q", p.Type, name)
		}

		gw.Register(name, provider, p.Models, p.Priority)
	}
	return nil
}

// lockFor returns the mutex serializing writes to a given conversation.
func (c *Core) lockFor(conversationID string) *sync.Mutex {
	if l, ok := c.convLocks.Load(conversationID); ok {
		return l
	}
	l := &sync.Mutex{}
	c.convLocks.Store(conversationID, l)
	return l
}

func (c *Core) recordError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.errorCount++
	c.lastError = err.Error()
	c.mu.Unlock()
}

// StoreConversation implements store_conversation(conv) (spec §4.14):
// persist the conversation and its messages, determine the unit type,
// compress it into a MemoryUnit, and dual-store it with compensation.
func (c *Core) StoreConversation(ctx context.Context, conv *memtypes.Conversation, msgs []*memtypes.Message) (*memtypes.MemoryUnit, error) {
	lock := c.lockFor(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.rel.InsertConversation(ctx, conv); err != nil {
		c.recordError(err)
		return nil, err
	}
	if err := c.rel.AppendMessages(ctx, conv.ID, msgs); err != nil {
		c.recordError(err)
		return nil, err
	}

	messageCount := conv.MessageCount + len(msgs)
	var tokenCount int
	values := make([]memtypes.Message, len(msgs))
	for i, m := range msgs {
		values[i] = *m
		tokenCount += m.TokenCount
	}
	tokenCount += conv.TokenCount

	unitType := memtypes.UnitConversation
	if messageCount > 10 || tokenCount > 5000 {
		unitType = memtypes.UnitGlobalMU
	}

	unit, err := c.compressor.Compress(ctx, compressor.Request{
		ConversationID: conv.ID,
		ProjectID:      conv.ProjectID,
		UnitType:       unitType,
		Messages:       values,
	})
	if err != nil {
		c.recordError(err)
		return nil, fmt.Errorf("compress conversation %s: %w", conv.ID, err)
	}

	if err := c.storeMemoryWithTransaction(ctx, unit); err != nil {
		c.recordError(err)
		return nil, err
	}
	return unit, nil
}

// storeMemoryWithTransaction implements store_memory_with_transaction(unit)
// (spec §4.14): relational insert of the unit row, then the dual-store
// write via SemanticRetriever, compensating the relational row on
// failure of the latter.
func (c *Core) storeMemoryWithTransaction(ctx context.Context, unit *memtypes.MemoryUnit) error {
	tx, err := c.rel.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin memory unit transaction: %w", err)
	}
	if err := c.rel.InsertMemoryUnit(ctx, tx, unit); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert memory unit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit memory unit transaction: %w", err)
	}

	if err := c.retriever.StoreWithTransaction(ctx, unit); err != nil {
		if delErr := c.rel.DeleteMemoryUnit(ctx, nil, unit.ID); delErr != nil {
			c.logger.Error("compensating delete failed", "memory_unit_id", unit.ID, "error", delErr)
		}
		return fmt.Errorf("dual-store write: %w", err)
	}
	return nil
}

// memoryTypeOf maps a UnitType to the three-value memory_type vocabulary
// spec §6 exposes over MCP/HTTP ("Quick-MU" is subsumed by conversation,
// per DESIGN.md's open-question decision). Unit types outside the
// retained set echo their own name uppercased rather than collapsing
// into one of the three, since they are still legitimate search hits.
func memoryTypeOf(t memtypes.UnitType) string {
	switch t {
	case memtypes.UnitGlobalMU:
		return "GLOBAL"
	case memtypes.UnitConversation:
		return "QUICK"
	case memtypes.UnitArchive:
		return "ARCHIVE"
	default:
		return strings.ToUpper(string(t))
	}
}

// unitTypesFor maps the inbound memory_types filter back to UnitTypes.
// Unrecognized names are dropped rather than rejected (spec §6's summary
// leaves filtering lenient).
func unitTypesFor(memoryTypes []string) []memtypes.UnitType {
	var out []memtypes.UnitType
	for _, mt := range memoryTypes {
		switch strings.ToUpper(mt) {
		case "GLOBAL":
			out = append(out, memtypes.UnitGlobalMU)
		case "QUICK":
			out = append(out, memtypes.UnitConversation)
		case "ARCHIVE":
			out = append(out, memtypes.UnitArchive)
		}
	}
	return out
}

func toSearchResultItems(results []memtypes.SearchResult) []mcp.SearchResultItem {
	items := make([]mcp.SearchResultItem, len(results))
	for i, r := range results {
		items[i] = mcp.SearchResultItem{
			ID:              r.Unit.ID,
			Title:           r.Unit.Title,
			Summary:         r.Unit.Summary,
			RelevanceScore:  r.Score,
			MemoryType:      memoryTypeOf(r.Unit.UnitType),
			Keywords:        r.Unit.Keywords,
			CreatedAt:       r.Unit.CreatedAt.UTC().Format(time.RFC3339),
			MatchType:       string(r.MatchType),
			MatchedKeywords: r.MatchedKeywords,
		}
	}
	return items
}

// Search implements pkg/mcp.Searcher, scoped to one project.
func (c *Core) Search(ctx context.Context, req mcp.SearchRequest) (mcp.SearchResponse, error) {
	start := time.Now()
	results, err := c.retriever.Retrieve(ctx, retriever.Request{
		Query:      req.Query,
		ProjectID:  req.ProjectID,
		UnitTypes:  unitTypesFor(req.MemoryTypes),
		TopK:       req.Limit,
		MinScore:   req.MinScore,
		Rerank:     true,
		RerankTopK: req.Limit,
	})
	if err != nil {
		c.recordError(err)
		return mcp.SearchResponse{}, err
	}

	return mcp.SearchResponse{
		Results:      toSearchResultItems(results),
		TotalFound:   len(results),
		SearchTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// CrossProjectSearch implements pkg/mcp.CrossProjectSearcher: a distinct
// code path over every active project (spec supplement via
// ProjectManager.SearchAllProjects), not a thin single-project alias.
func (c *Core) CrossProjectSearch(ctx context.Context, req mcp.SearchRequest) (mcp.SearchResponse, error) {
	start := time.Now()
	results, err := c.projects.SearchAllProjects(ctx, req.Query, req.Limit)
	if err != nil {
		c.recordError(err)
		return mcp.SearchResponse{}, err
	}

	var filtered []memtypes.SearchResult
	for _, r := range results {
		if r.Score < req.MinScore {
			continue
		}
		filtered = append(filtered, r)
	}

	return mcp.SearchResponse{
		Results:      toSearchResultItems(filtered),
		TotalFound:   len(filtered),
		SearchTimeMS: time.Since(start).Milliseconds(),
		Metadata:     map[string]any{"scope": "all_projects"},
	}, nil
}

// injectionBudget scales the requested (or default) token budget by
// injection_mode (spec §6 names the enum but leaves its effect on budget
// unspecified; see DESIGN.md's open-question decision).
func (c *Core) injectionBudget(mode string, requested int) (budget int, forceFusion bool) {
	budget = requested
	if budget <= 0 {
		budget = c.cfg.Memory.DefaultMaxTokens
	}
	switch mode {
	case "conservative":
		return budget / 2, false
	case "comprehensive":
		return budget + budget/2, true
	default:
		return budget, false
	}
}

// Inject implements pkg/mcp.Injector.
func (c *Core) Inject(ctx context.Context, req mcp.InjectRequest) (mcp.InjectResponse, error) {
	budget, forceFusion := c.injectionBudget(req.InjectionMode, req.MaxTokens)

	resp, err := c.injector.Inject(ctx, injector.Request{
		Query:          req.QueryText,
		ProjectID:      req.ProjectID,
		ConversationID: req.ConversationID,
		MaxTokens:      budget,
		ForceFusion:    forceFusion,
	})
	if err != nil {
		c.recordError(err)
		return mcp.InjectResponse{}, err
	}

	enhanced := req.OriginalPrompt
	if resp.Content != "" {
		enhanced = req.OriginalPrompt + "\n\n" + resp.Content
	}

	return mcp.InjectResponse{
		EnhancedPrompt:   enhanced,
		InjectedMemories: resp.MemoryCount,
		TokensUsed:       resp.TokenCount,
		ProcessingTimeMS: int64(0),
		Metadata:         resp.Metadata,
	}, nil
}

// Review runs the manual "/memory review" long-form retrospective path
// (spec §4.13), bypassing Inject's fuse/build/limit pipeline.
func (c *Core) Review(ctx context.Context, projectID, conversationID string) (injector.ReviewResponse, error) {
	resp, err := c.injector.Review(ctx, projectID, conversationID)
	c.recordError(err)
	return resp, err
}

// Status implements pkg/mcp.StatusProvider.
func (c *Core) Status(context.Context) mcp.StatusResponse {
	c.mu.Lock()
	errorCount, lastError := c.errorCount, c.lastError
	c.mu.Unlock()

	return mcp.StatusResponse{
		Components: map[string]any{
			"relational_store": "connected",
			"vector_store":     "connected",
			"model_gateway":    "connected",
		},
		Metrics: map[string]any{
			"daily_cost":        c.tracker.DailyTotal(time.Now().UTC().Format("2006-01-02")),
			"total_cost":        c.tracker.TotalCost(),
			"degradation_level": c.monitor.DegradationLevel(),
			"error_count":       errorCount,
			"last_error":        lastError,
		},
	}
}

// HealthCheck implements pkg/mcp.HealthChecker.
func (c *Core) HealthCheck(ctx context.Context, detailed bool) mcp.HealthResponse {
	var issues []string
	componentHealth := map[string]any{}

	if _, err := c.rel.ListActiveProjects(ctx); err != nil {
		issues = append(issues, fmt.Sprintf("relational_store: %v", err))
		componentHealth["relational_store"] = "unhealthy"
	} else {
		componentHealth["relational_store"] = "healthy"
	}

	if c.vec.Dim() <= 0 {
		issues = append(issues, "vector_store: invalid dimension")
		componentHealth["vector_store"] = "unhealthy"
	} else {
		componentHealth["vector_store"] = "healthy"
	}

	degradation := c.monitor.DegradationLevel()
	switch degradation {
	case 2:
		componentHealth["cost_monitor"] = "degraded"
		issues = append(issues, "cost_monitor: budget exceeded, fusion and compression disabled")
	case 1:
		componentHealth["cost_monitor"] = "degraded"
		issues = append(issues, "cost_monitor: budget critical, compression disabled")
	default:
		componentHealth["cost_monitor"] = "healthy"
	}

	status := "healthy"
	switch {
	case len(issues) == 0:
		status = "healthy"
	case componentHealth["relational_store"] == "unhealthy" || componentHealth["vector_store"] == "unhealthy":
		status = "unhealthy"
	default:
		status = "degraded"
	}

	resp := mcp.HealthResponse{HealthStatus: status, Issues: issues}
	if detailed {
		resp.ComponentHealth = componentHealth
	}
	return resp
}

// Run launches ServiceCore's background loops (spec §4.14 step 4),
// installs SIGINT/SIGTERM handlers (step 5), and blocks until the context
// or a signal ends the run. On shutdown, in-flight loop iterations get a
// 30s drain window before the stores are closed.
func (c *Core) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	loops := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context)
	}{
		{"health", healthLoopInterval, c.runHealthLoop},
		{"metrics", metricsLoopInterval, c.runMetricsLoop},
		{"memory-cleanup", cleanupLoopInterval, c.runCleanupLoop},
		{"cost-monitor", costMonitorLoopInterval, c.runCostMonitorLoop},
	}
	for _, l := range loops {
		wg.Add(1)
		go func(name string, interval time.Duration, fn func(context.Context)) {
			defer wg.Done()
			c.runLoop(ctx, name, interval, fn)
		}(l.name, l.interval, l.fn)
	}

	<-ctx.Done()
	c.logger.Info("shutdown signal received, draining background loops")

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(shutdownDrainWindow):
		c.logger.Warn("shutdown drain window elapsed before loops finished")
	}

	return c.Close()
}

// runLoop ticks fn every interval until ctx is canceled; it returns as soon
// as cancellation is observed, without a final iteration.
func (c *Core) runLoop(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (c *Core) runHealthLoop(ctx context.Context) {
	resp := c.HealthCheck(ctx, false)
	if resp.HealthStatus != "healthy" {
		c.logger.Warn("health check degraded", "status", resp.HealthStatus, "issues", resp.Issues)
	}
}

func (c *Core) runMetricsLoop(ctx context.Context) {
	c.mu.Lock()
	errorCount := c.errorCount
	c.mu.Unlock()
	c.logger.Info("metrics", "daily_cost", c.tracker.DailyTotal(time.Now().UTC().Format("2006-01-02")), "error_count", errorCount)
}

// runCleanupLoop implements background memory cleanup (spec §4.14): list
// expired units, delete each via SemanticRetriever (vector-first,
// idempotent per spec §5).
func (c *Core) runCleanupLoop(ctx context.Context) {
	ids, err := c.rel.ListExpiredMemoryUnits(ctx, time.Now())
	if err != nil {
		c.logger.Error("list expired memory units", "error", err)
		return
	}
	for _, id := range ids {
		if err := c.retriever.Delete(ctx, id); err != nil {
			c.logger.Error("delete expired memory unit", "memory_unit_id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		c.logger.Info("memory cleanup", "expired_count", len(ids))
	}
}

func (c *Core) runCostMonitorLoop(context.Context) {
	c.monitor.Tick()
}

// Close releases every long-lived resource ServiceCore owns.
func (c *Core) Close() error {
	var errs []error
	if err := c.rel.Close(); err != nil {
		errs = append(errs, fmt.Errorf("%w: close relational store: %v", memerr.ErrDatabase, err))
	}
	if err := c.vec.Close(); err != nil {
		errs = append(errs, fmt.Errorf("%w: close vector store: %v", memerr.ErrDatabase, err))
	}
	if c.closeLog != nil {
		if err := c.closeLog(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("servicecore close: %v", errs)
}

// newConversationID is exposed for callers (collector, HTTP API) that
// need to mint a conversation id before the first StoreConversation call.
func newConversationID() string { return uuid.NewString() }
