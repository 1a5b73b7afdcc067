// Package retriever implements SemanticRetriever (spec §4.9): the
// dual-store transactional writer, hybrid semantic+keyword retrieval with
// score fusion, expiry filtering, and rerank.
package retriever

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude-memory/claude-memory-go/pkg/embedcache"
	"github.com/claude-memory/claude-memory-go/pkg/memerr"
	"github.com/claude-memory/claude-memory-go/pkg/memstore/relational"
	"github.com/claude-memory/claude-memory-go/pkg/memstore/vector"
	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
	"github.com/claude-memory/claude-memory-go/pkg/textproc"
)

// Gateway is the narrow embed/rerank surface this package needs from
// ModelGateway; it is independent of the gateway's retry/fallback
// internals, the same pattern pkg/compressor uses.
type Gateway interface {
	Embed(ctx context.Context, model, text string) (EmbedResult, error)
	Rerank(ctx context.Context, model, query string, docs []string, topK int) (RerankResult, error)
}

type EmbedResult struct {
	Vector []float32
	Dim    int
	Cost   float64
}

type RerankResult struct {
	Scores []float64
	Cost   float64
}

// Strategy selects which retrieval path(s) retrieve() runs.
type Strategy string

const (
	StrategyHybrid       Strategy = "hybrid"
	StrategySemanticOnly Strategy = "semantic_only"
	StrategyKeywordOnly  Strategy = "keyword_only"
)

// Config holds the model ids and defaults spec §4.9 parameterizes.
type Config struct {
	EmbeddingModel  string
	RerankModel     string
	DefaultTopK     int
	DefaultMinScore float64
	RerankTopK      int
}

func (c Config) topK() int {
	if c.DefaultTopK > 0 {
		return c.DefaultTopK
	}
	return 20
}

func (c Config) rerankTopK() int {
	if c.RerankTopK > 0 {
		return c.RerankTopK
	}
	return 5
}

// Retriever is SemanticRetriever: the only writer to VectorStore and the
// embeddings table (spec §3 ownership rule).
type Retriever struct {
	vec *vector.Store
	rel *relational.Store
	gw  Gateway
	tp  *textproc.Processor
	cfg Config

	embedCache *embedcache.Cache

	mu          sync.Mutex
	resultCache map[string]resultCacheEntry
	resultOrder []string
}

const resultCacheCapacity = 500

type resultCacheEntry struct {
	results []memtypes.SearchResult
}

func New(vec *vector.Store, rel *relational.Store, gw Gateway, tp *textproc.Processor, cfg Config) *Retriever {
	return &Retriever{
		vec:         vec,
		rel:         rel,
		gw:          gw,
		tp:          tp,
		cfg:         cfg,
		embedCache:  embedcache.New(),
		resultCache: make(map[string]resultCacheEntry),
	}
}

// Init ensures the vector collection exists at the configured dimension
// (spec §4.9: "Ensure VectorStore collection exists").
func (r *Retriever) Init() error {
	return r.vec.EnsureCollection(vector.CollectionName, r.vec.Dim(), "cosine")
}

func (r *Retriever) embed(ctx context.Context, text string) ([]float32, error) {
	key := embedcache.Key(text)
	if e, ok := r.embedCache.Get(key); ok {
		return e.Vector, nil
	}
	res, err := r.gw.Embed(ctx, r.cfg.EmbeddingModel, text)
	if err != nil {
		return nil, err
	}
	r.embedCache.Put(key, embedcache.Entry{Vector: res.Vector, Model: r.cfg.EmbeddingModel})
	return res.Vector, nil
}

// StoreWithTransaction is the dual-store write protocol. The caller must
// already have inserted unit's relational row; this writer only adds the
// embedding record and the vector point, with compensating rollback.
func (r *Retriever) StoreWithTransaction(ctx context.Context, unit *memtypes.MemoryUnit) error {
	text := r.tp.Normalize(unit.Summary + " " + unit.Content)
	vec, err := r.embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed memory unit: %w", err)
	}
	if len(vec) != r.vec.Dim() {
		return fmt.Errorf("%w: embedding dimension %d does not match collection dimension %d", memerr.ErrValidation, len(vec), r.vec.Dim())
	}

	payload := payloadFor(unit)
	if err := r.vec.Upsert(ctx, unit.ID, vec, payload); err != nil {
		return fmt.Errorf("vector upsert: %w", err)
	}

	tx, err := r.rel.Begin(ctx)
	if err != nil {
		_ = r.vec.Delete(ctx, []string{unit.ID})
		return fmt.Errorf("begin embedding transaction: %w", err)
	}

	emb := &memtypes.Embedding{
		ID:           uuid.NewString(),
		MemoryUnitID: unit.ID,
		ModelName:    r.cfg.EmbeddingModel,
		Dimension:    len(vec),
		Vector:       vec,
	}
	if err := r.rel.InsertEmbeddingRecord(ctx, tx, emb); err != nil {
		tx.Rollback()
		_ = r.vec.Delete(ctx, []string{unit.ID})
		return fmt.Errorf("insert embedding record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		_ = r.vec.Delete(ctx, []string{unit.ID})
		return fmt.Errorf("commit embedding transaction: %w", err)
	}
	return nil
}

// Delete removes a unit's vector point and relational rows. Vector delete
// runs first and is idempotent, so a retry after a crash mid-delete is
// safe (spec §4.9).
func (r *Retriever) Delete(ctx context.Context, id string) error {
	if err := r.vec.Delete(ctx, []string{id}); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	tx, err := r.rel.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	if err := r.rel.DeleteMemoryUnit(ctx, tx, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete memory unit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete transaction: %w", err)
	}
	return nil
}

// Request is retrieve()'s input.
type Request struct {
	Query          string
	ProjectID      string
	ConversationID string
	UnitTypes      []memtypes.UnitType
	TopK           int
	MinScore       float64
	IncludeExpired bool
	Strategy       Strategy
	Rerank         bool
	RerankTopK     int
}

func (req Request) normalized() Request {
	if req.TopK <= 0 {
		req.TopK = 20
	}
	if req.Strategy == "" {
		req.Strategy = StrategyHybrid
	}
	if req.RerankTopK <= 0 {
		req.RerankTopK = 5
	}
	return req
}

// Retrieve runs the strategy-selected search path(s), applies the expiry
// filter, optionally reranks, and returns the final ordered results.
func (r *Retriever) Retrieve(ctx context.Context, req Request) ([]memtypes.SearchResult, error) {
	req = req.normalized()

	key := cacheKeyFor(req)
	if cached, ok := r.getCache(key); ok {
		return cached, nil
	}

	var semantic, keyword []memtypes.SearchResult
	var err error

	switch req.Strategy {
	case StrategySemanticOnly:
		semantic, err = r.semanticSearch(ctx, req)
	case StrategyKeywordOnly:
		keyword, err = r.keywordSearch(ctx, req)
	default:
		var semErr, kwErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			semantic, semErr = r.semanticSearch(ctx, req)
		}()
		go func() {
			defer wg.Done()
			keyword, kwErr = r.keywordSearch(ctx, req)
		}()
		wg.Wait()
		if semErr != nil {
			err = semErr
		} else if kwErr != nil {
			err = kwErr
		}
	}
	if err != nil {
		return nil, err
	}

	merged := mergeResults(semantic, keyword, req.Strategy)
	merged = filterExpiry(merged, req.IncludeExpired)

	if req.Rerank && len(merged) > 0 {
		merged = r.rerank(ctx, req.Query, merged, req.RerankTopK)
	} else {
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
		if len(merged) > req.TopK {
			merged = merged[:req.TopK]
		}
	}

	r.putCache(key, merged)
	return merged, nil
}

func (r *Retriever) semanticSearch(ctx context.Context, req Request) ([]memtypes.SearchResult, error) {
	vec, err := r.embed(ctx, r.tp.Normalize(req.Query))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	filters := buildFilters(req)
	limit := 2 * req.TopK
	threshold := 0.8 * req.MinScore

	points, err := r.vec.Search(ctx, vec, limit, filters, threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	units, err := r.rel.GetMemoryUnits(ctx, ids, req.IncludeExpired)
	if err != nil {
		return nil, fmt.Errorf("hydrate memory units: %w", err)
	}
	byID := make(map[string]*memtypes.MemoryUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}

	var out []memtypes.SearchResult
	for _, p := range points {
		u, ok := byID[p.ID]
		if !ok {
			// Vector hit with no matching relational row: dropped silently
			// (spec §5's atomicity-to-readers rule).
			continue
		}
		out = append(out, memtypes.SearchResult{Unit: u, Score: p.Score, MatchType: memtypes.MatchSemantic})
	}
	return out, nil
}

func (r *Retriever) keywordSearch(ctx context.Context, req Request) ([]memtypes.SearchResult, error) {
	keywords := r.tp.ExtractKeywords(req.Query, 20)
	if len(keywords) == 0 {
		return nil, nil
	}

	candidates := make(map[string]*memtypes.MemoryUnit)
	for _, kw := range keywords {
		units, err := r.rel.SearchByKeyword(ctx, req.ProjectID, kw, req.IncludeExpired, 2*req.TopK)
		if err != nil {
			return nil, fmt.Errorf("keyword search %q: %w", kw, err)
		}
		for _, u := range units {
			candidates[u.ID] = u
		}
	}

	var out []memtypes.SearchResult
	for _, u := range candidates {
		if !typeAllowed(u.UnitType, req.UnitTypes) {
			continue
		}
		if req.ConversationID != "" && (u.ConversationID == nil || *u.ConversationID != req.ConversationID) {
			continue
		}
		score, matched := keywordScore(u, keywords)
		if score <= 0 {
			continue
		}
		out = append(out, memtypes.SearchResult{Unit: u, Score: score, MatchType: memtypes.MatchKeyword, MatchedKeywords: matched})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit := 2 * req.TopK; len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// keywordScore implements spec §4.9's weighted formula: a direct hit in
// unit.Keywords counts as a full match, a title substring counts 0.5, a
// summary substring counts 0.3; the sum over query keywords is divided by
// the keyword count and capped at 1.
func keywordScore(u *memtypes.MemoryUnit, queryKeywords []string) (float64, []string) {
	lowerKeywords := make(map[string]bool, len(u.Keywords))
	for _, k := range u.Keywords {
		lowerKeywords[strings.ToLower(k)] = true
	}
	title := strings.ToLower(u.Title)
	summary := strings.ToLower(u.Summary)

	var sum float64
	var matched []string
	for _, kw := range queryKeywords {
		lkw := strings.ToLower(kw)
		switch {
		case lowerKeywords[lkw]:
			sum += 1.0
			matched = append(matched, kw)
		case strings.Contains(title, lkw):
			sum += 0.5
			matched = append(matched, kw)
		case strings.Contains(summary, lkw):
			sum += 0.3
			matched = append(matched, kw)
		}
	}
	if len(queryKeywords) == 0 {
		return 0, nil
	}
	score := sum / float64(len(queryKeywords))
	if score > 1 {
		score = 1
	}
	return score, matched
}

func typeAllowed(t memtypes.UnitType, allowed []memtypes.UnitType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

// mergeResults joins semantic and keyword result sets by memory unit id,
// boosting overlaps (spec §4.9 hybrid rule).
func mergeResults(semantic, keyword []memtypes.SearchResult, strategy Strategy) []memtypes.SearchResult {
	if strategy == StrategySemanticOnly {
		return semantic
	}
	if strategy == StrategyKeywordOnly {
		return keyword
	}

	byID := make(map[string]*memtypes.SearchResult, len(semantic)+len(keyword))
	var order []string
	for _, s := range semantic {
		cp := s
		byID[s.Unit.ID] = &cp
		order = append(order, s.Unit.ID)
	}
	for _, k := range keyword {
		if existing, ok := byID[k.Unit.ID]; ok {
			boosted := existing.Score + 0.3*k.Score
			if boosted > 1 {
				boosted = 1
			}
			existing.Score = boosted
			existing.MatchType = memtypes.MatchHybrid
			existing.MatchedKeywords = append(existing.MatchedKeywords, k.MatchedKeywords...)
			continue
		}
		cp := k
		byID[k.Unit.ID] = &cp
		order = append(order, k.Unit.ID)
	}

	out := make([]memtypes.SearchResult, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func filterExpiry(results []memtypes.SearchResult, includeExpired bool) []memtypes.SearchResult {
	if includeExpired {
		return results
	}
	now := time.Now()
	out := results[:0]
	for _, r := range results {
		if r.Unit.Expired(now) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (r *Retriever) rerank(ctx context.Context, query string, results []memtypes.SearchResult, topK int) []memtypes.SearchResult {
	docs := make([]string, len(results))
	for i, res := range results {
		docs[i] = res.Unit.Summary + " " + res.Unit.Content
	}

	rr, err := r.gw.Rerank(ctx, r.cfg.RerankModel, query, docs, topK)
	if err == nil && len(rr.Scores) == len(results) {
		for i := range results {
			results[i].Score = rr.Scores[i]
		}
		sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
		if len(results) > topK {
			results = results[:topK]
		}
		return results
	}

	// Fallback: rule-based blend (spec §4.9).
	now := time.Now()
	for i := range results {
		ageDays := now.Sub(results[i].Unit.CreatedAt).Hours() / 24
		timeDecay := math.Max(0.1, 1-ageDays/30)
		importance := importanceOf(results[i].Unit)
		results[i].Score = 0.6*results[i].Score + 0.3*timeDecay + 0.1*importance
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func importanceOf(u *memtypes.MemoryUnit) float64 {
	if u.Metadata == nil {
		return 0
	}
	if v, ok := u.Metadata["importance_score"].(float64); ok {
		return v
	}
	return 0
}

func buildFilters(req Request) []vector.Filter {
	var filters []vector.Filter
	if len(req.UnitTypes) > 0 {
		in := make([]any, len(req.UnitTypes))
		for i, t := range req.UnitTypes {
			in[i] = string(t)
		}
		filters = append(filters, vector.Filter{Field: "unit_type", In: in})
	}
	if req.ConversationID != "" {
		filters = append(filters, vector.Filter{Field: "conversation_id", Equals: req.ConversationID})
	}
	if !req.IncludeExpired {
		now := float64(time.Now().Unix())
		filters = append(filters, vector.Filter{Field: "expires_at", NullOrAtLeast: &now})
	}
	return filters
}

func payloadFor(u *memtypes.MemoryUnit) memtypes.VectorPayload {
	var convID string
	if u.ConversationID != nil {
		convID = *u.ConversationID
	}
	return memtypes.VectorPayload{
		MemoryUnitID:    u.ID,
		ConversationID:  convID,
		ProjectID:       u.ProjectID,
		UnitType:        u.UnitType,
		Title:           u.Title,
		Keywords:        u.Keywords,
		TokenCount:      u.TokenCount,
		CreatedAt:       u.CreatedAt.Unix(),
		ExpiresAt:       vector.PayloadExpiresAtEpoch(u.ExpiresAt),
		ImportanceScore: importanceOf(u),
		QualityScore:    qualityOf(u),
	}
}

func qualityOf(u *memtypes.MemoryUnit) float64 {
	if u.Metadata == nil {
		return 0
	}
	if v, ok := u.Metadata["quality_score"].(float64); ok {
		return v
	}
	return 0
}

func cacheKeyFor(req Request) string {
	ids := make([]string, len(req.UnitTypes))
	for i, t := range req.UnitTypes {
		ids[i] = string(t)
	}
	sort.Strings(ids)
	raw := fmt.Sprintf("%s|%s|%s|%d|%.3f|%t|%s|%t|%d|%s",
		req.Query, req.ProjectID, req.ConversationID, req.TopK, req.MinScore,
		req.IncludeExpired, req.Strategy, req.Rerank, req.RerankTopK, strings.Join(ids, ","))
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (r *Retriever) getCache(key string) ([]memtypes.SearchResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.resultCache[key]
	return e.results, ok
}

func (r *Retriever) putCache(key string, results []memtypes.SearchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resultCache[key]; !exists && len(r.resultCache) >= resultCacheCapacity {
		evict := len(r.resultOrder)/2 + 1
		for i := 0; i < evict && len(r.resultOrder) > 0; i++ {
			delete(r.resultCache, r.resultOrder[0])
			r.resultOrder = r.resultOrder[1:]
		}
	}
	if _, exists := r.resultCache[key]; !exists {
		r.resultOrder = append(r.resultOrder, key)
	}
	r.resultCache[key] = resultCacheEntry{results: results}
}
