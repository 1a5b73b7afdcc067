// Package compressor implements SemanticCompressor (spec §4.8): turns a
// Conversation into a compressed, searchable MemoryUnit via ModelGateway,
// with quality evaluation, light/heavy escalation, caching, and batch
// processing.
package compressor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
	"github.com/claude-memory/claude-memory-go/pkg/textproc"
)

// Gateway is the subset of ModelGateway.Complete this package needs.
type Gateway interface {
	Complete(ctx context.Context, model string, messages []GatewayMessage, params GatewayParams) (GatewayResult, error)
}

// GatewayMessage/Params/Result mirror pkg/modelgateway's types without
// importing that package, keeping SemanticCompressor independent of the
// gateway's retry/fallback internals (it only needs complete()).
type GatewayMessage struct {
	Role    string
	Content string
}

type GatewayParams struct {
	Temperature float64
	MaxTokens   int
}

type GatewayResult struct {
	Content string
	Usage   struct {
		InputTokens  int64
		OutputTokens int64
	}
	Cost float64
}

// ModelTiers names the light/heavy model ids to use per §4.8's selection
// rule.
type ModelTiers struct {
	Light        string
	LightSmall   string // used when preprocessed token count < 2000
	Heavy        string
}

// QualityThresholds overrides the default 0.7 quality gate per unit_type.
type QualityThresholds struct {
	Default   float64
	ByType    map[memtypes.UnitType]float64
}

func (q QualityThresholds) For(t memtypes.UnitType) float64 {
	if v, ok := q.ByType[t]; ok {
		return v
	}
	if q.Default > 0 {
		return q.Default
	}
	return 0.7
}

// Request is compress()'s input.
type Request struct {
	ConversationID  string
	ProjectID       string
	UnitType        memtypes.UnitType
	Messages        []memtypes.Message
	MaxSummaryChars int
}

type cacheKey string

func keyFor(req Request, threshold float64) cacheKey {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.3f|%d", req.ConversationID, req.UnitType, threshold, req.MaxSummaryChars)))
	return cacheKey(hex.EncodeToString(sum[:]))
}

type cacheEntry struct {
	unit *memtypes.MemoryUnit
}

// Compressor is SemanticCompressor.
type Compressor struct {
	gateway    Gateway
	tp         *textproc.Processor
	tiers      ModelTiers
	thresholds QualityThresholds

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
	order []cacheKey

	cacheCapacity int
	batchSize     int
}

func New(gateway Gateway, tp *textproc.Processor, tiers ModelTiers, thresholds QualityThresholds) *Compressor {
	return &Compressor{
		gateway:       gateway,
		tp:            tp,
		tiers:         tiers,
		thresholds:    thresholds,
		cache:         make(map[cacheKey]cacheEntry),
		cacheCapacity: 1000,
		batchSize:     50,
	}
}

// preprocess concatenates messages as "[ROLE]: content", skipping blanks.
func (c *Compressor) preprocess(messages []memtypes.Message) string {
	var b strings.Builder
	for _, m := range messages {
		clean := c.tp.Normalize(m.Content)
		if clean == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s]: %s\n", strings.ToUpper(string(m.MessageType)), clean)
	}
	return b.String()
}

// selectModel implements §4.8's model-selection rule.
func (c *Compressor) selectModel(unitType memtypes.UnitType, tokenCount int) string {
	switch unitType {
	case memtypes.UnitDecision, memtypes.UnitDocumentation:
		return c.tiers.Heavy
	case memtypes.UnitConversation, memtypes.UnitErrorLog:
		if tokenCount < 2000 && c.tiers.LightSmall != "" {
			return c.tiers.LightSmall
		}
		return c.tiers.Light
	default: // code_snippet, archive
		return c.tiers.Light
	}
}

func (c *Compressor) isHeavy(model string) bool { return model == c.tiers.Heavy }

type compressedFields struct {
	Title         string         `json:"title"`
	Summary       string         `json:"summary"`
	Content       string         `json:"content"`
	KeyTopics     []string       `json:"key_topics"`
	Importance    float64        `json:"importance_score"`
	Metadata      map[string]any `json:"metadata"`
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

func parseCompressed(raw string, sourceText string) compressedFields {
	var out compressedFields
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out
	}
	if m := jsonObjectRe.FindString(raw); m != "" {
		if err := json.Unmarshal([]byte(m), &out); err == nil {
			return out
		}
	}
	// Synthesize a minimal shape from the first N chars of source text.
	n := 200
	if len(sourceText) < n {
		n = len(sourceText)
	}
	return compressedFields{
		Title:   truncateRunes(sourceText, 50),
		Summary: sourceText[:n],
		Content: sourceText,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

const prompt = `You will be given a conversation transcript. Reply with a single JSON object:
{"title": "<=50 chars", "summary": "<=%d chars", "content": "<full reconstructed content>", "key_topics": ["..."], "importance_score": 0.0, "metadata": {"main_intent": "...", "outcome": "...", "action_items": ["..."]}}

Transcript:
%s`

// quality implements §4.8's weighted quality formula.
func (c *Compressor) quality(fields compressedFields, ratio float64) float64 {
	lengthScore := tailOffScore(float64(len(fields.Summary)), 100, 2000)
	meaningfulScore := 0.3
	if c.tp.IsMeaningful(fields.Summary) {
		meaningfulScore = 1.0
	}
	keywordScore := min1(float64(len(fields.KeyTopics)) / 5.0)
	ratioScore := tailOffScore(ratio, 0.1, 0.5)

	structural := 0.0
	if len(strings.TrimSpace(fields.Title)) >= 5 {
		structural += 0.3
	}
	if len(fields.Summary) >= 50 {
		structural += 0.3
	}
	if len(fields.KeyTopics) > 0 {
		structural += 0.3
	}

	return 0.2*lengthScore + 0.3*meaningfulScore + 0.15*keywordScore + 0.2*ratioScore + 0.15*structural
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

// tailOffScore is 1 within [lo, hi], linearly falling off outside.
func tailOffScore(v, lo, hi float64) float64 {
	switch {
	case v >= lo && v <= hi:
		return 1
	case v < lo:
		if lo == 0 {
			return 0
		}
		return min1(v / lo)
	default:
		span := hi
		if span == 0 {
			return 0
		}
		over := v - hi
		score := 1 - over/span
		if score < 0 {
			return 0
		}
		return score
	}
}

// Compress turns a Request into a MemoryUnit, with caching and light→heavy
// escalation on low quality.
func (c *Compressor) Compress(ctx context.Context, req Request) (*memtypes.MemoryUnit, error) {
	threshold := c.thresholds.For(req.UnitType)
	key := keyFor(req, threshold)

	c.mu.Lock()
	if hit, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return hit.unit, nil
	}
	c.mu.Unlock()

	source := c.preprocess(req.Messages)
	sourceTokens := c.tp.CountTokens(source)

	model := c.selectModel(req.UnitType, sourceTokens)
	attempts := []string{model}

	fields, quality, err := c.runOnce(ctx, model, source, req)
	if err != nil {
		return nil, err
	}

	if quality < threshold && !c.isHeavy(model) && c.tiers.Heavy != "" {
		heavyFields, heavyQuality, err := c.runOnce(ctx, c.tiers.Heavy, source, req)
		if err == nil {
			attempts = append(attempts, c.tiers.Heavy)
			if heavyQuality >= quality {
				fields, quality = heavyFields, heavyQuality
			}
		}
	}

	now := time.Now().UTC()
	unit := &memtypes.MemoryUnit{
		ID:         uuid.NewString(),
		ProjectID:  req.ProjectID,
		UnitType:   req.UnitType,
		Title:      truncateBytes(fields.Title, 500),
		Summary:    fields.Summary,
		Content:    fields.Content,
		Keywords:   dedupKeywordsCaseInsensitive(fields.KeyTopics),
		TokenCount: c.tp.CountTokens(fields.Content),
		CreatedAt:  now,
		UpdatedAt:  now,
		IsActive:   true,
		Metadata: map[string]any{
			"quality_score":      quality,
			"importance_score":   fields.Importance,
			"model_used":         attempts[len(attempts)-1],
			"models_attempted":   attempts,
			"compression_ratio":  ratioOf(len(source), len(fields.Content)),
		},
	}
	if req.ConversationID != "" {
		cid := req.ConversationID
		unit.ConversationID = &cid
	}
	if req.UnitType == memtypes.UnitArchive && unit.ExpiresAt == nil {
		exp := now.Add(30 * 24 * time.Hour)
		unit.ExpiresAt = &exp
	}

	c.putCache(key, unit)
	return unit, nil
}

func dedupKeywordsCaseInsensitive(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range in {
		lower := strings.ToLower(k)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, k)
		if len(out) >= 10 {
			break
		}
	}
	return out
}

func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func ratioOf(sourceLen, resultLen int) float64 {
	if sourceLen == 0 {
		return 0
	}
	return float64(resultLen) / float64(sourceLen)
}

func (c *Compressor) runOnce(ctx context.Context, model, source string, req Request) (compressedFields, float64, error) {
	maxLen := req.MaxSummaryChars
	if maxLen == 0 {
		maxLen = 500
	}
	res, err := c.gateway.Complete(ctx, model, []GatewayMessage{
		{Role: "user", Content: fmt.Sprintf(prompt, maxLen, source)},
	}, GatewayParams{Temperature: 0.2, MaxTokens: 1500})
	if err != nil {
		return compressedFields{}, 0, err
	}

	fields := parseCompressed(res.Content, source)
	ratio := ratioOf(len(source), len(fields.Content))
	q := c.quality(fields, ratio)
	return fields, q, nil
}

func (c *Compressor) putCache(key cacheKey, unit *memtypes.MemoryUnit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache[key]; !exists && len(c.cache) >= c.cacheCapacity {
		evict := len(c.order)/2 + 1
		for i := 0; i < evict && len(c.order) > 0; i++ {
			delete(c.cache, c.order[0])
			c.order = c.order[1:]
		}
	}
	c.cache[key] = cacheEntry{unit: unit}
	c.order = append(c.order, key)
}

// BatchRequest/Result support compress_batch with per-item failure isolation.
type BatchResult struct {
	Unit  *memtypes.MemoryUnit
	Err   error
	Index int
}

// CompressBatch processes reqs in groups of the configured batch size,
// isolating per-item failures so one bad conversation doesn't fail the rest.
func (c *Compressor) CompressBatch(ctx context.Context, reqs []Request) []BatchResult {
	out := make([]BatchResult, len(reqs))
	for start := 0; start < len(reqs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(reqs) {
			end = len(reqs)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				unit, err := c.Compress(ctx, reqs[i])
				out[i] = BatchResult{Unit: unit, Err: err, Index: i}
			}(i)
		}
		wg.Wait()
	}
	return out
}

// GlobalReview compresses each conversation briefly, then runs a single
// documentation-tier compression over the concatenated summaries plus
// statistics (spec §4.8's "Global review").
func (c *Compressor) GlobalReview(ctx context.Context, projectID string, conversations []Request, timeframeDays int) (*memtypes.MemoryUnit, error) {
	results := c.CompressBatch(ctx, conversations)

	var summaries []string
	keywordFreq := make(map[string]int)
	for _, r := range results {
		if r.Err != nil || r.Unit == nil {
			continue
		}
		summaries = append(summaries, r.Unit.Summary)
		for _, k := range r.Unit.Keywords {
			keywordFreq[strings.ToLower(k)]++
		}
	}

	topKeywords := topN(keywordFreq, 10)

	aggregate := fmt.Sprintf(
		"Global review over %d conversations (last %d days).\nTop keywords: %s\n\n%s",
		len(conversations), timeframeDays, strings.Join(topKeywords, ", "), strings.Join(summaries, "\n---\n"),
	)

	unit, err := c.Compress(ctx, Request{
		ProjectID: projectID,
		UnitType:  memtypes.UnitGlobalMU,
		Messages:  []memtypes.Message{{MessageType: memtypes.MessageSystem, Content: aggregate}},
	})
	if err != nil {
		return nil, err
	}
	unit.Metadata["review_type"] = "global_memory_review"
	unit.Metadata["timeframe_days"] = timeframeDays
	unit.Metadata["conversations_count"] = len(conversations)
	return unit, nil
}

func topN(freq map[string]int, n int) []string {
	type kv struct {
		k string
		v int
	}
	var list []kv
	for k, v := range freq {
		list = append(list, kv{k, v})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].v > list[j].v })
	if len(list) > n {
		list = list[:n]
	}
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.k
	}
	return out
}
