// Package promptbuilder implements PromptBuilder (spec §4.11): composes
// retrieved (or pre-fused) memory into one prompt-ready block under a
// token budget.
package promptbuilder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
)

// Counter is the narrow TokenCounter surface this package needs.
type Counter interface {
	Count(text string) int
}

// Config holds PromptBuilder's tunables (spec §4.11).
type Config struct {
	TypeWeights        map[memtypes.UnitType]float64
	TimeWeight         float64 // constant factor; contract allows a decay function later
	GroupByType        bool
	MaxFragmentsPerType int
	FusedPrefix        string
	FusedSuffix        string
	TypeHeaders        map[memtypes.UnitType]string
}

func (c Config) typeWeight(t memtypes.UnitType) float64 {
	if w, ok := c.TypeWeights[t]; ok {
		return w
	}
	return 1.0
}

func (c Config) timeWeight() float64 {
	if c.TimeWeight > 0 {
		return c.TimeWeight
	}
	return 1.0
}

func (c Config) maxFragmentsPerType() int {
	if c.MaxFragmentsPerType > 0 {
		return c.MaxFragmentsPerType
	}
	return 10
}

func (c Config) typeHeader(t memtypes.UnitType) string {
	if h, ok := c.TypeHeaders[t]; ok {
		return h
	}
	return fmt.Sprintf("## %s", titleCase(string(t)))
}

// titleCase upper-cases the first letter of each underscore-separated word,
// avoiding the deprecated strings.Title for a type_name like "code_snippet".
func titleCase(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Result is Build's return value.
type Result struct {
	Content       string
	TokenCount    int
	FragmentCount int
	Metadata      map[string]any
}

// Builder is PromptBuilder.
type Builder struct {
	counter Counter
	cfg     Config
}

func New(counter Counter, cfg Config) *Builder {
	return &Builder{counter: counter, cfg: cfg}
}

// Build composes units into a token-bounded context block. If fusedContent
// is non-empty, it is wrapped with the configured prefix/suffix and
// returned directly, bypassing ranking/dedup/grouping entirely.
func (b *Builder) Build(units []memtypes.SearchResult, query string, maxTokens int, fusedContent string) Result {
	if fusedContent != "" {
		content := b.cfg.FusedPrefix + fusedContent + b.cfg.FusedSuffix
		return Result{
			Content:       content,
			TokenCount:    b.counter.Count(content),
			FragmentCount: 1,
			Metadata:      map[string]any{"source": "fused"},
		}
	}

	ranked := b.rank(units)
	deduped := dedup(ranked)

	if b.cfg.GroupByType {
		return b.buildGrouped(deduped, maxTokens)
	}
	return b.buildFlat(deduped, maxTokens)
}

func (b *Builder) rank(results []memtypes.SearchResult) []memtypes.SearchResult {
	weighted := make([]memtypes.SearchResult, len(results))
	copy(weighted, results)
	sort.SliceStable(weighted, func(i, j int) bool {
		return weight(weighted[i], b.cfg) > weight(weighted[j], b.cfg)
	})
	return weighted
}

func weight(r memtypes.SearchResult, cfg Config) float64 {
	return r.Score * cfg.typeWeight(r.Unit.UnitType) * cfg.timeWeight()
}

// dedup drops results whose whitespace-normalized content hashes the same
// as one already kept (spec §4.11: first 16 hex chars of SHA-256).
func dedup(results []memtypes.SearchResult) []memtypes.SearchResult {
	seen := make(map[string]bool, len(results))
	out := make([]memtypes.SearchResult, 0, len(results))
	for _, r := range results {
		h := contentHash(r.Unit.Content)
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, r)
	}
	return out
}

func contentHash(content string) string {
	normalized := strings.Join(strings.Fields(content), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

func formatFragment(r memtypes.SearchResult) string {
	return fmt.Sprintf("[%s] (relevance: %.2f)\n%s\n---", r.Unit.CreatedAt.UTC().Format("2006-01-02 15:04"), r.Score, r.Unit.Content)
}

func (b *Builder) buildFlat(results []memtypes.SearchResult, maxTokens int) Result {
	var parts []string
	var tokenCount int
	for _, r := range results {
		frag := formatFragment(r)
		fragTokens := b.counter.Count(frag)
		if maxTokens > 0 && tokenCount+fragTokens > maxTokens {
			break
		}
		parts = append(parts, frag)
		tokenCount += fragTokens
	}
	content := strings.Join(parts, "\n")
	return Result{
		Content:       content,
		TokenCount:    b.counter.Count(content),
		FragmentCount: len(parts),
		Metadata:      map[string]any{"source": "ranked", "truncated": len(parts) < len(results)},
	}
}

func (b *Builder) buildGrouped(results []memtypes.SearchResult, maxTokens int) Result {
	byType := make(map[memtypes.UnitType][]memtypes.SearchResult)
	var typeOrder []memtypes.UnitType
	for _, r := range results {
		if _, ok := byType[r.Unit.UnitType]; !ok {
			typeOrder = append(typeOrder, r.Unit.UnitType)
		}
		byType[r.Unit.UnitType] = append(byType[r.Unit.UnitType], r)
	}

	var b2 strings.Builder
	var tokenCount, fragmentCount int
	truncated := false

	for _, t := range typeOrder {
		group := byType[t]
		if len(group) > b.cfg.maxFragmentsPerType() {
			group = group[:b.cfg.maxFragmentsPerType()]
		}

		header := b.cfg.typeHeader(t)
		headerTokens := b.counter.Count(header)
		if maxTokens > 0 && tokenCount+headerTokens > maxTokens {
			truncated = true
			break
		}

		var groupParts []string
		groupFits := true
		for _, r := range group {
			frag := formatFragment(r)
			fragTokens := b.counter.Count(frag)
			if maxTokens > 0 && tokenCount+headerTokens+fragTokens > maxTokens {
				truncated = true
				groupFits = len(groupParts) > 0
				break
			}
			groupParts = append(groupParts, frag)
			tokenCount += fragTokens
			fragmentCount++
		}
		if len(groupParts) == 0 {
			if !groupFits {
				break
			}
			continue
		}
		tokenCount += headerTokens
		b2.WriteString(header)
		b2.WriteString("\n")
		b2.WriteString(strings.Join(groupParts, "\n"))
		b2.WriteString("\n")
		if !groupFits {
			break
		}
	}

	return Result{
		Content:       strings.TrimRight(b2.String(), "\n"),
		TokenCount:    tokenCount,
		FragmentCount: fragmentCount,
		Metadata:      map[string]any{"source": "grouped", "truncated": truncated},
	}
}
