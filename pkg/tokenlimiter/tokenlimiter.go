// Package tokenlimiter implements TokenLimiter (spec §4.12): the last
// stage before injection, enforcing a hard token budget by compression or
// truncation.
package tokenlimiter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
	"github.com/claude-memory/claude-memory-go/pkg/textproc"
)

// Counter is the narrow TokenCounter surface this package needs.
type Counter interface {
	Count(text string) int
}

// Gateway is the narrow ModelGateway surface used for the optional
// compression pass.
type Gateway interface {
	Complete(ctx context.Context, model string, messages []GatewayMessage, params GatewayParams) (GatewayResult, error)
}

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
	Cost    float64
}

// Strategy names a truncation strategy.
type Strategy string

const (
	StrategyHead   Strategy = "head"
	StrategyTail   Strategy = "tail"
	StrategyMiddle Strategy = "middle"
	StrategySmart  Strategy = "smart"
)

// Priority scales the effective budget (spec §4.12).
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

func (p Priority) scale() float64 {
	switch p {
	case PriorityCritical:
		return 1.0
	case PriorityHigh:
		return 0.8
	case PriorityLow:
		return 0.4
	default:
		return 0.6 // medium
	}
}

// Config holds TokenLimiter's tunables.
type Config struct {
	CompressionEnabled bool
	CompressionModel   string
	Strategy           Strategy
	TypePriority       map[memtypes.UnitType]int // higher sorts first in LimitUnits
}

func (c Config) strategy() Strategy {
	if c.Strategy != "" {
		return c.Strategy
	}
	return StrategySmart
}

func (c Config) typePriority(t memtypes.UnitType) int {
	if p, ok := c.TypePriority[t]; ok {
		return p
	}
	return 0
}

// Result is Limit's return value.
type Result struct {
	Content    string
	TokenCount int
	Truncated  bool
	Compressed bool
}

// Limiter is TokenLimiter.
type Limiter struct {
	counter Counter
	tp      *textproc.Processor
	gw      Gateway
	cfg     Config
}

func New(counter Counter, tp *textproc.Processor, gw Gateway, cfg Config) *Limiter {
	return &Limiter{counter: counter, tp: tp, gw: gw, cfg: cfg}
}

// Limit enforces maxTokens, scaled by priority, on text.
func (l *Limiter) Limit(ctx context.Context, text string, maxTokens int, priority Priority) Result {
	effectiveMax := int(float64(maxTokens) * priority.scale())
	if effectiveMax <= 0 {
		effectiveMax = maxTokens
	}

	count := l.counter.Count(text)
	if count <= effectiveMax {
		return Result{Content: text, TokenCount: count}
	}

	if l.cfg.CompressionEnabled && l.gw != nil {
		if compressed, ok := l.tryCompress(ctx, text, effectiveMax); ok {
			return Result{Content: compressed, TokenCount: l.counter.Count(compressed), Compressed: true}
		}
	}

	truncated := l.truncate(text, effectiveMax)
	return Result{Content: truncated, TokenCount: l.counter.Count(truncated), Truncated: true}
}

const compressionPrompt = `Rewrite the following text to fit within %d tokens, preserving identifiers, file paths, and error text verbatim wherever possible. Return only the rewritten text.

%s`

func (l *Limiter) tryCompress(ctx context.Context, text string, maxTokens int) (string, bool) {
	prompt := fmt.Sprintf(compressionPrompt, maxTokens, text)
	out, err := l.gw.Complete(ctx, l.cfg.CompressionModel, []GatewayMessage{{Role: "user", Content: prompt}},
		GatewayParams{Temperature: 0.2, MaxTokens: maxTokens})
	if err != nil || out.Content == "" {
		return "", false
	}
	if l.counter.Count(out.Content) > maxTokens {
		return "", false
	}
	if len(out.Content) >= len(text) {
		return "", false
	}
	return out.Content, true
}

const ellipsis = "..."

func (l *Limiter) truncate(text string, max int) string {
	switch l.cfg.strategy() {
	case StrategyHead:
		return l.truncateHead(text, max)
	case StrategyTail:
		return l.truncateTail(text, max)
	case StrategyMiddle:
		return l.truncateMiddle(text, max)
	default:
		return l.truncateSmart(text, max)
	}
}

// truncateHead keeps a prefix and marks the cut with an ellipsis.
func (l *Limiter) truncateHead(text string, max int) string {
	budget := max - l.counter.Count(ellipsis)
	if budget <= 0 {
		return ellipsis
	}
	return l.tp.TruncateToTokens(text, budget, false) + ellipsis
}

// truncateTail keeps a suffix, prefixed by an ellipsis.
func (l *Limiter) truncateTail(text string, max int) string {
	budget := max - l.counter.Count(ellipsis)
	if budget <= 0 {
		return ellipsis
	}
	reversed := reverseRunes(text)
	tailReversed := l.tp.TruncateToTokens(reversed, budget, false)
	return ellipsis + reverseRunes(tailReversed)
}

func reverseRunes(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

const middleMarker = "\n... [truncated] ...\n"

// truncateMiddle keeps a head half and a tail half, joined by a marker.
func (l *Limiter) truncateMiddle(text string, max int) string {
	markerTokens := l.counter.Count(middleMarker)
	remaining := max - markerTokens
	if remaining <= 0 {
		return middleMarker
	}
	headBudget := remaining / 2
	tailBudget := remaining - headBudget

	head := l.tp.TruncateToTokens(text, headBudget, false)
	reversed := reverseRunes(text)
	tailReversed := l.tp.TruncateToTokens(reversed, tailBudget, false)
	tail := reverseRunes(tailReversed)
	return head + middleMarker + tail
}

// truncateSmart accumulates whole lines under the cap; if even the first
// line overflows, falls back to sentence-wise accumulation; if that still
// doesn't fit, falls back to character-proportional truncation (spec
// §4.12's "smart" chain).
func (l *Limiter) truncateSmart(text string, max int) string {
	lines := strings.Split(text, "\n")
	if l.counter.Count(lines[0]) <= max {
		var b strings.Builder
		for _, line := range lines {
			candidate := b.String()
			if candidate != "" {
				candidate += "\n"
			}
			candidate += line
			if l.counter.Count(candidate) > max {
				break
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(line)
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return l.tp.TruncateToTokens(text, max, true)
}

// Unit is the candidate ranked/accepted by LimitUnits.
type Unit struct {
	ID        string
	Type      memtypes.UnitType
	Relevance float64
	Content   string
}

// LimitUnits ranks units by (type priority desc, relevance desc) and
// accepts them until the running total would exceed totalLimit. With
// preserveStructure, the first rejected candidate may be individually
// truncated to fit the remainder if at least 100 tokens remain.
func (l *Limiter) LimitUnits(units []Unit, totalLimit int, preserveStructure bool) []Unit {
	ranked := make([]Unit, len(units))
	copy(ranked, units)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := l.cfg.typePriority(ranked[i].Type), l.cfg.typePriority(ranked[j].Type)
		if pi != pj {
			return pi > pj
		}
		return ranked[i].Relevance > ranked[j].Relevance
	})

	var out []Unit
	remaining := totalLimit
	for _, u := range ranked {
		tokens := l.counter.Count(u.Content)
		if tokens <= remaining {
			out = append(out, u)
			remaining -= tokens
			continue
		}
		if preserveStructure && remaining >= 100 {
			truncated := u
			truncated.Content = l.tp.TruncateToTokens(u.Content, remaining, true)
			out = append(out, truncated)
		}
		break
	}
	return out
}
