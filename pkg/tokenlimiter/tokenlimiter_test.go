package tokenlimiter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
	"github.com/claude-memory/claude-memory-go/pkg/textproc"
	"github.com/claude-memory/claude-memory-go/pkg/tokencount"
)

type fakeGateway struct {
	calls int
	reply string
	err   error
}

func (f *fakeGateway) Complete(_ context.Context, _ string, _ []GatewayMessage, _ GatewayParams) (GatewayResult, error) {
	f.calls++
	if f.err != nil {
		return GatewayResult{}, f.err
	}
	return GatewayResult{Content: f.reply}, nil
}

func newTestLimiter(gw Gateway, cfg Config) *Limiter {
	counter := tokencount.New()
	tp := textproc.New(counter)
	return New(counter, tp, gw, cfg)
}

func TestLimitReturnsAsIsUnderBudget(t *testing.T) {
	l := newTestLimiter(nil, Config{})
	res := l.Limit(context.Background(), "short text", 1000, PriorityMedium)
	require.Equal(t, "short text", res.Content)
	require.False(t, res.Truncated)
	require.False(t, res.Compressed)
}

func TestLimitUsesCompressionWhenShorterAndUnderCap(t *testing.T) {
	long := strings.Repeat("word ", 500)
	gw := &fakeGateway{reply: "a much shorter rewritten version"}
	l := newTestLimiter(gw, Config{CompressionEnabled: true, CompressionModel: "compress-model"})

	res := l.Limit(context.Background(), long, 20, PriorityMedium)
	require.True(t, res.Compressed)
	require.Equal(t, "a much shorter rewritten version", res.Content)
	require.Equal(t, 1, gw.calls)
}

func TestLimitFallsBackToTruncationWhenCompressionFails(t *testing.T) {
	long := strings.Repeat("word ", 500)
	gw := &fakeGateway{err: errors.New("provider down")}
	l := newTestLimiter(gw, Config{CompressionEnabled: true, CompressionModel: "compress-model", Strategy: StrategyHead})

	res := l.Limit(context.Background(), long, 20, PriorityMedium)
	require.True(t, res.Truncated)
	require.False(t, res.Compressed)
	require.Contains(t, res.Content, "...")
}

func TestLimitFallsBackWhenCompressedResultNotShorter(t *testing.T) {
	long := strings.Repeat("word ", 500)
	gw := &fakeGateway{reply: long + " extra"}
	l := newTestLimiter(gw, Config{CompressionEnabled: true, CompressionModel: "compress-model", Strategy: StrategyTail})

	res := l.Limit(context.Background(), long, 20, PriorityMedium)
	require.False(t, res.Compressed)
	require.True(t, res.Truncated)
}

func TestTruncateHeadKeepsPrefix(t *testing.T) {
	l := newTestLimiter(nil, Config{Strategy: StrategyHead})
	long := strings.Repeat("alpha beta gamma ", 200)
	res := l.Limit(context.Background(), long, 30, PriorityMedium)
	require.True(t, strings.HasPrefix(res.Content, "alpha"))
	require.True(t, strings.HasSuffix(res.Content, "..."))
}

func TestTruncateTailKeepsSuffix(t *testing.T) {
	l := newTestLimiter(nil, Config{Strategy: StrategyTail})
	long := strings.Repeat("x ", 200) + "END-MARKER"
	res := l.Limit(context.Background(), long, 30, PriorityMedium)
	require.True(t, strings.HasPrefix(res.Content, "..."))
	require.Contains(t, res.Content, "END-MARKER")
}

func TestTruncateMiddleKeepsBothEnds(t *testing.T) {
	l := newTestLimiter(nil, Config{Strategy: StrategyMiddle})
	long := "HEAD-MARKER " + strings.Repeat("filler ", 300) + "TAIL-MARKER"
	res := l.Limit(context.Background(), long, 40, PriorityMedium)
	require.Contains(t, res.Content, "HEAD-MARKER")
	require.Contains(t, res.Content, "TAIL-MARKER")
	require.Contains(t, res.Content, "truncated")
}

func TestTruncateSmartAccumulatesLines(t *testing.T) {
	l := newTestLimiter(nil, Config{Strategy: StrategySmart})
	text := "first line\nsecond line\n" + strings.Repeat("third line filler words here\n", 100)
	res := l.Limit(context.Background(), text, 15, PriorityMedium)
	require.True(t, res.Truncated)
	require.Contains(t, res.Content, "first line")
}

func TestPriorityScalesEffectiveBudget(t *testing.T) {
	l := newTestLimiter(nil, Config{Strategy: StrategyHead})
	long := strings.Repeat("word ", 200)

	low := l.Limit(context.Background(), long, 100, PriorityLow)
	critical := l.Limit(context.Background(), long, 100, PriorityCritical)
	require.Less(t, low.TokenCount, critical.TokenCount)
}

func TestLimitUnitsAcceptsByPriorityAndRelevance(t *testing.T) {
	cfg := Config{TypePriority: map[memtypes.UnitType]int{
		memtypes.UnitDecision:     2,
		memtypes.UnitConversation: 1,
	}}
	l := newTestLimiter(nil, cfg)

	units := []Unit{
		{ID: "low-pri", Type: memtypes.UnitConversation, Relevance: 0.99, Content: "conversation content"},
		{ID: "high-pri", Type: memtypes.UnitDecision, Relevance: 0.1, Content: "decision content"},
	}
	out := l.LimitUnits(units, 1000, false)
	require.Len(t, out, 2)
	require.Equal(t, "high-pri", out[0].ID, "decision type_priority 2 should outrank conversation despite lower relevance")
}

func TestLimitUnitsStopsAtCapAndTruncatesLastWhenPreservingStructure(t *testing.T) {
	l := newTestLimiter(nil, Config{})
	units := []Unit{
		{ID: "a", Relevance: 1.0, Content: strings.Repeat("word ", 50)},
		{ID: "b", Relevance: 0.9, Content: strings.Repeat("word ", 500)},
	}
	out := l.LimitUnits(units, 200, true)
	require.Len(t, out, 2)
	require.Less(t, l.counter.Count(out[1].Content), l.counter.Count(units[1].Content))
}

func TestLimitUnitsDropsOverflowWithoutPreserveStructure(t *testing.T) {
	l := newTestLimiter(nil, Config{})
	units := []Unit{
		{ID: "a", Relevance: 1.0, Content: strings.Repeat("word ", 50)},
		{ID: "b", Relevance: 0.9, Content: strings.Repeat("word ", 500)},
	}
	out := l.LimitUnits(units, 60, false)
	require.Len(t, out, 1)
	require.Equal(t, "a", out[0].ID)
}
