package promptbuilder

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
)

type fakeCounter struct{}

func (fakeCounter) Count(text string) int {
	// One token per whitespace-separated field plus the fragment delimiters,
	// which is plenty stable for assertions on relative truncation points.
	return len(strings.Fields(text))
}

func unit(id string, ut memtypes.UnitType, score float64, content string, age time.Duration) memtypes.SearchResult {
	return memtypes.SearchResult{
		Unit: &memtypes.MemoryUnit{
			ID:        id,
			UnitType:  ut,
			Content:   content,
			CreatedAt: time.Now().Add(-age),
		},
		Score: score,
	}
}

func TestBuildWithFusedContentBypassesRanking(t *testing.T) {
	b := New(fakeCounter{}, Config{FusedPrefix: ">>> ", FusedSuffix: " <<<"})
	res := b.Build(nil, "query", 1000, "already fused text")
	require.Equal(t, ">>> already fused text <<<", res.Content)
	require.Equal(t, 1, res.FragmentCount)
	require.Equal(t, "fused", res.Metadata["source"])
}

func TestBuildRanksByWeight(t *testing.T) {
	cfg := Config{TypeWeights: map[memtypes.UnitType]float64{
		memtypes.UnitDecision:     1.5,
		memtypes.UnitConversation: 1.0,
	}}
	b := New(fakeCounter{}, cfg)

	results := []memtypes.SearchResult{
		unit("low", memtypes.UnitConversation, 0.9, "low weight content", time.Hour),
		unit("high", memtypes.UnitDecision, 0.7, "high weight content", time.Hour),
	}
	res := b.Build(results, "query", 0, "")

	lowIdx := strings.Index(res.Content, "low weight content")
	highIdx := strings.Index(res.Content, "high weight content")
	require.NotEqual(t, -1, lowIdx)
	require.NotEqual(t, -1, highIdx)
	require.Less(t, highIdx, lowIdx, "decision unit (0.7*1.5=1.05) should rank above conversation unit (0.9*1.0=0.9)")
}

func TestBuildDedupesByNormalizedContent(t *testing.T) {
	b := New(fakeCounter{}, Config{})
	results := []memtypes.SearchResult{
		unit("a", memtypes.UnitConversation, 0.9, "same   content\nhere", time.Hour),
		unit("b", memtypes.UnitConversation, 0.8, "same content here", 2*time.Hour),
	}
	res := b.Build(results, "query", 0, "")
	require.Equal(t, 1, res.FragmentCount)
}

func TestBuildTruncatesAtTokenLimit(t *testing.T) {
	b := New(fakeCounter{}, Config{})
	var results []memtypes.SearchResult
	for i := 0; i < 20; i++ {
		results = append(results, unit(string(rune('a'+i)), memtypes.UnitConversation, 1.0-float64(i)*0.01,
			"some fairly long fragment content that consumes several tokens per entry", time.Duration(i)*time.Minute))
	}
	res := b.Build(results, "query", 50, "")
	require.True(t, res.Metadata["truncated"].(bool))
	require.Less(t, res.FragmentCount, 20)
	require.LessOrEqual(t, res.TokenCount, 60) // a little slack for the "---" delimiters
}

func TestBuildGroupsByTypeWithPerTypeCap(t *testing.T) {
	cfg := Config{GroupByType: true, MaxFragmentsPerType: 1}
	b := New(fakeCounter{}, cfg)

	results := []memtypes.SearchResult{
		unit("d1", memtypes.UnitDecision, 0.9, "first decision", time.Hour),
		unit("d2", memtypes.UnitDecision, 0.8, "second decision", 2*time.Hour),
		unit("c1", memtypes.UnitConversation, 0.7, "a conversation", 3*time.Hour),
	}
	res := b.Build(results, "query", 0, "")

	require.Equal(t, 2, res.FragmentCount) // one decision (capped) + one conversation
	require.Contains(t, res.Content, "first decision")
	require.NotContains(t, res.Content, "second decision")
	require.Contains(t, res.Content, "a conversation")
	require.Contains(t, res.Content, "Decision")
	require.Contains(t, res.Content, "Conversation")
}

func TestBuildEmptyResultsProducesEmptyContent(t *testing.T) {
	b := New(fakeCounter{}, Config{})
	res := b.Build(nil, "query", 100, "")
	require.Empty(t, res.Content)
	require.Equal(t, 0, res.FragmentCount)
}
