package retriever

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/claude-memory/claude-memory-go/pkg/memstore/relational"
	"github.com/claude-memory/claude-memory-go/pkg/memstore/vector"
	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
	"github.com/claude-memory/claude-memory-go/pkg/textproc"
	"github.com/claude-memory/claude-memory-go/pkg/tokencount"
)

type fakeGateway struct {
	embeddings  map[string][]float32
	rerankErr   error
	rerankOrder map[string]float64 // doc substring -> score, for rerank assertions
}

func (f *fakeGateway) Embed(_ context.Context, _ string, text string) (EmbedResult, error) {
	if v, ok := f.embeddings[text]; ok {
		return EmbedResult{Vector: v, Dim: len(v)}, nil
	}
	return EmbedResult{Vector: []float32{1, 0, 0, 0}, Dim: 4}, nil
}

func (f *fakeGateway) Rerank(_ context.Context, _ string, _ string, docs []string, topK int) (RerankResult, error) {
	if f.rerankErr != nil {
		return RerankResult{}, f.rerankErr
	}
	scores := make([]float64, len(docs))
	for i, d := range docs {
		for substr, score := range f.rerankOrder {
			if len(substr) > 0 && contains(d, substr) {
				scores[i] = score
			}
		}
	}
	if len(docs) > topK {
		// rerank still scores all docs; truncation happens in the caller.
	}
	return RerankResult{Scores: scores}, nil
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 || indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func newTestRetriever(t *testing.T, gw Gateway) (*Retriever, *relational.Store, *vector.Store) {
	t.Helper()
	dir := t.TempDir()
	rel, err := relational.Open(filepath.Join(dir, "rel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rel.Close() })

	vec, err := vector.Open(filepath.Join(dir, "vec.db"), vector.WithDimension(4))
	require.NoError(t, err)
	t.Cleanup(func() { vec.Close() })

	tp := textproc.New(tokencount.New())
	r := New(vec, rel, gw, tp, Config{EmbeddingModel: "embed-1", RerankModel: "rerank-1"})
	require.NoError(t, r.Init())
	return r, rel, vec
}

func insertUnit(t *testing.T, rel *relational.Store, u *memtypes.MemoryUnit) {
	t.Helper()
	require.NoError(t, rel.InsertMemoryUnit(context.Background(), nil, u))
}

func TestStoreWithTransactionThenSemanticRetrieve(t *testing.T) {
	gw := &fakeGateway{embeddings: map[string][]float32{}}
	r, rel, _ := newTestRetriever(t, gw)
	ctx := context.Background()

	now := time.Now()
	unit := &memtypes.MemoryUnit{
		ID: "u1", ProjectID: memtypes.DefaultProjectID, UnitType: memtypes.UnitDecision,
		Title: "cache design", Summary: "decided on LRU", Content: "full content about caching",
		CreatedAt: now, UpdatedAt: now, IsActive: true,
	}
	insertUnit(t, rel, unit)
	require.NoError(t, r.StoreWithTransaction(ctx, unit))

	results, err := r.Retrieve(ctx, Request{Query: "caching", ProjectID: memtypes.DefaultProjectID, Strategy: StrategySemanticOnly, TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "u1", results[0].Unit.ID)
	require.Equal(t, memtypes.MatchSemantic, results[0].MatchType)
}

func TestStoreWithTransactionRejectsWrongDimension(t *testing.T) {
	gw := &fakeGateway{embeddings: map[string][]float32{"decided on LRU full content about caching": {1, 0, 0}}}
	r, rel, _ := newTestRetriever(t, gw)
	ctx := context.Background()

	now := time.Now()
	unit := &memtypes.MemoryUnit{
		ID: "u2", ProjectID: memtypes.DefaultProjectID, UnitType: memtypes.UnitDecision,
		Summary: "decided on LRU", Content: "full content about caching", CreatedAt: now, UpdatedAt: now,
	}
	insertUnit(t, rel, unit)
	err := r.StoreWithTransaction(ctx, unit)
	require.Error(t, err)
}

func TestKeywordSearchScoresAndMatches(t *testing.T) {
	gw := &fakeGateway{}
	r, rel, _ := newTestRetriever(t, gw)
	ctx := context.Background()

	now := time.Now()
	unit := &memtypes.MemoryUnit{
		ID: "u3", ProjectID: memtypes.DefaultProjectID, UnitType: memtypes.UnitConversation,
		Title: "golang concurrency patterns", Summary: "discussed channels and goroutines",
		Keywords: []string{"golang", "concurrency"}, CreatedAt: now, UpdatedAt: now, IsActive: true,
	}
	insertUnit(t, rel, unit)

	results, err := r.Retrieve(ctx, Request{Query: "golang concurrency", ProjectID: memtypes.DefaultProjectID, Strategy: StrategyKeywordOnly, TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, memtypes.MatchKeyword, results[0].MatchType)
	require.Greater(t, results[0].Score, 0.0)
}

func TestDeleteRemovesVectorAndRelationalRows(t *testing.T) {
	gw := &fakeGateway{}
	r, rel, vec := newTestRetriever(t, gw)
	ctx := context.Background()

	now := time.Now()
	unit := &memtypes.MemoryUnit{
		ID: "u4", ProjectID: memtypes.DefaultProjectID, UnitType: memtypes.UnitDecision,
		Summary: "s", Content: "c", CreatedAt: now, UpdatedAt: now,
	}
	insertUnit(t, rel, unit)
	require.NoError(t, r.StoreWithTransaction(ctx, unit))

	require.NoError(t, r.Delete(ctx, "u4"))

	points, err := vec.Get(ctx, []string{"u4"})
	require.NoError(t, err)
	require.Empty(t, points)

	units, err := rel.GetMemoryUnits(ctx, []string{"u4"}, true)
	require.NoError(t, err)
	require.Empty(t, units)
}

func TestDeleteIsIdempotent(t *testing.T) {
	r, _, _ := newTestRetriever(t, &fakeGateway{})
	require.NoError(t, r.Delete(context.Background(), "missing"))
	require.NoError(t, r.Delete(context.Background(), "missing"))
}

func TestRetrieveFallsBackToRuleBasedRerankOnGatewayFailure(t *testing.T) {
	gw := &fakeGateway{rerankErr: context.DeadlineExceeded}
	r, rel, _ := newTestRetriever(t, gw)
	ctx := context.Background()

	now := time.Now()
	old := now.Add(-60 * 24 * time.Hour)
	recent := &memtypes.MemoryUnit{ID: "recent", ProjectID: memtypes.DefaultProjectID, UnitType: memtypes.UnitDecision, Title: "recent", Summary: "s", Content: "recent content", CreatedAt: now, UpdatedAt: now, IsActive: true}
	stale := &memtypes.MemoryUnit{ID: "stale", ProjectID: memtypes.DefaultProjectID, UnitType: memtypes.UnitDecision, Title: "stale", Summary: "s", Content: "stale content", CreatedAt: old, UpdatedAt: old, IsActive: true}
	insertUnit(t, rel, recent)
	insertUnit(t, rel, stale)
	require.NoError(t, r.StoreWithTransaction(ctx, recent))
	require.NoError(t, r.StoreWithTransaction(ctx, stale))

	results, err := r.Retrieve(ctx, Request{Query: "content", ProjectID: memtypes.DefaultProjectID, Strategy: StrategySemanticOnly, TopK: 5, Rerank: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "recent", results[0].Unit.ID, "time-decayed fallback should favor the more recent unit")
}

func TestRetrieveCachesResults(t *testing.T) {
	r, rel, _ := newTestRetriever(t, &fakeGateway{})
	ctx := context.Background()

	now := time.Now()
	unit := &memtypes.MemoryUnit{ID: "c1", ProjectID: memtypes.DefaultProjectID, UnitType: memtypes.UnitDecision, Summary: "s", Content: "content", CreatedAt: now, UpdatedAt: now, IsActive: true}
	insertUnit(t, rel, unit)
	require.NoError(t, r.StoreWithTransaction(ctx, unit))

	req := Request{Query: "content", ProjectID: memtypes.DefaultProjectID, Strategy: StrategySemanticOnly, TopK: 5}
	first, err := r.Retrieve(ctx, req)
	require.NoError(t, err)

	key := cacheKeyFor(req.normalized())
	cached, ok := r.getCache(key)
	require.True(t, ok)
	require.Equal(t, first, cached)
}
