package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
)

func openTestStore(t *testing.T, dim int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vec.db"), WithDimension(dim))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertGetRoundTrip(t *testing.T) {
	s := openTestStore(t, 4)
	ctx := context.Background()

	vec := []float32{1, 0, 0, 0}
	payload := memtypes.VectorPayload{MemoryUnitID: "u1", ProjectID: "default", UnitType: memtypes.UnitDecision}
	require.NoError(t, s.Upsert(ctx, "u1", vec, payload))

	points, err := s.Get(ctx, []string{"u1"})
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, vec, points[0].Vector)
	require.Equal(t, "default", points[0].Payload.ProjectID)
}

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "exact", []float32{1, 0}, memtypes.VectorPayload{ProjectID: "default"}))
	require.NoError(t, s.Upsert(ctx, "orthogonal", []float32{0, 1}, memtypes.VectorPayload{ProjectID: "default"}))
	require.NoError(t, s.Upsert(ctx, "opposite", []float32{-1, 0}, memtypes.VectorPayload{ProjectID: "default"}))

	results, err := s.Search(ctx, []float32{1, 0}, 3, nil, -1)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "exact", results[0].ID)
	require.InDelta(t, 1.0, results[0].Score, 1e-9)
	require.Equal(t, "opposite", results[2].ID)
	require.InDelta(t, -1.0, results[2].Score, 1e-9)
}

func TestSearchAppliesEqualityFilter(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0}, memtypes.VectorPayload{ProjectID: "p1"}))
	require.NoError(t, s.Upsert(ctx, "b", []float32{1, 0}, memtypes.VectorPayload{ProjectID: "p2"}))

	results, err := s.Search(ctx, []float32{1, 0}, 10, []Filter{{Field: "project_id", Equals: "p1"}}, -1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].ID)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()
	require.NoError(t, s.Delete(ctx, []string{"missing"}))

	require.NoError(t, s.Upsert(ctx, "x", []float32{1, 1}, memtypes.VectorPayload{}))
	require.NoError(t, s.Delete(ctx, []string{"x"}))
	require.NoError(t, s.Delete(ctx, []string{"x"}))

	points, err := s.Get(ctx, []string{"x"})
	require.NoError(t, err)
	require.Empty(t, points)
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	s := openTestStore(t, 4)
	err := s.Upsert(context.Background(), "bad", []float32{1, 2}, memtypes.VectorPayload{})
	require.Error(t, err)
}
