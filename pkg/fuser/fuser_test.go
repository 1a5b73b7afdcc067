package fuser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
)

type fakeGateway struct {
	calls int
	err   error
	reply string
}

func (f *fakeGateway) Complete(_ context.Context, _ string, _ []GatewayMessage, _ GatewayParams) (GatewayResult, error) {
	f.calls++
	if f.err != nil {
		return GatewayResult{}, f.err
	}
	return GatewayResult{Content: f.reply, Cost: 0.01}, nil
}

func testUnits() []*memtypes.MemoryUnit {
	now := time.Now()
	return []*memtypes.MemoryUnit{
		{ID: "u1", UnitType: memtypes.UnitDecision, Content: "decided on LRU caching", CreatedAt: now, Metadata: map[string]any{"k": "v"}},
		{ID: "u2", UnitType: memtypes.UnitConversation, Content: "discussed token limits", CreatedAt: now},
	}
}

func TestFuseDisabledReturnsIdentity(t *testing.T) {
	gw := &fakeGateway{reply: "should not be called"}
	f, err := New(gw, Config{Enabled: false})
	require.NoError(t, err)

	res := f.Fuse(context.Background(), "query", testUnits())
	require.Equal(t, "none", res.FusionModel)
	require.Contains(t, res.Content, "decided on LRU caching")
	require.Contains(t, res.Content, "discussed token limits")
	require.Equal(t, 0, gw.calls)
}

func TestFuseEmptyUnitsReturnsIdentity(t *testing.T) {
	gw := &fakeGateway{}
	f, err := New(gw, Config{Enabled: true, Model: "fuse-model"})
	require.NoError(t, err)

	res := f.Fuse(context.Background(), "query", nil)
	require.Equal(t, "none", res.FusionModel)
	require.Empty(t, res.Content)
}

func TestFuseCallsGatewayAndReturnsContent(t *testing.T) {
	gw := &fakeGateway{reply: "structured summary"}
	f, err := New(gw, Config{Enabled: true, Model: "fuse-model", TokenLimit: 500})
	require.NoError(t, err)

	res := f.Fuse(context.Background(), "query", testUnits())
	require.Equal(t, "fuse-model", res.FusionModel)
	require.Equal(t, "structured summary", res.Content)
	require.Equal(t, 1, gw.calls)
}

func TestFuseFallsBackToIdentityOnGatewayError(t *testing.T) {
	gw := &fakeGateway{err: errors.New("provider down")}
	f, err := New(gw, Config{Enabled: true, Model: "fuse-model"})
	require.NoError(t, err)

	res := f.Fuse(context.Background(), "query", testUnits())
	require.Equal(t, "none", res.FusionModel)
	require.Contains(t, res.Content, "decided on LRU caching")
}

func TestFuseCachesByQueryAndUnitIDs(t *testing.T) {
	gw := &fakeGateway{reply: "structured summary"}
	f, err := New(gw, Config{Enabled: true, Model: "fuse-model"})
	require.NoError(t, err)

	units := testUnits()
	first := f.Fuse(context.Background(), "query", units)
	require.False(t, first.Cached)

	second := f.Fuse(context.Background(), "query", units)
	require.True(t, second.Cached)
	require.Equal(t, 1, gw.calls, "second call should hit the cache, not the gateway")
}
