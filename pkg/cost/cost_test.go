package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrackerUnknownModelDefaultPrice(t *testing.T) {
	tr := NewTracker(nil)
	got := tr.Calculate("unknown/model-x", 1000, 1000)
	require.InDelta(t, defaultInputPricePer1K+defaultOutputPricePer1K, got, 1e-9)
}

func TestTrackerTotalCostMonotonic(t *testing.T) {
	tr := NewTracker(nil)
	now := time.Now()
	before := tr.TotalCost()
	tr.Record("openrouter", "m1", "complete", 100, 100, now)
	after := tr.TotalCost()
	require.GreaterOrEqual(t, after, before)
	require.Greater(t, after, 0.0)
}

func TestTrackerDailyTotalIsSumOfSessionRecordsThatDay(t *testing.T) {
	tr := NewTracker(nil)
	day := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	r1 := tr.Record("gemini", "m1", "embed", 1000, 0, day)
	r2 := tr.Record("gemini", "m1", "embed", 1000, 0, day.Add(time.Hour))
	require.InDelta(t, r1.CostUSD+r2.CostUSD, tr.DailyTotal("2026-01-15"), 1e-9)
}

func TestMonitorDegradationEscalates(t *testing.T) {
	tr := NewTracker(nil)
	var alerts []Alert
	mon := NewMonitor(tr, Budgets{DailyUSD: 0.50, EmbeddingUSD: 1, FusionUSD: 1, CompressionUSD: 1}, func(a Alert) {
		alerts = append(alerts, a)
	})

	mon.TrackCost("complete", 0.46)
	require.Equal(t, 1, mon.DegradationLevel(), "92%% of budget should already be critical")

	mon.TrackCost("complete", 0.05)
	require.Equal(t, 2, mon.DegradationLevel(), "102%% of budget should be exceeded")
	require.NotEmpty(t, alerts)

	cfg := mon.GetDegradationConfig()
	require.False(t, cfg.CompressionEnabled)
	require.False(t, cfg.HeavyModelEnabled)
}

func TestMonitorNormalLevelAllowsEverything(t *testing.T) {
	tr := NewTracker(nil)
	mon := NewMonitor(tr, Budgets{DailyUSD: 100}, nil)
	mon.TrackCost("complete", 1)
	cfg := mon.GetDegradationConfig()
	require.True(t, cfg.FusionEnabled)
	require.True(t, cfg.CompressionEnabled)
	require.True(t, cfg.HeavyModelEnabled)
}
