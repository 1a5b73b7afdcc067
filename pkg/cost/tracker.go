// Package cost implements CostTracker (spec §4.3) and CostMonitor
// (spec §4.15): per-model $ accounting, session/daily aggregates, budget
// thresholds, alerts, and degradation levels. Pricing is sourced from the
// teacher's pkg/modelsdev store (models.dev, disk-cached).
package cost

import (
	"sync"
	"time"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
	"github.com/claude-memory/claude-memory-go/pkg/modelsdev"
)

const (
	defaultInputPricePer1K  = 0.001
	defaultOutputPricePer1K = 0.002
)

// Tracker is CostTracker: thread-safe per-model accounting with session
// and per-day aggregates.
type Tracker struct {
	mu       sync.Mutex
	store    *modelsdev.Store // nil-able; falls back to default pricing
	session  []memtypes.CostRecord
	byDay    map[string]float64 // "2006-01-02" -> total USD
	dayOrder []string
}

// NewTracker builds a Tracker. store may be nil (pure default pricing).
func NewTracker(store *modelsdev.Store) *Tracker {
	return &Tracker{
		store: store,
		byDay: make(map[string]float64),
	}
}

// priceFor returns (inputPricePer1K, outputPricePer1K) for a "provider/model"
// id, falling back to the spec-mandated defaults for unknown models.
func (t *Tracker) priceFor(modelID string) (in, out float64) {
	if t.store != nil {
		if m, err := t.store.GetModel(modelID); err == nil && m.Cost != nil {
			return m.Cost.Input, m.Cost.Output
		}
	}
	return defaultInputPricePer1K, defaultOutputPricePer1K
}

// Calculate returns the USD cost of a completion with inTokens/outTokens.
func (t *Tracker) Calculate(modelID string, inTokens, outTokens int64) float64 {
	in, out := t.priceFor(modelID)
	return (float64(inTokens)/1000.0)*in + (float64(outTokens)/1000.0)*out
}

// Record computes the cost and appends a CostRecord to the session list
// and the matching day's running total.
func (t *Tracker) Record(provider, modelID, operationType string, inTokens, outTokens int64, now time.Time) memtypes.CostRecord {
	costUSD := t.Calculate(modelID, inTokens, outTokens)

	rec := memtypes.CostRecord{
		Provider:      provider,
		ModelName:     modelID,
		OperationType: operationType,
		InputTokens:   inTokens,
		OutputTokens:  outTokens,
		CostUSD:       costUSD,
		Timestamp:     now,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.session = append(t.session, rec)

	day := now.Format("2006-01-02")
	if _, ok := t.byDay[day]; !ok {
		t.dayOrder = append(t.dayOrder, day)
	}
	t.byDay[day] += costUSD

	return rec
}

// TotalCost returns the sum of every recorded session cost; non-decreasing
// across the Tracker's lifetime (spec §8 property 8).
func (t *Tracker) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total float64
	for _, r := range t.session {
		total += r.CostUSD
	}
	return total
}

// DailyTotal returns the running total for the given day (format
// 2006-01-02).
func (t *Tracker) DailyTotal(day string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byDay[day]
}

// DailyEstimate returns the mean of the last 7 recorded day-totals.
func (t *Tracker) DailyEstimate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.dayOrder)
	if n == 0 {
		return 0
	}
	start := 0
	if n > 7 {
		start = n - 7
	}
	var sum float64
	var count int
	for _, day := range t.dayOrder[start:] {
		sum += t.byDay[day]
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Session returns a copy of every recorded cost this process has seen.
func (t *Tracker) Session() []memtypes.CostRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]memtypes.CostRecord, len(t.session))
	copy(out, t.session)
	return out
}
