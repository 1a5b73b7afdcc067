package cost

import (
	"sync"
	"time"
)

// BudgetLevel is the closed set of budget states spec §4.15 defines.
type BudgetLevel int

const (
	LevelNormal BudgetLevel = iota
	LevelWarning
	LevelCritical
	LevelExceeded
)

func (l BudgetLevel) String() string {
	switch l {
	case LevelWarning:
		return "WARNING"
	case LevelCritical:
		return "CRITICAL"
	case LevelExceeded:
		return "EXCEEDED"
	default:
		return "NORMAL"
	}
}

func levelFor(used, budget float64) BudgetLevel {
	if budget <= 0 {
		return LevelNormal
	}
	ratio := used / budget
	switch {
	case ratio >= 1.0:
		return LevelExceeded
	case ratio >= 0.9:
		return LevelCritical
	case ratio >= 0.8:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// Budgets holds the four tracked buckets and their per-day limits.
type Budgets struct {
	DailyUSD       float64
	EmbeddingUSD   float64
	FusionUSD      float64
	CompressionUSD float64
}

// DegradationConfig is what orchestrators consult to honor the current
// degradation level.
type DegradationConfig struct {
	FusionEnabled      bool
	CompressionEnabled bool
	HeavyModelEnabled  bool
}

// Alert is emitted on every upward level transition.
type Alert struct {
	Bucket      string
	Level       BudgetLevel
	Used        float64
	Budget      float64
	Suggestions []string
}

// AlertFunc receives alerts as they're emitted.
type AlertFunc func(Alert)

// Monitor implements CostMonitor (spec §4.15).
type Monitor struct {
	mu      sync.Mutex
	tracker *Tracker
	budgets Budgets
	used    map[string]float64
	levels  map[string]BudgetLevel
	degrade int // 0, 1, 2
	day     string
	onAlert AlertFunc
	now     func() time.Time
}

// NewMonitor builds a Monitor. onAlert may be nil.
func NewMonitor(tracker *Tracker, budgets Budgets, onAlert AlertFunc) *Monitor {
	if onAlert == nil {
		onAlert = func(Alert) {}
	}
	return &Monitor{
		tracker: tracker,
		budgets: budgets,
		used:    make(map[string]float64),
		levels:  make(map[string]BudgetLevel),
		onAlert: onAlert,
		now:     time.Now,
		day:     time.Now().Format("2006-01-02"),
	}
}

// TrackCost records cost against the "daily" bucket and, when opType
// matches, against its dedicated bucket, then re-evaluates levels and the
// degradation state.
func (m *Monitor) TrackCost(opType string, costUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.maybeResetLocked()

	m.used["daily"] += costUSD
	if bucket, ok := bucketFor(opType); ok {
		m.used[bucket] += costUSD
	}

	m.reevaluateLocked()
}

func bucketFor(opType string) (string, bool) {
	switch opType {
	case "embed":
		return "embedding", true
	case "fuse":
		return "fusion", true
	case "compress":
		return "compression", true
	default:
		return "", false
	}
}

func (m *Monitor) budgetFor(bucket string) float64 {
	switch bucket {
	case "daily":
		return m.budgets.DailyUSD
	case "embedding":
		return m.budgets.EmbeddingUSD
	case "fusion":
		return m.budgets.FusionUSD
	case "compression":
		return m.budgets.CompressionUSD
	default:
		return 0
	}
}

func (m *Monitor) reevaluateLocked() {
	maxLevel := LevelNormal
	for _, bucket := range []string{"daily", "embedding", "fusion", "compression"} {
		used := m.used[bucket]
		budget := m.budgetFor(bucket)
		newLevel := levelFor(used, budget)

		if newLevel > m.levels[bucket] {
			m.onAlert(Alert{
				Bucket:      bucket,
				Level:       newLevel,
				Used:        used,
				Budget:      budget,
				Suggestions: suggestionsFor(newLevel),
			})
		}
		m.levels[bucket] = newLevel
		if newLevel > maxLevel {
			maxLevel = newLevel
		}
	}

	switch {
	case maxLevel >= LevelExceeded:
		m.degrade = 2
	case maxLevel >= LevelCritical:
		m.degrade = 1
	default:
		m.degrade = 0
	}
}

func suggestionsFor(level BudgetLevel) []string {
	switch level {
	case LevelWarning:
		return []string{"monitor usage", "consider lowering rerank top_k"}
	case LevelCritical:
		return []string{"disable compression", "force light-tier models"}
	case LevelExceeded:
		return []string{"disable fusion", "disable compression", "force light-tier models"}
	default:
		return nil
	}
}

// GetDegradationConfig returns the configuration orchestrators should honor
// given the current degradation level.
func (m *Monitor) GetDegradationConfig() DegradationConfig {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.degrade {
	case 2:
		return DegradationConfig{FusionEnabled: false, CompressionEnabled: false, HeavyModelEnabled: false}
	case 1:
		return DegradationConfig{FusionEnabled: true, CompressionEnabled: false, HeavyModelEnabled: false}
	default:
		return DegradationConfig{FusionEnabled: true, CompressionEnabled: true, HeavyModelEnabled: true}
	}
}

// DegradationLevel returns the raw 0/1/2 level.
func (m *Monitor) DegradationLevel() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degrade
}

// maybeResetLocked resets per-day counters and the degradation level at
// local midnight, observed lazily on the next TrackCost call.
func (m *Monitor) maybeResetLocked() {
	today := m.now().Format("2006-01-02")
	if today == m.day {
		return
	}
	m.day = today
	m.used = make(map[string]float64)
	m.levels = make(map[string]BudgetLevel)
	m.degrade = 0
}

// Tick lets a background loop force the midnight check even with no
// incoming cost, matching ServiceCore's cost-monitor loop cadence.
func (m *Monitor) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeResetLocked()
}
