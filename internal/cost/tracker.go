// Package cost tracks token usage and estimated spend for transparency.
package cost

import (
	"sync"
	"time"
)

// Tracker monitors model usage and estimates costs. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	rates   map[string]float64 // USD per 1M tokens by model
	daily   *DailyStats
	monthly *MonthlyStats
	now     func() time.Time
}

// DailyStats tracks cost for a single day.
type DailyStats struct {
	Date        string  `json:"date"`
	LocalTokens int     `json:"local_tokens"`
	CloudTokens int     `json:"cloud_tokens"`
	CloudCost   float64 `json:"cloud_cost_usd"`
	Requests    int     `json:"requests"`
}

// MonthlyStats tracks cost for a month.
type MonthlyStats struct {
	Month       string  `json:"month"`
	LocalTokens int     `json:"local_tokens"`
	CloudTokens int     `json:"cloud_tokens"`
	CloudCost   float64 `json:"cloud_cost_usd"`
	Requests    int     `json:"requests"`
}

// Snapshot is a copy of the current period totals.
type Snapshot struct {
	Daily     DailyStats   `json:"daily"`
	Monthly   MonthlyStats `json:"monthly"`
	LocalRate float64      `json:"local_rate_percent"`
}

// NewTracker creates a tracker with per-model prices (USD per 1M tokens).
// Models without a price are recorded at zero cost.
func NewTracker(rates map[string]float64) *Tracker {
	t := &Tracker{
		rates: make(map[string]float64, len(rates)),
		now:   time.Now,
	}
	for model, rate := range rates {
		t.rates[model] = rate
	}
	t.resetDaily()
	t.resetMonthly()
	return t
}

// Estimate returns the cost of tokens on model.
func (t *Tracker) Estimate(model string, tokens int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(tokens) / 1_000_000 * t.rates[model]
}

// Record records one answered request. Local models are free.
func (t *Tracker) Record(model string, isLocal bool, tokens int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()

	var cost float64
	if isLocal {
		t.daily.LocalTokens += tokens
		t.monthly.LocalTokens += tokens
	} else {
		cost = float64(tokens) / 1_000_000 * t.rates[model]
		t.daily.CloudTokens += tokens
		t.monthly.CloudTokens += tokens
		t.daily.CloudCost += cost
		t.monthly.CloudCost += cost
	}
	t.daily.Requests++
	t.monthly.Requests++
	return cost
}

// LocalRate returns the percentage of today's tokens handled locally.
func (t *Tracker) LocalRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.localRate()
}

func (t *Tracker) localRate() float64 {
	total := t.daily.LocalTokens + t.daily.CloudTokens
	if total == 0 {
		return 0
	}
	return float64(t.daily.LocalTokens) / float64(total) * 100
}

// Snapshot returns copies of the current daily and monthly totals.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	return Snapshot{Daily: *t.daily, Monthly: *t.monthly, LocalRate: t.localRate()}
}

// rollover starts new periods when the date changed. Caller holds mu.
func (t *Tracker) rollover() {
	now := t.now()
	if t.daily.Date != now.Format("2006-01-02") {
		t.resetDaily()
	}
	if t.monthly.Month != now.Format("2006-01") {
		t.resetMonthly()
	}
}

func (t *Tracker) resetDaily() {
	t.daily = &DailyStats{Date: t.now().Format("2006-01-02")}
}

func (t *Tracker) resetMonthly() {
	t.monthly = &MonthlyStats{Month: t.now().Format("2006-01")}
}
