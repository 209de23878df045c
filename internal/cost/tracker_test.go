package cost

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecord(t *testing.T) {
	tr := NewTracker(map[string]float64{"gpt-4o-mini": 0.60})

	cost := tr.Record("gpt-4o-mini", false, 500_000)
	assert.InDelta(t, 0.30, cost, 1e-9)

	assert.Zero(t, tr.Record("llama3.1", true, 1_500_000), "local models are free")
	assert.Zero(t, tr.Record("unpriced-model", false, 1000))

	s := tr.Snapshot()
	assert.Equal(t, 3, s.Daily.Requests)
	assert.Equal(t, 501_000, s.Daily.CloudTokens)
	assert.Equal(t, 1_500_000, s.Daily.LocalTokens)
	assert.InDelta(t, 0.30, s.Monthly.CloudCost, 1e-9)
	assert.InDelta(t, 1_500_000.0/2_001_000.0*100, s.LocalRate, 1e-9)
}

func TestRollover(t *testing.T) {
	now := time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)
	tr := NewTracker(map[string]float64{"m": 1})
	tr.now = func() time.Time { return now }
	tr.resetDaily()
	tr.resetMonthly()

	tr.Record("m", false, 1_000_000)
	now = now.Add(2 * time.Hour)
	tr.Record("m", false, 1_000_000)

	s := tr.Snapshot()
	assert.Equal(t, "2026-02-01", s.Daily.Date)
	assert.Equal(t, "2026-02", s.Monthly.Month)
	assert.Equal(t, 1, s.Daily.Requests)
	assert.InDelta(t, 1.0, s.Monthly.CloudCost, 1e-9)
}

func TestConcurrentRecord(t *testing.T) {
	tr := NewTracker(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record("m", false, 10)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, tr.Snapshot().Daily.Requests)
}
