package stats

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.RecordRequest(100, 2, 200*time.Millisecond)
	c.RecordRequest(50, 4, 400*time.Millisecond)
	c.RecordError()
	c.RecordTool("get_current_weather", false, false)
	c.RecordTool("get_current_weather", false, true)
	c.RecordTool("convert_currency", true, false)

	s := c.Collect("")
	assert.Equal(t, int64(2), s.RequestCount)
	assert.Equal(t, int64(150), s.TokenCount)
	assert.Equal(t, int64(1), s.ErrorCount)
	assert.InDelta(t, 300.0, s.AvgLatencyMs, 0.001)
	assert.InDelta(t, 3.0, s.AvgRounds, 0.001)
	assert.Equal(t, ToolStats{Calls: 2, Degraded: 1}, s.Tools["get_current_weather"])
	assert.Equal(t, ToolStats{Calls: 1, Failures: 1}, s.Tools["convert_currency"])
	assert.Equal(t, []string{"convert_currency", "get_current_weather"}, s.ToolNames())
	assert.Positive(t, s.Goroutines)
	assert.Empty(t, s.DBPath)
}

func TestCollectDBSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o644))

	s := NewCollector().Collect(path)
	assert.Equal(t, int64(2048), s.DBSize)
	assert.Equal(t, path, s.DBPath)
}
