// Package stats provides request and runtime statistics for Tripwise.
package stats

import (
	"os"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Collector collects and tracks agent statistics. Safe for concurrent use.
type Collector struct {
	mu            sync.Mutex
	startTime     time.Time
	requestCount  int64
	tokenCount    int64
	errorCount    int64
	roundCount    int64
	totalDuration int64 // nanoseconds
	tools         map[string]*ToolStats
}

// ToolStats counts invocations of one tool.
type ToolStats struct {
	Calls    int64 `json:"calls"`
	Failures int64 `json:"failures"`
	Degraded int64 `json:"degraded"`
}

// NewCollector creates a new stats collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		tools:     make(map[string]*ToolStats),
	}
}

// Stats represents system statistics at a point in time.
type Stats struct {
	// System resources
	MemoryStats MemoryStats `json:"memory"`
	Goroutines  int         `json:"goroutines"`
	Uptime      string      `json:"uptime"`

	// Agent metrics
	RequestCount int64                `json:"request_count"`
	TokenCount   int64                `json:"token_count"`
	ErrorCount   int64                `json:"error_count"`
	AvgRounds    float64              `json:"avg_rounds"`
	AvgLatencyMs float64              `json:"avg_latency_ms"`
	Tools        map[string]ToolStats `json:"tools"`

	// Session database, sqlite backend only
	DBSize   int64   `json:"db_size_bytes,omitempty"`
	DBSizeMB float64 `json:"db_size_mb,omitempty"`
	DBPath   string  `json:"db_path,omitempty"`
}

// MemoryStats represents memory usage statistics.
type MemoryStats struct {
	HeapAllocMB  float64 `json:"heap_alloc_mb"`
	HeapSysMB    float64 `json:"heap_sys_mb"`
	HeapObjects  uint64  `json:"heap_objects"`
	StackInuseMB float64 `json:"stack_inuse_mb"`
	NumGC        uint32  `json:"num_gc"`
}

// Collect returns current statistics. dbPath, when set, is measured on disk.
func (c *Collector) Collect(dbPath string) *Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.mu.Lock()
	s := &Stats{
		Uptime:       time.Since(c.startTime).Round(time.Second).String(),
		RequestCount: c.requestCount,
		TokenCount:   c.tokenCount,
		ErrorCount:   c.errorCount,
		Tools:        make(map[string]ToolStats, len(c.tools)),
	}
	if c.requestCount > 0 {
		s.AvgLatencyMs = float64(c.totalDuration) / float64(c.requestCount) / 1e6 // nanos to millis
		s.AvgRounds = float64(c.roundCount) / float64(c.requestCount)
	}
	for name, t := range c.tools {
		s.Tools[name] = *t
	}
	c.mu.Unlock()

	s.MemoryStats = MemoryStats{
		HeapAllocMB:  bytesToMB(int64(m.HeapAlloc)),
		HeapSysMB:    bytesToMB(int64(m.HeapSys)),
		HeapObjects:  m.HeapObjects,
		StackInuseMB: bytesToMB(int64(m.StackInuse)),
		NumGC:        m.NumGC,
	}
	s.Goroutines = runtime.NumGoroutine()

	if dbPath != "" {
		s.DBPath = dbPath
		if info, err := os.Stat(dbPath); err == nil {
			s.DBSize = info.Size()
			s.DBSizeMB = bytesToMB(info.Size())
		}
	}
	return s
}

// RecordRequest records a completed request.
func (c *Collector) RecordRequest(tokens, rounds int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestCount++
	c.tokenCount += int64(tokens)
	c.roundCount += int64(rounds)
	c.totalDuration += duration.Nanoseconds()
}

// RecordTool records one tool invocation.
func (c *Collector) RecordTool(name string, failed, degraded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tools[name]
	if !ok {
		t = &ToolStats{}
		c.tools[name] = t
	}
	t.Calls++
	if failed {
		t.Failures++
	}
	if degraded {
		t.Degraded++
	}
}

// RecordError records a failed request.
func (c *Collector) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
}

// StartTime returns when the collector started.
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// GetMetrics returns current metrics.
func (c *Collector) GetMetrics() (requests, tokens, errors int64, totalDuration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestCount, c.tokenCount, c.errorCount, time.Duration(c.totalDuration)
}

// ToolNames returns the names of tools seen so far, sorted.
func (s *Stats) ToolNames() []string {
	names := make([]string, 0, len(s.Tools))
	for name := range s.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// bytesToMB converts bytes to megabytes.
func bytesToMB(b int64) float64 {
	return float64(b) / 1024 / 1024
}
