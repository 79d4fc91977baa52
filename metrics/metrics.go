package metrics

import (
	"sync"
	"time"
)

// Metrics tracks consensus-level counters: blocks accepted, fork
// comparisons, the latest difficulty, and solver HASH events.
type Metrics struct {
	BlockCount        uint64
	ForkComparisons   uint64
	ForkSwitches      uint64
	DifficultyGauge   int
	TotalHashRate     uint64
	ErrorCount        uint64
	StartTime         time.Time
	LastBlockTime     time.Time
	ProtocolErrors    uint64
	mutex             sync.RWMutex
}

var globalMetrics *Metrics

func init() {
	globalMetrics = &Metrics{
		StartTime: time.Now(),
	}
}

func GetMetrics() *Metrics {
	return globalMetrics
}

func (m *Metrics) IncrementBlockCount() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.BlockCount++
	m.LastBlockTime = time.Now()
}

func (m *Metrics) IncrementForkComparisons() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.ForkComparisons++
}

func (m *Metrics) IncrementForkSwitches() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.ForkSwitches++
}

func (m *Metrics) SetDifficultyGauge(difficulty int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.DifficultyGauge = difficulty
}

func (m *Metrics) SetHashRate(hashRate uint64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.TotalHashRate = hashRate
}

// IncrementHashRate counts one more accepted HASH event from a solver.
// Named to match the counter it feeds (TotalHashRate); it's a running
// count rather than a per-second rate, since the solver protocol reports
// improved results, not sample intervals.
func (m *Metrics) IncrementHashRate() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.TotalHashRate++
}

func (m *Metrics) IncrementErrorCount() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.ErrorCount++
}

func (m *Metrics) IncrementProtocolErrors() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.ProtocolErrors++
}

func (m *Metrics) GetUptime() time.Duration {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return time.Since(m.StartTime)
}

func (m *Metrics) GetBlocksPerSecond() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	uptime := time.Since(m.StartTime)
	if uptime.Seconds() == 0 {
		return 0
	}
	return float64(m.BlockCount) / uptime.Seconds()
}

func (m *Metrics) ToMap() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return map[string]interface{}{
		"block_count":        m.BlockCount,
		"fork_comparisons":   m.ForkComparisons,
		"fork_switches":      m.ForkSwitches,
		"difficulty_gauge":   m.DifficultyGauge,
		"total_hash_rate":    m.TotalHashRate,
		"error_count":        m.ErrorCount,
		"protocol_errors":    m.ProtocolErrors,
		"uptime_seconds":     time.Since(m.StartTime).Seconds(),
		"blocks_per_second":  m.GetBlocksPerSecond(),
		"last_block_time":    m.LastBlockTime.Unix(),
	}
}
