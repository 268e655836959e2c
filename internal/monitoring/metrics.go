// Package monitoring collects per-operation execution metrics for filter and grouping runs.
package monitoring

import (
	"runtime"
	"sync"
	"time"
)

// Stats is what an operation reports about itself.
type Stats struct {
	Strategy    string
	RowsRead    int64
	RowsWritten int64
	Groups      int64
	SpilledRuns int
}

// OperationMetrics represents execution metrics for a single operation.
type OperationMetrics struct {
	Operation   string        `json:"operation"`
	Strategy    string        `json:"strategy"`
	Duration    time.Duration `json:"duration"`
	RowsRead    int64         `json:"rows_read"`
	RowsWritten int64         `json:"rows_written"`
	Groups      int64         `json:"groups,omitempty"`
	SpilledRuns int           `json:"spilled_runs,omitempty"`
	MemoryUsed  int64         `json:"memory_used"`
	Failed      bool          `json:"failed"`
}

// MetricsCollector collects and stores metrics for executed operations.
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics []OperationMetrics
	enabled bool
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(enabled bool) *MetricsCollector {
	return &MetricsCollector{
		metrics: make([]OperationMetrics, 0),
		enabled: enabled,
	}
}

// IsEnabled returns whether metrics collection is enabled.
func (mc *MetricsCollector) IsEnabled() bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.enabled
}

// RecordOperation executes fn and records its metrics. Failed operations are
// recorded too.
func (mc *MetricsCollector) RecordOperation(operation string, fn func() (Stats, error)) error {
	if !mc.IsEnabled() {
		_, err := fn()
		return err
	}

	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)
	start := time.Now()

	stats, err := fn()

	duration := time.Since(start)
	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)

	metrics := OperationMetrics{
		Operation:   operation,
		Strategy:    stats.Strategy,
		Duration:    duration,
		RowsRead:    stats.RowsRead,
		RowsWritten: stats.RowsWritten,
		Groups:      stats.Groups,
		SpilledRuns: stats.SpilledRuns,
		MemoryUsed:  int64(memAfter.TotalAlloc - memBefore.TotalAlloc), //nolint:gosec // Memory values are expected to be safe
		Failed:      err != nil,
	}

	mc.mu.Lock()
	mc.metrics = append(mc.metrics, metrics)
	mc.mu.Unlock()

	return err
}

// GetMetrics returns a copy of all collected metrics.
func (mc *MetricsCollector) GetMetrics() []OperationMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make([]OperationMetrics, len(mc.metrics))
	copy(result, mc.metrics)
	return result
}

// Clear removes all collected metrics.
func (mc *MetricsCollector) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics = mc.metrics[:0]
}

// SetEnabled enables or disables metrics collection.
func (mc *MetricsCollector) SetEnabled(enabled bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.enabled = enabled
}

// GetSummary returns a summary of collected metrics.
func (mc *MetricsCollector) GetSummary() MetricsSummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if len(mc.metrics) == 0 {
		return MetricsSummary{}
	}

	summary := MetricsSummary{
		TotalOperations: len(mc.metrics),
		OperationCounts: make(map[string]int),
		StrategyCounts:  make(map[string]int),
	}
	for _, metric := range mc.metrics {
		summary.TotalDuration += metric.Duration
		summary.TotalRowsRead += metric.RowsRead
		summary.TotalRowsWritten += metric.RowsWritten
		summary.TotalSpilledRuns += metric.SpilledRuns
		summary.OperationCounts[metric.Operation]++
		if metric.Strategy != "" {
			summary.StrategyCounts[metric.Strategy]++
		}
		if metric.Failed {
			summary.Failures++
		}
	}
	summary.AverageDuration = summary.TotalDuration / time.Duration(len(mc.metrics))
	return summary
}

// MetricsSummary provides aggregate statistics for collected metrics.
type MetricsSummary struct {
	TotalOperations  int            `json:"total_operations"`
	TotalDuration    time.Duration  `json:"total_duration"`
	TotalRowsRead    int64          `json:"total_rows_read"`
	TotalRowsWritten int64          `json:"total_rows_written"`
	TotalSpilledRuns int            `json:"total_spilled_runs"`
	Failures         int            `json:"failures"`
	OperationCounts  map[string]int `json:"operation_counts"`
	StrategyCounts   map[string]int `json:"strategy_counts"`
	AverageDuration  time.Duration  `json:"average_duration"`
}
