package service

import (
	"sort"
	"sync"
	"time"

	"dremio-gateway/internal/model"
)

// MetricsCollector aggregates per-protocol query outcomes in process so
// callers can compare protocols side by side.
type MetricsCollector struct {
	mutex     sync.RWMutex
	protocols map[model.Protocol]*ProtocolStats
	startTime time.Time
}

// ProtocolStats holds aggregated outcomes for one protocol
type ProtocolStats struct {
	Protocol          model.Protocol            `json:"protocol"`
	TotalQueries      int64                     `json:"totalQueries"`
	SuccessfulQueries int64                     `json:"successfulQueries"`
	FailedQueries     int64                     `json:"failedQueries"`
	TotalRowsRead     int64                     `json:"totalRowsRead"`
	MinExecutionMs    int64                     `json:"minExecutionMs"`
	MaxExecutionMs    int64                     `json:"maxExecutionMs"`
	AvgExecutionMs    int64                     `json:"avgExecutionMs"`
	FailuresByKind    map[model.ErrorKind]int64 `json:"failuresByKind,omitempty"`
	LastError         string                    `json:"lastError,omitempty"`
	LastErrorTime     time.Time                 `json:"lastErrorTime,omitempty"`
	LastQueryTime     time.Time                 `json:"lastQueryTime"`

	totalExecutionMs int64
}

// StatsSnapshot is a copy of the collector state
type StatsSnapshot struct {
	Protocols []ProtocolStats `json:"protocols"`
	Uptime    string          `json:"uptime"`
}

// NewMetricsCollector creates an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		protocols: make(map[model.Protocol]*ProtocolStats),
		startTime: time.Now(),
	}
}

// RecordReport folds one protocol's report entry into the stats
func (mc *MetricsCollector) RecordReport(protocol model.Protocol, entry *model.ProtocolReport) {
	if mc == nil || entry == nil {
		return
	}

	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	stats, exists := mc.protocols[protocol]
	if !exists {
		stats = &ProtocolStats{
			Protocol:       protocol,
			FailuresByKind: make(map[model.ErrorKind]int64),
		}
		mc.protocols[protocol] = stats
	}

	now := time.Now()
	stats.TotalQueries++
	stats.LastQueryTime = now

	if !entry.Success {
		stats.FailedQueries++
		stats.FailuresByKind[entry.ErrorKind]++
		stats.LastError = entry.ErrorMessage
		stats.LastErrorTime = now
		return
	}

	stats.SuccessfulQueries++
	if entry.RowCount != nil {
		stats.TotalRowsRead += int64(*entry.RowCount)
	}
	if entry.ExecutionTimeMs != nil {
		elapsed := *entry.ExecutionTimeMs
		if stats.SuccessfulQueries == 1 || elapsed < stats.MinExecutionMs {
			stats.MinExecutionMs = elapsed
		}
		if elapsed > stats.MaxExecutionMs {
			stats.MaxExecutionMs = elapsed
		}
		stats.totalExecutionMs += elapsed
		stats.AvgExecutionMs = stats.totalExecutionMs / stats.SuccessfulQueries
	}
}

// Snapshot returns a copy of the stats ordered by protocol
func (mc *MetricsCollector) Snapshot() StatsSnapshot {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()

	snapshot := StatsSnapshot{
		Protocols: make([]ProtocolStats, 0, len(mc.protocols)),
		Uptime:    time.Since(mc.startTime).Round(time.Second).String(),
	}
	for _, stats := range mc.protocols {
		copied := *stats
		copied.FailuresByKind = make(map[model.ErrorKind]int64, len(stats.FailuresByKind))
		for kind, count := range stats.FailuresByKind {
			copied.FailuresByKind[kind] = count
		}
		snapshot.Protocols = append(snapshot.Protocols, copied)
	}
	sort.Slice(snapshot.Protocols, func(i, j int) bool {
		return snapshot.Protocols[i].Protocol < snapshot.Protocols[j].Protocol
	})
	return snapshot
}

// Reset clears every protocol's stats
func (mc *MetricsCollector) Reset() {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	mc.protocols = make(map[model.Protocol]*ProtocolStats)
	mc.startTime = time.Now()
}
