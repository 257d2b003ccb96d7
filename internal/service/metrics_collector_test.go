package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dremio-gateway/internal/model"
)

func successEntry(rows int, elapsed int64) *model.ProtocolReport {
	return &model.ProtocolReport{Success: true, RowCount: &rows, ExecutionTimeMs: &elapsed}
}

func TestMetricsCollector_RecordReport(t *testing.T) {
	collector := NewMetricsCollector()

	collector.RecordReport(model.ProtocolREST, successEntry(10, 40))
	collector.RecordReport(model.ProtocolREST, successEntry(5, 20))
	collector.RecordReport(model.ProtocolREST, &model.ProtocolReport{ErrorKind: model.KindTimeout, ErrorMessage: "slow"})
	collector.RecordReport(model.ProtocolFlight, successEntry(1, 3))
	collector.RecordReport(model.ProtocolFlight, nil)

	snapshot := collector.Snapshot()
	require.Len(t, snapshot.Protocols, 2)
	assert.Equal(t, model.ProtocolFlight, snapshot.Protocols[0].Protocol)

	rest := snapshot.Protocols[1]
	assert.Equal(t, int64(3), rest.TotalQueries)
	assert.Equal(t, int64(2), rest.SuccessfulQueries)
	assert.Equal(t, int64(1), rest.FailedQueries)
	assert.Equal(t, int64(15), rest.TotalRowsRead)
	assert.Equal(t, int64(20), rest.MinExecutionMs)
	assert.Equal(t, int64(40), rest.MaxExecutionMs)
	assert.Equal(t, int64(30), rest.AvgExecutionMs)
	assert.Equal(t, int64(1), rest.FailuresByKind[model.KindTimeout])
	assert.Equal(t, "slow", rest.LastError)
}

func TestMetricsCollector_SnapshotIsACopy(t *testing.T) {
	collector := NewMetricsCollector()
	collector.RecordReport(model.ProtocolODBC, &model.ProtocolReport{ErrorKind: model.KindDriverNotFound})

	snapshot := collector.Snapshot()
	snapshot.Protocols[0].FailuresByKind[model.KindDriverNotFound] = 99

	assert.Equal(t, int64(1), collector.Snapshot().Protocols[0].FailuresByKind[model.KindDriverNotFound])
}

func TestMetricsCollector_ResetAndNil(t *testing.T) {
	collector := NewMetricsCollector()
	collector.RecordReport(model.ProtocolJDBC, successEntry(1, 1))
	collector.Reset()
	assert.Empty(t, collector.Snapshot().Protocols)

	var missing *MetricsCollector
	assert.NotPanics(t, func() { missing.RecordReport(model.ProtocolJDBC, successEntry(1, 1)) })
}
