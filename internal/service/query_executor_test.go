package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/database/drivers/drivertest"
	"dremio-gateway/internal/model"
)

func openStub(t *testing.T, stub *drivertest.StubDriver) drivers.Handle {
	t.Helper()
	handle, err := stub.Open(context.Background(), model.ConnectionCandidate{Protocol: stub.Protocol(), Ordinal: 1})
	require.NoError(t, err)
	return handle
}

func TestQueryExecutor_PrefixesDriverComment(t *testing.T) {
	stub := drivertest.New(model.ProtocolFlight, "Stub Flight")
	executor := NewQueryExecutor(zaptest.NewLogger(t))

	result, err := executor.Execute(context.Background(), stub, openStub(t, stub), "SELECT 1 as test")
	require.NoError(t, err)

	assert.Equal(t, "/* Driver: Stub Flight vunknown */ SELECT 1 as test", stub.LastQuery())
	assert.Equal(t, []string{"test"}, result.Columns)
	assert.Equal(t, []map[string]interface{}{{"test": int64(1)}}, result.Rows)
	assert.Equal(t, 1, result.RowCount)
	assert.Equal(t, model.SchemaKnown, result.SchemaSource)
	assert.Equal(t, model.ProtocolFlight, result.ProtocolUsed)
}

func TestQueryExecutor_ZeroRowsKeepSchema(t *testing.T) {
	stub := drivertest.New(model.ProtocolJDBC, "Stub JDBC")
	stub.Result = &drivers.NativeResult{Columns: []string{"a", "b"}, Rows: [][]interface{}{}}
	executor := NewQueryExecutor(zaptest.NewLogger(t))

	result, err := executor.Execute(context.Background(), stub, openStub(t, stub), "SELECT a, b FROM t WHERE 1 = 0")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, result.Columns)
	assert.NotNil(t, result.Rows)
	assert.Empty(t, result.Rows)
	assert.Equal(t, 0, result.RowCount)
	assert.Equal(t, model.SchemaKnown, result.SchemaSource)
}

func TestQueryExecutor_InfersColumnsWithoutSchema(t *testing.T) {
	stub := drivertest.New(model.ProtocolODBC, "Stub ODBC")
	stub.Result = &drivers.NativeResult{Rows: [][]interface{}{{int32(7), []byte("x")}}}
	executor := NewQueryExecutor(zaptest.NewLogger(t))

	result, err := executor.Execute(context.Background(), stub, openStub(t, stub), "SELECT id, name FROM users")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, result.Columns)
	assert.Equal(t, model.SchemaInferred, result.SchemaSource)
	assert.Equal(t, map[string]interface{}{"id": int64(7), "name": "x"}, result.Rows[0])
}

func TestQueryExecutor_RowDerivedColumnsAreInferred(t *testing.T) {
	stub := drivertest.New(model.ProtocolREST, "Stub REST")
	stub.Result = &drivers.NativeResult{
		Columns:         []string{"a", "b"},
		ColumnsInferred: true,
		Rows:            [][]interface{}{{int64(1), "x"}},
	}
	executor := NewQueryExecutor(zaptest.NewLogger(t))

	result, err := executor.Execute(context.Background(), stub, openStub(t, stub), "SELECT * FROM t")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, result.Columns)
	assert.Equal(t, []map[string]interface{}{{"a": int64(1), "b": "x"}}, result.Rows)
	assert.Equal(t, model.SchemaInferred, result.SchemaSource)
}

func TestQueryExecutor_WidensColumnsForExtraValues(t *testing.T) {
	stub := drivertest.New(model.ProtocolODBC, "Stub ODBC")
	stub.Result = &drivers.NativeResult{Rows: [][]interface{}{{1, 2, math.NaN()}}}
	executor := NewQueryExecutor(zaptest.NewLogger(t))

	result, err := executor.Execute(context.Background(), stub, openStub(t, stub), "SELECT a FROM t")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "EXPR$1", "EXPR$2"}, result.Columns)
	assert.Equal(t, map[string]interface{}{"a": int64(1), "EXPR$1": int64(2), "EXPR$2": nil}, result.Rows[0])
}

func TestQueryExecutor_ShortRowsArePaddedWithNil(t *testing.T) {
	stub := drivertest.New(model.ProtocolREST, "Stub REST")
	stub.Result = &drivers.NativeResult{Columns: []string{"a", "b"}, Rows: [][]interface{}{{"only"}}}
	executor := NewQueryExecutor(zaptest.NewLogger(t))

	result, err := executor.Execute(context.Background(), stub, openStub(t, stub), "SELECT a, b FROM t")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": "only", "b": nil}, result.Rows[0])
}

func TestQueryExecutor_PropagatesRunError(t *testing.T) {
	stub := drivertest.New(model.ProtocolFlight, "Stub Flight")
	stub.RunErr = errors.New("table not found")
	executor := NewQueryExecutor(zaptest.NewLogger(t))

	_, err := executor.Execute(context.Background(), stub, openStub(t, stub), "SELECT * FROM missing")
	assert.EqualError(t, err, "table not found")
}
