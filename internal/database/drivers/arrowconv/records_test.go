package arrowconv

import (
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int32},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "score", Type: arrow.PrimitiveTypes.Float32},
}, nil)

func buildRecord(t *testing.T) arrow.Record {
	t.Helper()
	builder := array.NewRecordBuilder(memory.NewGoAllocator(), testSchema)
	defer builder.Release()

	builder.Field(0).(*array.Int32Builder).AppendValues([]int32{1, 2}, nil)
	builder.Field(1).(*array.StringBuilder).AppendValues([]string{"a", ""}, []bool{true, false})
	builder.Field(2).(*array.Float32Builder).AppendValues([]float32{0.5, 1.5}, nil)
	return builder.NewRecord()
}

func TestReadAll(t *testing.T) {
	rec := buildRecord(t)
	defer rec.Release()

	reader, err := array.NewRecordReader(testSchema, []arrow.Record{rec})
	require.NoError(t, err)
	defer reader.Release()

	result, err := ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "score"}, result.Columns)
	assert.Equal(t, [][]interface{}{
		{int64(1), "a", 0.5},
		{int64(2), nil, 1.5},
	}, result.Rows)
}

func TestReadAll_EmptyStreamKeepsSchema(t *testing.T) {
	reader, err := array.NewRecordReader(testSchema, nil)
	require.NoError(t, err)
	defer reader.Release()

	result, err := ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "score"}, result.Columns)
	assert.Empty(t, result.Rows)
	assert.True(t, result.HasSchema())
}

func TestColumnNames_NilSchema(t *testing.T) {
	assert.Nil(t, ColumnNames(nil))
}
