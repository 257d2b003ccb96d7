package arrowconv

import (
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"

	"dremio-gateway/internal/database/drivers"
)

// RecordStream is the subset of an Arrow record reader the converters need.
// Both flight.Reader and array.RecordReader satisfy it.
type RecordStream interface {
	Schema() *arrow.Schema
	Next() bool
	Record() arrow.Record
	Err() error
}

// ColumnNames returns the field names of a schema, never nil.
func ColumnNames(schema *arrow.Schema) []string {
	if schema == nil {
		return nil
	}
	names := make([]string, 0, schema.NumFields())
	for _, field := range schema.Fields() {
		names = append(names, field.Name)
	}
	return names
}

// ReadAll drains stream into a NativeResult. The schema is taken from the
// stream, so a result with zero batches still carries its columns.
func ReadAll(stream RecordStream) (*drivers.NativeResult, error) {
	result := &drivers.NativeResult{
		Columns: ColumnNames(stream.Schema()),
		Rows:    make([][]interface{}, 0),
	}

	for stream.Next() {
		rec := stream.Record()
		if result.Columns == nil {
			result.Columns = ColumnNames(rec.Schema())
		}
		AppendRecord(result, rec)
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("failed to read record batch: %w", err)
	}

	return result, nil
}

// AppendRecord converts one record batch row by row.
func AppendRecord(result *drivers.NativeResult, rec arrow.Record) {
	numRows := int(rec.NumRows())
	numCols := int(rec.NumCols())
	for r := 0; r < numRows; r++ {
		row := make([]interface{}, numCols)
		for c := 0; c < numCols; c++ {
			row[c] = Value(rec.Column(c), r)
		}
		result.Rows = append(result.Rows, row)
	}
}

// Value extracts one cell as a plain Go value.
func Value(arr arrow.Array, i int) interface{} {
	if arr.IsNull(i) {
		return nil
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return a.Value(i)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit)
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Date64:
		return a.Value(i).ToTime()
	default:
		return arr.GetOneForMarshal(i)
	}
}
