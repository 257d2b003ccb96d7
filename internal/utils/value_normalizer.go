package utils

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ValueNormalizer converts driver-specific values into the closed set of
// result scalars: nil, string, int64, float64, bool and time.Time.
type ValueNormalizer struct{}

// NewValueNormalizer creates a new ValueNormalizer instance
func NewValueNormalizer() *ValueNormalizer {
	return &ValueNormalizer{}
}

// NormalizeRow normalizes every value of a row in place and returns it
func (vn *ValueNormalizer) NormalizeRow(row []interface{}) []interface{} {
	for i, v := range row {
		row[i] = vn.Normalize(v)
	}
	return row
}

// Normalize converts a single value. Non-finite floats become nil.
func (vn *ValueNormalizer) Normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	case bool:
		return v
	case time.Time:
		return v
	case *time.Time:
		if v == nil {
			return nil
		}
		return *v
	case []byte:
		return string(v)
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return vn.normalizeUnsigned(uint64(v))
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return vn.normalizeUnsigned(v)
	case float32:
		return vn.normalizeFloat(float64(v))
	case float64:
		return vn.normalizeFloat(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return vn.normalizeFloat(f)
		}
		return v.String()
	case driver.Valuer:
		inner, err := v.Value()
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		if _, again := inner.(driver.Valuer); again {
			return fmt.Sprintf("%v", inner)
		}
		return vn.Normalize(inner)
	case fmt.Stringer:
		return v.String()
	case map[string]interface{}, []interface{}:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (vn *ValueNormalizer) normalizeFloat(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func (vn *ValueNormalizer) normalizeUnsigned(u uint64) interface{} {
	if u > math.MaxInt64 {
		return fmt.Sprintf("%d", u)
	}
	return int64(u)
}
