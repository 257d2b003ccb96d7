package utils

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValueNormalizer_Normalize(t *testing.T) {
	vn := NewValueNormalizer()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name  string
		input interface{}
		want  interface{}
	}{
		{"nil", nil, nil},
		{"string", "abc", "abc"},
		{"bool", true, true},
		{"bytes", []byte("raw"), "raw"},
		{"int32", int32(7), int64(7)},
		{"uint8", uint8(255), int64(255)},
		{"small uint64", uint64(42), int64(42)},
		{"huge uint64", uint64(math.MaxUint64), "18446744073709551615"},
		{"float", 1.5, 1.5},
		{"float32", float32(0.25), 0.25},
		{"NaN", math.NaN(), nil},
		{"+Inf", math.Inf(1), nil},
		{"-Inf", float32(math.Inf(-1)), nil},
		{"json integer", json.Number("12"), int64(12)},
		{"json float", json.Number("1.25"), 1.25},
		{"time", ts, ts},
		{"time pointer", &ts, ts},
		{"map", map[string]interface{}{"k": "v"}, `{"k":"v"}`},
		{"list", []interface{}{int64(1), "x"}, `[1,"x"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, vn.Normalize(tt.input))
		})
	}
}

func TestValueNormalizer_NormalizeRow(t *testing.T) {
	vn := NewValueNormalizer()
	row := vn.NormalizeRow([]interface{}{int16(1), []byte("b"), math.NaN()})
	assert.Equal(t, []interface{}{int64(1), "b", nil}, row)
}
