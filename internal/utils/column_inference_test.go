package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferColumnsFromSQL(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"alias with AS", "SELECT 1 as test", []string{"test"}},
		{"binary expression", "SELECT a + b FROM t", []string{"EXPR$0"}},
		{"quoted alias", `SELECT COUNT(*) "total", name FROM t`, []string{"total", "name"}},
		{"qualified columns", "SELECT u.id, u.name AS n FROM users u", []string{"id", "n"}},
		{"bare alias after comment", "-- header\nSELECT x y FROM t", []string{"y"}},
		{"block comment", "/* SELECT z */ SELECT a FROM t", []string{"a"}},
		{"distinct", "SELECT DISTINCT a, b FROM t", []string{"a", "b"}},
		{"subquery alias", "SELECT a, (SELECT max(b) FROM t2) AS m FROM t", []string{"a", "m"}},
		{"case expression", "SELECT CASE WHEN a THEN 1 ELSE 0 END FROM t", []string{"EXPR$0"}},
		{"literals", "SELECT 1, 2", []string{"EXPR$0", "EXPR$1"}},
		{"comma inside string", "SELECT 'a,b' AS s, c FROM t", []string{"s", "c"}},
		{"no select", "SHOW TABLES", []string{"EXPR$0"}},
		{"empty", "", []string{"EXPR$0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferColumnsFromSQL(tt.sql))
		})
	}
}
