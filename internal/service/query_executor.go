package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/model"
	"dremio-gateway/internal/utils"
)

// QueryExecutor runs one statement on an open handle and shapes the result.
// It never retries.
type QueryExecutor struct {
	normalizer *utils.ValueNormalizer
	logger     *zap.Logger
}

// NewQueryExecutor creates a QueryExecutor
func NewQueryExecutor(logger *zap.Logger) *QueryExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryExecutor{
		normalizer: utils.NewValueNormalizer(),
		logger:     logger,
	}
}

// DriverComment is the comment prepended to every statement so the engine's
// job history shows which client ran it.
func DriverComment(driver drivers.Driver) string {
	return fmt.Sprintf("/* Driver: %s v%s */ ", driver.DisplayName(), driver.Version())
}

// Execute runs sql and converts the driver output. ExecutionTimeMs covers the
// driver call only.
func (qe *QueryExecutor) Execute(ctx context.Context, driver drivers.Driver, handle drivers.Handle, sql string) (*model.QueryResult, error) {
	statement := DriverComment(driver) + sql

	start := time.Now()
	native, err := driver.Run(ctx, handle, statement)
	elapsed := time.Since(start)
	if err != nil {
		qe.logger.Debug("statement failed",
			zap.String("protocol", string(driver.Protocol())),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}
	if native == nil {
		native = &drivers.NativeResult{}
	}

	result := &model.QueryResult{
		ProtocolUsed:    driver.Protocol(),
		ExecutionTimeMs: elapsed.Milliseconds(),
	}

	switch {
	case native.HasSchema():
		result.Columns = append([]string{}, native.Columns...)
		result.SchemaSource = model.SchemaKnown
	case native.Columns != nil:
		result.Columns = append([]string{}, native.Columns...)
		result.SchemaSource = model.SchemaInferred
	default:
		result.Columns = utils.InferColumnsFromSQL(sql)
		result.SchemaSource = model.SchemaInferred
	}

	result.Columns = widenColumns(result.Columns, native.Rows)
	result.Rows = make([]map[string]interface{}, 0, len(native.Rows))
	for _, raw := range native.Rows {
		values := qe.normalizer.NormalizeRow(raw)
		row := make(map[string]interface{}, len(result.Columns))
		for i, column := range result.Columns {
			if i < len(values) {
				row[column] = values[i]
			} else {
				row[column] = nil
			}
		}
		result.Rows = append(result.Rows, row)
	}
	result.RowCount = len(result.Rows)

	qe.logger.Debug("statement executed",
		zap.String("protocol", string(driver.Protocol())),
		zap.Int("rows", result.RowCount),
		zap.String("schema", string(result.SchemaSource)),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

// widenColumns adds placeholder names when rows carry more values than there
// are column names, so no value is dropped.
func widenColumns(columns []string, rows [][]interface{}) []string {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	for i := len(columns); i < width; i++ {
		columns = append(columns, fmt.Sprintf("EXPR$%d", i))
	}
	return columns
}
