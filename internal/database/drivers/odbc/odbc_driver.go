package odbc

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/model"
)

// SQLDriverName is the database/sql driver name registered by
// github.com/alexbrainman/odbc. The binary links it with a blank import.
const SQLDriverName = "odbc"

// Options configures the ODBC driver
type Options struct {
	Logger *zap.Logger
	// Registered reports the database/sql drivers linked into the binary.
	// Defaults to sql.Drivers.
	Registered func() []string
}

// ODBCDriver runs statements through an ODBC driver manager.
type ODBCDriver struct {
	*drivers.DriverBase
	opts   Options
	logger *zap.Logger
}

// NewODBCDriver creates the ODBC driver
func NewODBCDriver(opts Options) *ODBCDriver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Registered == nil {
		opts.Registered = sql.Drivers
	}
	return &ODBCDriver{
		DriverBase: drivers.NewDriverBase(model.ProtocolODBC, "Arrow Flight SQL ODBC", "github.com/alexbrainman/odbc"),
		opts:       opts,
		logger:     logger,
	}
}

type odbcHandle struct {
	db *sql.DB
}

func (h *odbcHandle) Protocol() model.Protocol { return model.ProtocolODBC }

// CheckAvailability reports whether the odbc database/sql driver is linked.
func (d *ODBCDriver) CheckAvailability() error {
	for _, name := range d.opts.Registered() {
		if name == SQLDriverName {
			return nil
		}
	}
	return fmt.Errorf("database/sql driver %q is not registered", SQLDriverName)
}

func (d *ODBCDriver) GetCapabilities() model.ProtocolCapabilities {
	return model.ProtocolCapabilities{
		ReportsSchema:    true,
		RequiresArtifact: true,
	}
}

// Open connects with the candidate's connection string and pings the source.
func (d *ODBCDriver) Open(ctx context.Context, candidate model.ConnectionCandidate) (drivers.Handle, error) {
	db, err := sql.Open(SQLDriverName, candidate.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open odbc connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("odbc ping failed: %w", err)
	}

	d.logger.Debug("odbc connection established", zap.String("candidate", candidate.String()))
	return &odbcHandle{db: db}, nil
}

func (d *ODBCDriver) Run(ctx context.Context, handle drivers.Handle, query string) (*drivers.NativeResult, error) {
	if err := d.CheckHandle(handle); err != nil {
		return nil, err
	}
	h := handle.(*odbcHandle)

	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := &drivers.NativeResult{Columns: columns, Rows: make([][]interface{}, 0)}
	for rows.Next() {
		row, err := scanRow(rows, len(columns))
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return result, nil
}

func (d *ODBCDriver) Close(handle drivers.Handle) error {
	if err := d.CheckHandle(handle); err != nil {
		return err
	}
	return handle.(*odbcHandle).db.Close()
}

func scanRow(rows *sql.Rows, columnCount int) ([]interface{}, error) {
	row := make([]interface{}, columnCount)
	pointers := make([]interface{}, columnCount)
	for i := range row {
		pointers[i] = &row[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, err
	}
	return row, nil
}
