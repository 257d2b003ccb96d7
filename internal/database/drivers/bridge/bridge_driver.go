package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-adbc/go/adbc/driver/flightsql"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/database/drivers/arrowconv"
	"dremio-gateway/internal/model"
)

// ArtifactPattern matches the JDBC driver artifacts the bridge recognizes.
const ArtifactPattern = "*.jar"

// Options configures the JDBC bridge
type Options struct {
	// ArtifactDir holds the JDBC driver artifacts that select the URL dialect
	ArtifactDir string
	Logger      *zap.Logger
}

// JDBCBridgeDriver serves JDBC connection candidates by translating their
// URLs onto the ADBC Flight SQL driver.
type JDBCBridgeDriver struct {
	*drivers.DriverBase
	opts   Options
	adbc   adbc.Driver
	logger *zap.Logger
}

// NewJDBCBridgeDriver creates the bridge driver
func NewJDBCBridgeDriver(opts Options) *JDBCBridgeDriver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JDBCBridgeDriver{
		DriverBase: drivers.NewDriverBase(model.ProtocolJDBC, "Flight SQL JDBC bridge", "github.com/apache/arrow-adbc/go/adbc"),
		opts:       opts,
		adbc:       flightsql.NewDriver(memory.DefaultAllocator),
		logger:     logger,
	}
}

type bridgeHandle struct {
	database   adbc.Database
	connection adbc.Connection
	url        string
}

func (h *bridgeHandle) Protocol() model.Protocol { return model.ProtocolJDBC }

// Artifacts lists driver artifacts in the configured directory, sorted by name.
func (d *JDBCBridgeDriver) Artifacts() ([]string, error) {
	return FindArtifacts(d.opts.ArtifactDir)
}

// FindArtifacts lists JDBC driver artifacts in dir, sorted by name.
func FindArtifacts(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	return filepath.Glob(filepath.Join(dir, ArtifactPattern))
}

// CheckAvailability requires at least one driver artifact on disk.
func (d *JDBCBridgeDriver) CheckAvailability() error {
	artifacts, err := d.Artifacts()
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", d.opts.ArtifactDir, err)
	}
	if len(artifacts) == 0 {
		return fmt.Errorf("no JDBC driver artifacts (%s) found in %s", ArtifactPattern, d.opts.ArtifactDir)
	}
	return nil
}

func (d *JDBCBridgeDriver) GetCapabilities() model.ProtocolCapabilities {
	return model.ProtocolCapabilities{
		ReportsSchema:     true,
		ColumnarTransport: true,
		RequiresArtifact:  true,
	}
}

// Open verifies the candidate's driver artifact, translates its URL and
// opens an ADBC connection.
func (d *JDBCBridgeDriver) Open(ctx context.Context, candidate model.ConnectionCandidate) (drivers.Handle, error) {
	if isArtifactPath(candidate.DriverIdentifier) {
		if _, err := os.Stat(candidate.DriverIdentifier); err != nil {
			return nil, fmt.Errorf("driver artifact file not found: %s", candidate.DriverIdentifier)
		}
	}

	jdbcURL := candidate.ConnectionString
	if jdbcURL == "" {
		jdbcURL = candidate.TargetEndpoint
	}
	opts, err := DatabaseOptions(jdbcURL, candidate.Auth)
	if err != nil {
		return nil, err
	}
	if candidate.SkipVerify {
		opts[flightsql.OptionSSLSkipVerify] = adbc.OptionValueEnabled
	}

	database, err := d.adbc.NewDatabase(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ADBC database: %w", err)
	}

	connection, err := database.Open(ctx)
	if err != nil {
		closeQuietly(database)
		return nil, fmt.Errorf("failed to open ADBC connection: %w", err)
	}

	handle := &bridgeHandle{database: database, connection: connection, url: model.RedactSecrets(jdbcURL)}
	if _, err := d.Run(ctx, handle, "SELECT 1"); err != nil {
		d.Close(handle)
		return nil, err
	}

	d.logger.Debug("jdbc bridge connection established", zap.String("url", handle.url))
	return handle, nil
}

func (d *JDBCBridgeDriver) Run(ctx context.Context, handle drivers.Handle, sql string) (*drivers.NativeResult, error) {
	if err := d.CheckHandle(handle); err != nil {
		return nil, err
	}
	h := handle.(*bridgeHandle)

	stmt, err := h.connection.NewStatement()
	if err != nil {
		return nil, fmt.Errorf("failed to create statement: %w", err)
	}
	defer stmt.Close()

	if err := stmt.SetSqlQuery(sql); err != nil {
		return nil, fmt.Errorf("failed to set query: %w", err)
	}

	rdr, _, err := stmt.ExecuteQuery(ctx)
	if err != nil {
		return nil, fmt.Errorf("jdbc bridge execute failed: %w", err)
	}
	defer rdr.Release()

	return arrowconv.ReadAll(rdr)
}

func (d *JDBCBridgeDriver) Close(handle drivers.Handle) error {
	if err := d.CheckHandle(handle); err != nil {
		return err
	}
	h := handle.(*bridgeHandle)
	err := h.connection.Close()
	closeQuietly(h.database)
	return err
}

// closeQuietly releases a database when the ADBC version exposes Close.
func closeQuietly(database adbc.Database) {
	if closer, ok := database.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func isArtifactPath(identifier string) bool {
	return strings.HasSuffix(strings.ToLower(identifier), ".jar") || strings.ContainsRune(identifier, os.PathSeparator)
}
