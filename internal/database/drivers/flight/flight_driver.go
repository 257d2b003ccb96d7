package flight

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	arrowflight "github.com/apache/arrow/go/v14/arrow/flight"
	"github.com/apache/arrow/go/v14/arrow/flight/flightsql"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/database/drivers/arrowconv"
	"dremio-gateway/internal/model"
)

const (
	authorizationHeader = "authorization"
	projectIDHeader     = "project_id"
	pingQuery           = "SELECT 1"
)

// Options configures the Flight SQL driver
type Options struct {
	// CertPath is an optional PEM bundle used instead of the system roots
	CertPath string
	Logger   *zap.Logger
}

// FlightSQLDriver speaks Arrow Flight SQL over gRPC.
type FlightSQLDriver struct {
	*drivers.DriverBase
	opts   Options
	logger *zap.Logger
}

// NewFlightSQLDriver creates a Flight SQL driver
func NewFlightSQLDriver(opts Options) *FlightSQLDriver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlightSQLDriver{
		DriverBase: drivers.NewDriverBase(model.ProtocolFlight, "Arrow Flight SQL", "github.com/apache/arrow/go/v14"),
		opts:       opts,
		logger:     logger,
	}
}

type flightHandle struct {
	client *flightsql.Client
	md     metadata.MD
}

func (h *flightHandle) Protocol() model.Protocol { return model.ProtocolFlight }

// CheckAvailability always succeeds: the Flight SQL client is compiled in.
func (d *FlightSQLDriver) CheckAvailability() error {
	return nil
}

func (d *FlightSQLDriver) GetCapabilities() model.ProtocolCapabilities {
	return model.ProtocolCapabilities{
		ReportsSchema:     true,
		ColumnarTransport: true,
	}
}

// Open dials the endpoint, authenticates and runs a probe statement so that a
// returned handle is known to work.
func (d *FlightSQLDriver) Open(ctx context.Context, candidate model.ConnectionCandidate) (drivers.Handle, error) {
	dialOpts, err := d.dialOptions(candidate)
	if err != nil {
		return nil, err
	}

	client, err := flightsql.NewClient(candidate.TargetEndpoint, nil, nil, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create flight sql client for %s: %w", candidate.TargetEndpoint, err)
	}

	handle := &flightHandle{client: client, md: metadata.MD{}}
	if candidate.Auth.ProjectID != "" {
		handle.md.Set(projectIDHeader, candidate.Auth.ProjectID)
	}

	switch candidate.Auth.Scheme {
	case model.AuthSchemeBearer:
		handle.md.Set(authorizationHeader, "Bearer "+candidate.Auth.Token)
	case model.AuthSchemeBasic:
		authCtx, err := client.Client.AuthenticateBasicToken(
			metadata.NewOutgoingContext(ctx, handle.md.Copy()), candidate.Auth.Username, candidate.Auth.Password)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("flight basic authentication failed: %w", err)
		}
		if md, ok := metadata.FromOutgoingContext(authCtx); ok {
			handle.md = metadata.Join(handle.md, md)
		}
	}

	if _, err := d.Run(ctx, handle, pingQuery); err != nil {
		client.Close()
		return nil, err
	}

	d.logger.Debug("flight sql connection established", zap.String("endpoint", candidate.TargetEndpoint))
	return handle, nil
}

// Run executes the statement and reads every endpoint of the resulting flight info.
func (d *FlightSQLDriver) Run(ctx context.Context, handle drivers.Handle, sql string) (*drivers.NativeResult, error) {
	if err := d.CheckHandle(handle); err != nil {
		return nil, err
	}
	h := handle.(*flightHandle)
	callCtx := metadata.NewOutgoingContext(ctx, h.md.Copy())

	info, err := h.client.Execute(callCtx, sql)
	if err != nil {
		return nil, fmt.Errorf("flight sql execute failed: %w", err)
	}

	result := &drivers.NativeResult{Rows: make([][]interface{}, 0)}
	for _, endpoint := range info.Endpoint {
		rdr, err := h.client.DoGet(callCtx, endpoint.Ticket)
		if err != nil {
			return nil, fmt.Errorf("flight sql fetch failed: %w", err)
		}
		part, err := arrowconv.ReadAll(rdr)
		rdr.Release()
		if err != nil {
			return nil, err
		}
		if result.Columns == nil {
			result.Columns = part.Columns
		}
		result.Rows = append(result.Rows, part.Rows...)
	}

	if result.Columns == nil {
		if schema, err := arrowflight.DeserializeSchema(info.Schema, memory.DefaultAllocator); err == nil {
			result.Columns = arrowconv.ColumnNames(schema)
		}
	}

	return result, nil
}

func (d *FlightSQLDriver) Close(handle drivers.Handle) error {
	if err := d.CheckHandle(handle); err != nil {
		return err
	}
	return handle.(*flightHandle).client.Close()
}

func (d *FlightSQLDriver) dialOptions(candidate model.ConnectionCandidate) ([]grpc.DialOption, error) {
	if !candidate.UseTLS {
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: candidate.SkipVerify}
	if d.opts.CertPath != "" && !candidate.SkipVerify {
		pem, err := os.ReadFile(d.opts.CertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", d.opts.CertPath)
		}
		tlsConfig.RootCAs = pool
	}

	return []grpc.DialOption{grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig))}, nil
}
