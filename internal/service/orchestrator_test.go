package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dremio-gateway/internal/database"
	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/database/drivers/drivertest"
	"dremio-gateway/internal/model"
	"dremio-gateway/internal/utils"
)

func noFiles(string) ([]string, error) { return nil, nil }

type orchestratorFixture struct {
	registry    *database.DriverRegistry
	resolver    *database.ConnectionConfigResolver
	establisher *database.ConnectionEstablisher
	stubs       map[model.Protocol]*drivertest.StubDriver
}

func newFixture(t *testing.T, protocols ...model.Protocol) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{stubs: make(map[model.Protocol]*drivertest.StubDriver)}

	list := make([]drivers.Driver, 0, len(protocols))
	for _, protocol := range protocols {
		stub := drivertest.New(protocol, "Stub "+string(protocol))
		f.stubs[protocol] = stub
		list = append(list, stub)
	}

	logger := zaptest.NewLogger(t)
	f.registry = database.NewDriverRegistry(nil, logger, list)
	f.resolver = database.NewConnectionConfigResolver(database.ResolverConfig{SSLVerify: true, Glob: noFiles})
	f.establisher = database.NewConnectionEstablisher(f.registry, nil, 0, logger)
	return f
}

func (f *orchestratorFixture) orchestrator(t *testing.T, cfg OrchestratorConfig, opts ...OrchestratorOption) *Orchestrator {
	t.Helper()
	if cfg.Target.EndpointURL == "" {
		cfg.Target = model.NewDeploymentTarget("http://dremio.local:9047", "")
	}
	if cfg.Credential.IsEmpty() {
		cfg.Credential = model.PasswordCredential("alice", "secret")
	}
	o := NewOrchestrator(f.registry, f.resolver, f.establisher, cfg, zaptest.NewLogger(t), opts...)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestOrchestrator_ExecuteAcrossProtocols(t *testing.T) {
	f := newFixture(t, model.ProtocolFlight, model.ProtocolREST)
	o := f.orchestrator(t, OrchestratorConfig{})

	report, err := o.Execute(context.Background(), "SELECT 1 as test", []string{"flight", "rest"})
	require.NoError(t, err)

	assert.Equal(t, model.ReportSummary{TotalRequested: 2, Successful: 2, Failed: 0}, report.Summary)
	for _, protocol := range []model.Protocol{model.ProtocolFlight, model.ProtocolREST} {
		entry := report.PerProtocol[protocol]
		require.NotNil(t, entry, protocol)
		assert.True(t, entry.Success)
		assert.Equal(t, "Stub "+string(protocol), entry.DisplayName)
		require.NotNil(t, entry.RowCount)
		assert.Equal(t, 1, *entry.RowCount)
		assert.Equal(t, []string{"test"}, entry.Columns)
		assert.Equal(t, string(model.SchemaKnown), entry.SchemaSource)
		assert.NotNil(t, entry.ExecutionTimeMs)
	}
}

func TestOrchestrator_ParallelMatchesSequential(t *testing.T) {
	f := newFixture(t, model.AllProtocols()...)
	o := f.orchestrator(t, OrchestratorConfig{Parallel: true})

	report, err := o.Execute(context.Background(), "SELECT 1 as test", []string{"flight", "jdbc", "odbc", "rest"})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Summary.Successful)
	for _, stub := range f.stubs {
		assert.Equal(t, 1, stub.OpenCount())
	}
}

func TestOrchestrator_UnknownAndDuplicateProtocols(t *testing.T) {
	f := newFixture(t, model.ProtocolFlight)
	o := f.orchestrator(t, OrchestratorConfig{})

	report, err := o.Execute(context.Background(), "SELECT 1", []string{"flight", "FLIGHT", "mqtt"})
	require.NoError(t, err)

	assert.Equal(t, model.ReportSummary{TotalRequested: 2, Successful: 1, Failed: 1}, report.Summary)
	unknown := report.PerProtocol[model.Protocol("mqtt")]
	require.NotNil(t, unknown)
	assert.False(t, unknown.Success)
	assert.Equal(t, model.KindConfigurationError, unknown.ErrorKind)
	assert.Equal(t, "unknown protocol: mqtt", unknown.ErrorMessage)
	assert.Equal(t, 1, f.stubs[model.ProtocolFlight].OpenCount())
}

func TestOrchestrator_RefusedProtocolIsReported(t *testing.T) {
	f := newFixture(t, model.ProtocolFlight, model.ProtocolODBC)
	f.stubs[model.ProtocolODBC].Unavailable = errors.New("no ODBC driver library found")
	o := f.orchestrator(t, OrchestratorConfig{})

	report, err := o.Execute(context.Background(), "SELECT 1", []string{"odbc", "flight", "jdbc"})
	require.NoError(t, err)

	odbc := report.PerProtocol[model.ProtocolODBC]
	assert.Equal(t, model.KindDriverNotFound, odbc.ErrorKind)
	assert.Contains(t, odbc.ErrorMessage, "no ODBC driver library found")
	assert.NotEmpty(t, odbc.Suggestions)

	assert.Equal(t, model.KindDriverNotFound, report.PerProtocol[model.ProtocolJDBC].ErrorKind)
	assert.True(t, report.PerProtocol[model.ProtocolFlight].Success)
	assert.Zero(t, f.stubs[model.ProtocolODBC].OpenCount())
}

func TestOrchestrator_NothingRunnable(t *testing.T) {
	f := newFixture(t, model.ProtocolFlight)
	o := f.orchestrator(t, OrchestratorConfig{})

	_, err := o.Execute(context.Background(), "SELECT 1", nil)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeNoProtocols))

	_, err = o.Execute(context.Background(), "SELECT 1", []string{"mqtt", "odbc"})
	require.Error(t, err)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeNoProtocols))
	assert.Contains(t, err.Error(), "unknown protocol: mqtt")
}

func TestOrchestrator_ConnectFailureIsClassified(t *testing.T) {
	f := newFixture(t, model.ProtocolFlight, model.ProtocolREST)
	for ordinal := 1; ordinal <= 4; ordinal++ {
		f.stubs[model.ProtocolFlight].OpenErrors[ordinal] = errors.New("dial tcp 10.0.0.1:32010: connect: connection refused")
	}
	o := f.orchestrator(t, OrchestratorConfig{})

	report, err := o.Execute(context.Background(), "SELECT 1", []string{"flight", "rest"})
	require.NoError(t, err)

	flight := report.PerProtocol[model.ProtocolFlight]
	assert.False(t, flight.Success)
	assert.Equal(t, model.KindConnectionRefused, flight.ErrorKind)
	assert.NotEmpty(t, flight.Suggestions)
	assert.Nil(t, flight.RowCount)
	assert.True(t, report.PerProtocol[model.ProtocolREST].Success)
	assert.Equal(t, model.ReportSummary{TotalRequested: 2, Successful: 1, Failed: 1}, report.Summary)
}

func TestOrchestrator_RunFailureKeepsDisplayName(t *testing.T) {
	f := newFixture(t, model.ProtocolJDBC)
	f.stubs[model.ProtocolJDBC].RunErr = errors.New("rpc error: code = PermissionDenied desc = no access to space")
	o := f.orchestrator(t, OrchestratorConfig{})

	report, err := o.Execute(context.Background(), "SELECT * FROM secret", []string{"jdbc"})
	require.NoError(t, err)

	entry := report.PerProtocol[model.ProtocolJDBC]
	assert.Equal(t, model.KindInsufficientPermissions, entry.ErrorKind)
	assert.Equal(t, "Stub jdbc", entry.DisplayName)
}

func TestOrchestrator_ReusesConnectionsUntilClose(t *testing.T) {
	f := newFixture(t, model.ProtocolFlight)
	o := f.orchestrator(t, OrchestratorConfig{})
	stub := f.stubs[model.ProtocolFlight]

	for i := 0; i < 3; i++ {
		_, err := o.Execute(context.Background(), "SELECT 1", []string{"flight"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, stub.OpenCount())

	require.NoError(t, o.Close())
	require.NoError(t, o.Close())
	assert.Equal(t, 1, stub.Closes)
}

func TestOrchestrator_DropsConnectionAfterStaleFailure(t *testing.T) {
	f := newFixture(t, model.ProtocolREST)
	o := f.orchestrator(t, OrchestratorConfig{})
	stub := f.stubs[model.ProtocolREST]

	stub.RunErr = errors.New("rpc error: code = Unauthenticated desc = session expired")
	report, err := o.Execute(context.Background(), "SELECT 1", []string{"rest"})
	require.NoError(t, err)
	assert.Equal(t, model.KindInvalidToken, report.PerProtocol[model.ProtocolREST].ErrorKind)
	assert.Equal(t, 1, stub.Closes)

	stub.RunErr = nil
	report, err = o.Execute(context.Background(), "SELECT 1", []string{"rest"})
	require.NoError(t, err)
	assert.True(t, report.PerProtocol[model.ProtocolREST].Success)
	assert.Equal(t, 2, stub.OpenCount())
}

func TestOrchestrator_KeepsConnectionAfterQueryError(t *testing.T) {
	f := newFixture(t, model.ProtocolJDBC)
	o := f.orchestrator(t, OrchestratorConfig{})
	stub := f.stubs[model.ProtocolJDBC]

	stub.RunErr = errors.New("rpc error: code = PermissionDenied desc = no access to space")
	_, err := o.Execute(context.Background(), "SELECT * FROM secret", []string{"jdbc"})
	require.NoError(t, err)

	stub.RunErr = nil
	_, err = o.Execute(context.Background(), "SELECT 1", []string{"jdbc"})
	require.NoError(t, err)
	assert.Equal(t, 1, stub.OpenCount())
	assert.Zero(t, stub.Closes)
}

func TestOrchestrator_RecordsStats(t *testing.T) {
	f := newFixture(t, model.ProtocolREST)
	collector := NewMetricsCollector()
	o := f.orchestrator(t, OrchestratorConfig{}, WithStats(collector))

	_, err := o.Execute(context.Background(), "SELECT 1", []string{"rest"})
	require.NoError(t, err)

	snapshot := collector.Snapshot()
	require.Len(t, snapshot.Protocols, 1)
	assert.Equal(t, int64(1), snapshot.Protocols[0].SuccessfulQueries)
}

func TestOrchestrator_TestConnections(t *testing.T) {
	f := newFixture(t, model.ProtocolFlight, model.ProtocolODBC)
	f.stubs[model.ProtocolODBC].Unavailable = errors.New("no ODBC driver library found")
	o := f.orchestrator(t, OrchestratorConfig{})

	results, err := o.TestConnections(context.Background(), []string{"flight", "odbc"})
	require.NoError(t, err)

	flight := results[model.ProtocolFlight]
	assert.True(t, flight.Success)
	assert.Equal(t, "flight connection successful", flight.Message)
	assert.Equal(t, "Stub flight", flight.DriverName)
	require.NotNil(t, flight.TestResult)
	assert.Equal(t, []string{"test"}, flight.TestResult.Columns)
	assert.Contains(t, f.stubs[model.ProtocolFlight].LastQuery(), TestQuery)

	odbc := results[model.ProtocolODBC]
	assert.False(t, odbc.Success)
	assert.Equal(t, model.KindDriverNotFound, odbc.ErrorKind)

	_, err = o.TestConnections(context.Background(), nil)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeNoProtocols))
}

func TestOrchestrator_Projects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/projects", r.URL.Path)
		assert.Equal(t, "Bearer pat-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"id":"p1","name":"Sales"}]}`))
	}))
	defer server.Close()

	f := newFixture(t, model.ProtocolREST)
	o := f.orchestrator(t, OrchestratorConfig{
		Target:     model.NewDeploymentTarget(server.URL, ""),
		Credential: model.TokenCredential("pat-token"),
	})

	projects, err := o.Projects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "p1", projects[0].ID)
}

func TestOrchestrator_Drivers(t *testing.T) {
	f := newFixture(t, model.ProtocolFlight)
	o := f.orchestrator(t, OrchestratorConfig{})

	descriptors := o.Drivers()
	require.Len(t, descriptors, 4)
	assert.True(t, descriptors[0].Usable())
	assert.False(t, descriptors[1].Usable())
}
