package service

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"dremio-gateway/internal/config"
	"dremio-gateway/internal/database"
	"dremio-gateway/internal/model"
	"dremio-gateway/internal/security"
	"dremio-gateway/internal/utils"
)

// DremioService is the API-facing entry point for multi-protocol access
type DremioService interface {
	ExecuteQuery(ctx context.Context, req *model.QueryRequest) (*model.MultiProtocolReport, error)
	TestConnections(ctx context.Context, req *model.TestConnectionRequest) (map[model.Protocol]*model.ConnectionTestResult, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
	ListDrivers() []model.ProtocolDescriptor
	Stats() StatsSnapshot
	Close() error
}

// ServiceDeps are the shared components every orchestrator is built from
type ServiceDeps struct {
	Registry    *database.DriverRegistry
	Resolver    *database.ConnectionConfigResolver
	Establisher *database.ConnectionEstablisher
	// Validator enables the read-only guard when set
	Validator  *security.SQLValidator
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type dremioService struct {
	dremio           config.DremioConfig
	parallel         bool
	defaultProtocols []string
	deps             ServiceDeps
	stats            *MetricsCollector
	shared           *Orchestrator
	logger           *zap.Logger
}

// NewDremioService creates the service. Requests without a project or
// overrides share one orchestrator and its cached connections; the others
// get a short-lived orchestrator built from a modified copy of dremio.
func NewDremioService(dremio config.DremioConfig, drivers config.DriversConfig, deps ServiceDeps) DremioService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := drivers.Enabled
	if len(defaults) == 0 {
		for _, p := range model.AllProtocols() {
			defaults = append(defaults, string(p))
		}
	}

	s := &dremioService{
		dremio:           dremio,
		parallel:         drivers.Parallel,
		defaultProtocols: defaults,
		deps:             deps,
		stats:            NewMetricsCollector(),
		logger:           logger,
	}
	s.shared = s.newOrchestrator(dremio, nil)
	return s
}

func (s *dremioService) newOrchestrator(dremio config.DremioConfig, overrides map[model.Protocol]model.ConnectionOverrides) *Orchestrator {
	return NewOrchestrator(
		s.deps.Registry,
		s.deps.Resolver,
		s.deps.Establisher,
		OrchestratorConfig{
			Target:     dremio.Target(),
			Credential: dremio.Credential(),
			Overrides:  overrides,
			Parallel:   s.parallel,
			HTTPClient: s.deps.HTTPClient,
		},
		s.logger,
		WithStats(s.stats),
	)
}

// orchestratorFor returns the orchestrator serving a request and its release func
func (s *dremioService) orchestratorFor(projectID string, overrides map[string]model.ConnectionOverrides) (*Orchestrator, func()) {
	if projectID == "" && len(overrides) == 0 {
		return s.shared, func() {}
	}

	converted := make(map[model.Protocol]model.ConnectionOverrides, len(overrides))
	for name, override := range overrides {
		protocols, _ := model.ParseProtocols([]string{name})
		if len(protocols) == 1 && !override.IsZero() {
			converted[protocols[0]] = override
		}
	}

	orchestrator := s.newOrchestrator(s.dremio.WithProjectID(projectID), converted)
	return orchestrator, func() {
		if err := orchestrator.Close(); err != nil {
			s.logger.Warn("failed to close request connections", zap.Error(err))
		}
	}
}

func (s *dremioService) ExecuteQuery(ctx context.Context, req *model.QueryRequest) (*model.MultiProtocolReport, error) {
	req.ApplyDefaults(s.defaultProtocols)

	if err := s.dremio.WithProjectID(req.ProjectID).Validate(); err != nil {
		return nil, err
	}

	if s.deps.Validator != nil {
		if err := s.deps.Validator.ValidateStatement(req.SQL); err != nil {
			return nil, utils.NewErrorBuilder(utils.ErrCodeReadOnlyViolated).
				WithDetails(err.Error()).
				WithCause(err).
				Build()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(req.Timeout)*time.Second)
	defer cancel()

	orchestrator, release := s.orchestratorFor(req.ProjectID, req.Overrides)
	defer release()

	return orchestrator.Execute(ctx, req.SQL, req.Protocols)
}

func (s *dremioService) TestConnections(ctx context.Context, req *model.TestConnectionRequest) (map[model.Protocol]*model.ConnectionTestResult, error) {
	protocols := req.Protocols
	if len(protocols) == 0 {
		protocols = s.defaultProtocols
	}

	if err := s.dremio.WithProjectID(req.ProjectID).Validate(); err != nil {
		return nil, err
	}

	orchestrator, release := s.orchestratorFor(req.ProjectID, nil)
	defer release()

	return orchestrator.TestConnections(ctx, protocols)
}

func (s *dremioService) ListProjects(ctx context.Context) ([]model.Project, error) {
	if err := s.dremio.Validate(); err != nil {
		return nil, err
	}
	return s.shared.Projects(ctx)
}

func (s *dremioService) ListDrivers() []model.ProtocolDescriptor {
	return s.shared.Drivers()
}

func (s *dremioService) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}

func (s *dremioService) Close() error {
	return s.shared.Close()
}
