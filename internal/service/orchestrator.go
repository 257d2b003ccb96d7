package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dremio-gateway/internal/database"
	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/database/drivers/rest"
	"dremio-gateway/internal/metrics"
	"dremio-gateway/internal/model"
	"dremio-gateway/internal/utils"
)

// TestQuery is the statement used by TestConnections
const TestQuery = "SELECT 1 as test"

// OrchestratorConfig is the immutable per-client configuration
type OrchestratorConfig struct {
	Target     model.DeploymentTarget
	Credential model.Credential
	Overrides  map[model.Protocol]model.ConnectionOverrides
	Parallel   bool
	// HTTPClient is used for project listing; nil means a default client
	HTTPClient *http.Client
}

// Orchestrator runs one statement over several protocols and reports each
// outcome. It owns its connection cache; Close releases every handle.
type Orchestrator struct {
	registry    *database.DriverRegistry
	resolver    *database.ConnectionConfigResolver
	establisher *database.ConnectionEstablisher
	cache       *database.ActiveConnectionCache
	executor    *QueryExecutor
	classifier  *utils.ErrorClassifier
	stats       *MetricsCollector
	config      OrchestratorConfig
	logger      *zap.Logger

	negotiatorOnce sync.Once
	negotiator     *rest.AuthNegotiator
	closeOnce      sync.Once
	closeErr       error
}

// OrchestratorOption customizes an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithStats folds every report entry into collector
func WithStats(collector *MetricsCollector) OrchestratorOption {
	return func(o *Orchestrator) {
		o.stats = collector
	}
}

// NewOrchestrator creates an orchestrator with an empty connection cache
func NewOrchestrator(
	registry *database.DriverRegistry,
	resolver *database.ConnectionConfigResolver,
	establisher *database.ConnectionEstablisher,
	config OrchestratorConfig,
	logger *zap.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		registry:    registry,
		resolver:    resolver,
		establisher: establisher,
		cache:       database.NewActiveConnectionCache(logger),
		executor:    NewQueryExecutor(logger),
		classifier:  utils.NewErrorClassifier(),
		config:      config,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs sql on every requested protocol. Per-protocol failures are
// report entries; an error is returned only when nothing can run at all.
func (o *Orchestrator) Execute(ctx context.Context, sql string, protocols []string) (*model.MultiProtocolReport, error) {
	if len(protocols) == 0 {
		return nil, utils.NewErrorBuilder(utils.ErrCodeNoProtocols).
			WithMessage("no protocols requested").
			Build()
	}

	report := &model.MultiProtocolReport{
		PerProtocol: make(map[model.Protocol]*model.ProtocolReport, len(protocols)),
		ExecutedAt:  time.Now(),
	}

	var runnable []model.Protocol
	for _, name := range protocols {
		protocol, entry := o.admit(name)
		if _, seen := report.PerProtocol[protocol]; seen {
			continue
		}
		if entry != nil {
			report.PerProtocol[protocol] = entry
			continue
		}
		runnable = append(runnable, protocol)
		report.PerProtocol[protocol] = nil
	}

	if len(runnable) == 0 {
		return nil, utils.NewErrorBuilder(utils.ErrCodeNoProtocols).
			WithMessage("none of the requested protocols is available and enabled").
			WithDetails(describeRefusals(report, protocols)).
			Build()
	}

	entries := make([]*model.ProtocolReport, len(runnable))
	if o.config.Parallel {
		var g errgroup.Group
		for i, protocol := range runnable {
			i, protocol := i, protocol
			g.Go(func() error {
				entries[i] = o.runProtocol(ctx, protocol, sql)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, protocol := range runnable {
			entries[i] = o.runProtocol(ctx, protocol, sql)
		}
	}

	for i, protocol := range runnable {
		report.PerProtocol[protocol] = entries[i]
		o.stats.RecordReport(protocol, entries[i])
	}
	report.Summary = summarize(report.PerProtocol)

	o.logger.Info("multi-protocol query finished",
		zap.Int("requested", report.Summary.TotalRequested),
		zap.Int("successful", report.Summary.Successful),
		zap.Int("failed", report.Summary.Failed))

	return report, nil
}

// admit returns a failed entry for unknown or unusable protocols, nil otherwise
func (o *Orchestrator) admit(name string) (model.Protocol, *model.ProtocolReport) {
	parsed, _ := model.ParseProtocols([]string{name})
	if len(parsed) == 0 {
		return model.Protocol(name), &model.ProtocolReport{
			ErrorKind:    model.KindConfigurationError,
			ErrorMessage: fmt.Sprintf("unknown protocol: %s", name),
			Suggestions:  utils.SuggestionsFor(model.KindConfigurationError),
		}
	}

	protocol := parsed[0]
	descriptor, ok := o.registry.Descriptor(protocol)
	if ok && descriptor.Usable() {
		return protocol, nil
	}

	refusal := database.RefusalError(protocol, descriptor)
	return protocol, &model.ProtocolReport{
		DisplayName:  descriptor.DisplayName,
		ErrorKind:    refusal.Kind(),
		ErrorMessage: refusal.Message,
		Suggestions:  utils.SuggestionsFor(refusal.Kind()),
	}
}

func (o *Orchestrator) runProtocol(ctx context.Context, protocol model.Protocol, sql string) *model.ProtocolReport {
	start := time.Now()

	driver, handle, err := o.connect(ctx, protocol)
	if err != nil {
		metrics.RecordQueryMetrics(string(protocol), "error", time.Since(start), 0)
		return o.failure(protocol, err)
	}

	result, err := o.executor.Execute(ctx, driver, handle, sql)
	if err != nil {
		metrics.RecordQueryMetrics(string(protocol), "error", time.Since(start), 0)
		entry := o.failure(protocol, err)
		entry.DisplayName = driver.DisplayName()
		o.dropStaleConnection(protocol, entry.ErrorKind)
		return entry
	}
	metrics.RecordQueryMetrics(string(protocol), "success",
		time.Duration(result.ExecutionTimeMs)*time.Millisecond, int64(result.RowCount))

	rowCount := result.RowCount
	elapsed := result.ExecutionTimeMs
	return &model.ProtocolReport{
		Success:         true,
		DisplayName:     driver.DisplayName(),
		RowCount:        &rowCount,
		Columns:         result.Columns,
		ExecutionTimeMs: &elapsed,
		SchemaSource:    string(result.SchemaSource),
		Result:          result,
	}
}

// connect returns the cached handle or establishes a new one
func (o *Orchestrator) connect(ctx context.Context, protocol model.Protocol) (drivers.Driver, drivers.Handle, error) {
	return o.cache.GetOrCreate(ctx, protocol, func(ctx context.Context) (drivers.Driver, drivers.Handle, error) {
		candidates, err := o.resolver.Resolve(protocol, o.config.Target, o.config.Credential, o.config.Overrides[protocol])
		if err != nil {
			return nil, nil, err
		}

		handle, records, err := o.establisher.Establish(ctx, protocol, candidates)
		if err != nil {
			return nil, nil, err
		}
		if len(records) > 0 {
			o.logger.Info("connected after failed candidates",
				zap.String("protocol", string(protocol)),
				zap.Int("failed_candidates", len(records)))
		}

		driver, err := o.registry.GetDriver(protocol)
		if err != nil {
			return nil, nil, err
		}
		return driver, handle, nil
	})
}

func (o *Orchestrator) failure(protocol model.Protocol, err error) *model.ProtocolReport {
	kind, suggestions := o.classify(err)
	o.logger.Warn("protocol failed",
		zap.String("protocol", string(protocol)),
		zap.String("kind", string(kind)),
		zap.Error(err))

	return &model.ProtocolReport{
		ErrorKind:    kind,
		ErrorMessage: err.Error(),
		Suggestions:  suggestions,
	}
}

func (o *Orchestrator) classify(err error) (model.ErrorKind, []string) {
	var failure *database.EstablishmentFailure
	if errors.As(err, &failure) {
		return failure.Kind(), failure.Suggestions()
	}
	cls := o.classifier.Classify(err)
	return cls.Kind, cls.Suggestions
}

// staleConnectionKinds are execution failures after which the cached handle
// is discarded; the next request establishes a fresh connection.
var staleConnectionKinds = map[model.ErrorKind]bool{
	model.KindInvalidToken:      true,
	model.KindConnectionRefused: true,
	model.KindTimeout:           true,
}

func (o *Orchestrator) dropStaleConnection(protocol model.Protocol, kind model.ErrorKind) {
	if !staleConnectionKinds[kind] {
		return
	}
	if err := o.cache.Reset(protocol); err != nil {
		o.logger.Warn("failed to close stale connection",
			zap.String("protocol", string(protocol)),
			zap.Error(err))
		return
	}
	o.logger.Info("discarded cached connection",
		zap.String("protocol", string(protocol)),
		zap.String("kind", string(kind)))
}

// TestConnections runs TestQuery on each protocol and reports the outcome
func (o *Orchestrator) TestConnections(ctx context.Context, protocols []string) (map[model.Protocol]*model.ConnectionTestResult, error) {
	if len(protocols) == 0 {
		return nil, utils.NewErrorBuilder(utils.ErrCodeNoProtocols).
			WithMessage("no protocols requested").
			Build()
	}

	results := make(map[model.Protocol]*model.ConnectionTestResult, len(protocols))
	for _, name := range protocols {
		protocol, refused := o.admit(name)
		if _, seen := results[protocol]; seen {
			continue
		}
		if refused != nil {
			results[protocol] = &model.ConnectionTestResult{
				DriverName:  refused.DisplayName,
				Error:       refused.ErrorMessage,
				ErrorKind:   refused.ErrorKind,
				Suggestions: refused.Suggestions,
				CheckedAt:   time.Now(),
			}
			continue
		}
		results[protocol] = o.testProtocol(ctx, protocol)
	}
	return results, nil
}

func (o *Orchestrator) testProtocol(ctx context.Context, protocol model.Protocol) *model.ConnectionTestResult {
	start := time.Now()
	result := &model.ConnectionTestResult{CheckedAt: start}

	driver, handle, err := o.connect(ctx, protocol)
	if err == nil {
		result.DriverName = driver.DisplayName()
		result.TestResult, err = o.executor.Execute(ctx, driver, handle, TestQuery)
	}
	result.Latency = time.Since(start).Milliseconds()

	if err != nil {
		result.Error = err.Error()
		result.ErrorKind, result.Suggestions = o.classify(err)
		if result.DriverName != "" {
			o.dropStaleConnection(protocol, result.ErrorKind)
		}
		return result
	}
	result.Success = true
	result.Message = fmt.Sprintf("%s connection successful", protocol)
	return result
}

// Projects lists the projects visible to the configured credential
func (o *Orchestrator) Projects(ctx context.Context) ([]model.Project, error) {
	o.negotiatorOnce.Do(func() {
		o.negotiator = rest.NewAuthNegotiator(rest.NegotiatorConfig{
			ServerURL:  rest.ServerRoot(o.config.Target),
			Cloud:      o.config.Target.IsCloud(),
			Credential: o.config.Credential,
			HTTPClient: o.config.HTTPClient,
			Logger:     o.logger,
		})
	})
	return o.negotiator.Projects(ctx)
}

// Drivers returns the registry's descriptors
func (o *Orchestrator) Drivers() []model.ProtocolDescriptor {
	return o.registry.Probe()
}

// Close releases every cached connection. Later calls return the first result.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.closeErr = o.cache.Close()
		if o.closeErr != nil {
			o.logger.Warn("errors while closing connections", zap.Error(o.closeErr))
		}
	})
	return o.closeErr
}

func summarize(entries map[model.Protocol]*model.ProtocolReport) model.ReportSummary {
	summary := model.ReportSummary{TotalRequested: len(entries)}
	for _, entry := range entries {
		if entry != nil && entry.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}
	return summary
}

func describeRefusals(report *model.MultiProtocolReport, order []string) string {
	messages := make([]string, 0, len(order))
	seen := make(map[model.Protocol]bool, len(order))
	for _, name := range order {
		protocol := model.Protocol(strings.ToLower(strings.TrimSpace(name)))
		entry, ok := report.PerProtocol[protocol]
		if !ok {
			entry = report.PerProtocol[model.Protocol(name)]
		}
		if entry == nil || seen[protocol] {
			continue
		}
		seen[protocol] = true
		messages = append(messages, entry.ErrorMessage)
	}
	return strings.Join(messages, "; ")
}
