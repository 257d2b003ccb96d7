package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/metrics"
	"dremio-gateway/internal/model"
	"dremio-gateway/internal/utils"
)

// DefaultAttemptTimeout bounds a single candidate attempt
const DefaultAttemptTimeout = 30 * time.Second

// EstablishmentFailure is returned when every candidate of a protocol failed.
type EstablishmentFailure struct {
	Protocol model.Protocol
	Records  []model.FailureRecord
	// Cause combines the raw errors of every attempt
	Cause error
}

// Error reports the last attempt's message
func (e *EstablishmentFailure) Error() string {
	if len(e.Records) == 0 {
		return fmt.Sprintf("no connection candidates for %s", e.Protocol)
	}
	return e.Records[len(e.Records)-1].RawMessage
}

func (e *EstablishmentFailure) Unwrap() error {
	return e.Cause
}

// Kind is the classified kind of the last attempt
func (e *EstablishmentFailure) Kind() model.ErrorKind {
	if len(e.Records) == 0 {
		return model.KindDriverNotFound
	}
	return e.Records[len(e.Records)-1].ClassifiedKind
}

// Suggestions returns the remediation hints of the last attempt
func (e *EstablishmentFailure) Suggestions() []string {
	if len(e.Records) == 0 {
		return utils.SuggestionsFor(model.KindDriverNotFound)
	}
	return e.Records[len(e.Records)-1].Suggestions
}

// ConnectionEstablisher tries candidates in order until one connects.
type ConnectionEstablisher struct {
	registry       *DriverRegistry
	classifier     *utils.ErrorClassifier
	attemptTimeout time.Duration
	logger         *zap.Logger
}

// NewConnectionEstablisher creates an establisher; a zero timeout means DefaultAttemptTimeout
func NewConnectionEstablisher(registry *DriverRegistry, classifier *utils.ErrorClassifier, attemptTimeout time.Duration, logger *zap.Logger) *ConnectionEstablisher {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	if classifier == nil {
		classifier = utils.NewErrorClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionEstablisher{
		registry:       registry,
		classifier:     classifier,
		attemptTimeout: attemptTimeout,
		logger:         logger,
	}
}

// Establish returns the first handle that opens. The failure records of
// earlier candidates are returned alongside a success as well.
func (ce *ConnectionEstablisher) Establish(ctx context.Context, protocol model.Protocol, candidates []model.ConnectionCandidate) (drivers.Handle, []model.FailureRecord, error) {
	descriptor, ok := ce.registry.Descriptor(protocol)
	if !ok || !descriptor.Usable() {
		return nil, nil, RefusalError(protocol, descriptor)
	}

	driver, err := ce.registry.GetDriver(protocol)
	if err != nil {
		return nil, nil, utils.NewKindError(model.KindDriverNotFound, err.Error(), err)
	}

	var (
		records []model.FailureRecord
		errs    error
	)
	for _, candidate := range candidates {
		handle, err := ce.attempt(ctx, driver, candidate)
		if err == nil {
			metrics.RecordConnectionAttempt(string(protocol), "success")
			ce.logger.Info("connection established",
				zap.String("protocol", string(protocol)),
				zap.Int("ordinal", candidate.Ordinal),
				zap.String("candidate", candidate.String()),
				zap.Int("failed_before", len(records)))
			return handle, records, nil
		}

		cls := ce.classifier.Classify(err)
		records = append(records, model.FailureRecord{
			CandidateOrdinal: candidate.Ordinal,
			RawMessage:       err.Error(),
			ClassifiedKind:   cls.Kind,
			Suggestions:      cls.Suggestions,
		})
		errs = multierr.Append(errs, fmt.Errorf("candidate %d: %w", candidate.Ordinal, err))

		metrics.RecordConnectionAttempt(string(protocol), "failure")
		metrics.RecordConnectionFailure(string(protocol), string(cls.Kind))
		ce.logger.Warn("connection candidate failed",
			zap.String("protocol", string(protocol)),
			zap.Int("ordinal", candidate.Ordinal),
			zap.String("candidate", candidate.String()),
			zap.String("kind", string(cls.Kind)),
			zap.Error(err))

		// overrides come from a single request and never disable the protocol
		if cls.Kind == model.KindUnrecoverableNegotiationFailure && candidate.Source != model.SourceOverride {
			if disableErr := ce.registry.Disable(protocol, err.Error()); disableErr != nil {
				ce.logger.Error("failed to persist protocol disable", zap.Error(disableErr))
			}
			return nil, records, utils.NewKindError(model.KindUnrecoverableNegotiationFailure,
				fmt.Sprintf("%s disabled after unrecoverable negotiation failure: %s", protocol, err.Error()), err)
		}

		if ctx.Err() != nil {
			break
		}
	}

	return nil, records, &EstablishmentFailure{Protocol: protocol, Records: records, Cause: errs}
}

func (ce *ConnectionEstablisher) attempt(ctx context.Context, driver drivers.Driver, candidate model.ConnectionCandidate) (drivers.Handle, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, ce.attemptTimeout)
	defer cancel()
	return driver.Open(attemptCtx, candidate)
}

// RefusalError explains why protocol cannot be used in taxonomy terms
func RefusalError(protocol model.Protocol, descriptor model.ProtocolDescriptor) *utils.AppError {
	reason := descriptor.DisabledReason
	if reason == "" {
		reason = "unknown protocol"
	}
	if reason == reasonDisabledByConfig {
		return utils.NewKindError(model.KindConfigurationError,
			fmt.Sprintf("%s is %s", protocol, reason), nil)
	}
	if descriptor.Available {
		return utils.NewKindError(model.KindUnrecoverableNegotiationFailure,
			fmt.Sprintf("%s is disabled: %s", protocol, reason), nil)
	}
	return utils.NewKindError(model.KindDriverNotFound,
		fmt.Sprintf("%s is unavailable: %s", protocol, reason), nil)
}
