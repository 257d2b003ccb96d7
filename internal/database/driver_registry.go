package database

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/metrics"
	"dremio-gateway/internal/model"
)

const reasonDisabledByConfig = "disabled by configuration"

// DriverRegistry tracks the driver serving each protocol and whether it can
// be used. Descriptors are computed on the first Probe and cached.
type DriverRegistry struct {
	drivers     map[model.Protocol]drivers.Driver
	descriptors map[model.Protocol]*model.ProtocolDescriptor
	allowed     map[model.Protocol]bool
	sentinels   *SentinelStore
	logger      *zap.Logger
	mutex       sync.RWMutex
}

// RegistryOption customizes a DriverRegistry
type RegistryOption func(*DriverRegistry)

// WithAllowedProtocols limits which registered protocols may be enabled.
// Protocols left out are reported available but disabled by configuration.
func WithAllowedProtocols(protocols []model.Protocol) RegistryOption {
	return func(dr *DriverRegistry) {
		if len(protocols) == 0 {
			return
		}
		dr.allowed = make(map[model.Protocol]bool, len(protocols))
		for _, p := range protocols {
			dr.allowed[p] = true
		}
	}
}

// NewDriverRegistry creates a registry serving the given drivers
func NewDriverRegistry(sentinels *SentinelStore, logger *zap.Logger, driverList []drivers.Driver, opts ...RegistryOption) *DriverRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := &DriverRegistry{
		drivers:   make(map[model.Protocol]drivers.Driver),
		sentinels: sentinels,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(registry)
	}

	for _, driver := range driverList {
		registry.register(driver)
	}

	return registry
}

// register adds a driver; a later driver for the same protocol replaces the earlier one
func (dr *DriverRegistry) register(driver drivers.Driver) {
	dr.mutex.Lock()
	defer dr.mutex.Unlock()
	dr.drivers[driver.Protocol()] = driver
	dr.descriptors = nil
}

// Probe reports every known protocol. Reading sentinels is its only side effect.
func (dr *DriverRegistry) Probe() []model.ProtocolDescriptor {
	dr.mutex.Lock()
	defer dr.mutex.Unlock()

	if dr.descriptors == nil {
		dr.descriptors = make(map[model.Protocol]*model.ProtocolDescriptor, len(model.AllProtocols()))
		for _, protocol := range model.AllProtocols() {
			descriptor := dr.probe(protocol)
			dr.descriptors[protocol] = &descriptor
			metrics.UpdateProtocolEnabled(string(protocol), descriptor.Usable())
		}
	}

	result := make([]model.ProtocolDescriptor, 0, len(dr.descriptors))
	for _, protocol := range model.AllProtocols() {
		result = append(result, *dr.descriptors[protocol])
	}
	return result
}

func (dr *DriverRegistry) probe(protocol model.Protocol) model.ProtocolDescriptor {
	descriptor := model.ProtocolDescriptor{Name: protocol, DisplayName: string(protocol)}

	driver, ok := dr.drivers[protocol]
	if !ok {
		descriptor.DisabledReason = "no driver registered"
		return descriptor
	}
	descriptor.DisplayName = driver.DisplayName()
	descriptor.Capabilities = driver.GetCapabilities()

	if err := driver.CheckAvailability(); err != nil {
		descriptor.DisabledReason = err.Error()
		dr.logger.Info("protocol unavailable", zap.String("protocol", string(protocol)), zap.Error(err))
		return descriptor
	}
	descriptor.Available = true

	if dr.allowed != nil && !dr.allowed[protocol] {
		descriptor.DisabledReason = reasonDisabledByConfig
		return descriptor
	}

	if dr.sentinels != nil {
		record, err := dr.sentinels.Read(protocol)
		if err != nil {
			dr.logger.Warn("failed to read sentinel", zap.String("protocol", string(protocol)), zap.Error(err))
		}
		if record != nil && record.Disabled {
			descriptor.DisabledReason = record.LastError
			if descriptor.DisabledReason == "" {
				descriptor.DisabledReason = "disabled after an unrecoverable negotiation failure"
			}
			return descriptor
		}
	}

	descriptor.Enabled = true
	return descriptor
}

// Descriptor returns the cached descriptor for protocol
func (dr *DriverRegistry) Descriptor(protocol model.Protocol) (model.ProtocolDescriptor, bool) {
	dr.Probe()

	dr.mutex.RLock()
	defer dr.mutex.RUnlock()
	descriptor, ok := dr.descriptors[protocol]
	if !ok {
		return model.ProtocolDescriptor{}, false
	}
	return *descriptor, true
}

// IsUsable reports whether protocol is available and enabled
func (dr *DriverRegistry) IsUsable(protocol model.Protocol) bool {
	descriptor, ok := dr.Descriptor(protocol)
	return ok && descriptor.Usable()
}

// GetDriver returns the driver serving protocol
func (dr *DriverRegistry) GetDriver(protocol model.Protocol) (drivers.Driver, error) {
	dr.mutex.RLock()
	driver, exists := dr.drivers[protocol]
	dr.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported protocol: %s", protocol)
	}
	return driver, nil
}

// Disable turns protocol off for the rest of the process and persists the
// sentinel so later processes start with it disabled.
func (dr *DriverRegistry) Disable(protocol model.Protocol, reason string) error {
	dr.Probe()

	dr.mutex.Lock()
	descriptor, ok := dr.descriptors[protocol]
	if ok {
		descriptor.Enabled = false
		descriptor.DisabledReason = reason
	}
	dr.mutex.Unlock()

	metrics.UpdateProtocolEnabled(string(protocol), false)
	dr.logger.Warn("protocol disabled",
		zap.String("protocol", string(protocol)),
		zap.String("reason", reason))

	if dr.sentinels == nil {
		return nil
	}
	if err := dr.sentinels.Write(protocol, reason, timeNow()); err != nil {
		return fmt.Errorf("failed to persist disable for %s: %w", protocol, err)
	}
	return nil
}

// Drivers returns the registered drivers in protocol order
func (dr *DriverRegistry) Drivers() []drivers.Driver {
	dr.mutex.RLock()
	defer dr.mutex.RUnlock()

	list := make([]drivers.Driver, 0, len(dr.drivers))
	for _, protocol := range model.AllProtocols() {
		if driver, ok := dr.drivers[protocol]; ok {
			list = append(list, driver)
		}
	}
	return list
}
