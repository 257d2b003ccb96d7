package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/model"
)

// ErrCacheClosed is returned by GetOrCreate after Close
var ErrCacheClosed = errors.New("connection cache is closed")

// OpenFunc creates the live connection for a slot
type OpenFunc func(ctx context.Context) (drivers.Driver, drivers.Handle, error)

type cacheSlot struct {
	mu     sync.Mutex
	driver drivers.Driver
	handle drivers.Handle
}

// ActiveConnectionCache holds at most one live handle per protocol. Slots are
// created lazily and each slot is locked independently, so protocols never
// wait on one another.
type ActiveConnectionCache struct {
	mutex  sync.Mutex
	slots  map[model.Protocol]*cacheSlot
	closed bool
	logger *zap.Logger
}

// NewActiveConnectionCache creates an empty cache
func NewActiveConnectionCache(logger *zap.Logger) *ActiveConnectionCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActiveConnectionCache{
		slots:  make(map[model.Protocol]*cacheSlot),
		logger: logger,
	}
}

func (cc *ActiveConnectionCache) slot(protocol model.Protocol) (*cacheSlot, error) {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	if cc.closed {
		return nil, ErrCacheClosed
	}
	s, ok := cc.slots[protocol]
	if !ok {
		s = &cacheSlot{}
		cc.slots[protocol] = s
	}
	return s, nil
}

// GetOrCreate returns the cached handle for protocol, calling open when the
// slot is empty. Concurrent callers for one protocol share a single open.
func (cc *ActiveConnectionCache) GetOrCreate(ctx context.Context, protocol model.Protocol, open OpenFunc) (drivers.Driver, drivers.Handle, error) {
	s, err := cc.slot(protocol)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return s.driver, s.handle, nil
	}

	driver, handle, err := open(ctx)
	if err != nil {
		return nil, nil, err
	}
	if handle == nil {
		return nil, nil, fmt.Errorf("%s: open returned no handle", protocol)
	}

	cc.mutex.Lock()
	closed := cc.closed
	cc.mutex.Unlock()
	if closed {
		_ = driver.Close(handle)
		return nil, nil, ErrCacheClosed
	}

	s.driver, s.handle = driver, handle
	cc.logger.Debug("connection cached", zap.String("protocol", string(protocol)))
	return driver, handle, nil
}

// Has reports whether protocol has a live handle
func (cc *ActiveConnectionCache) Has(protocol model.Protocol) bool {
	cc.mutex.Lock()
	s, ok := cc.slots[protocol]
	cc.mutex.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// Reset closes and forgets the handle of protocol
func (cc *ActiveConnectionCache) Reset(protocol model.Protocol) error {
	cc.mutex.Lock()
	s, ok := cc.slots[protocol]
	cc.mutex.Unlock()
	if !ok {
		return nil
	}
	return s.release()
}

// Close releases every handle. Calling it again is a no-op.
func (cc *ActiveConnectionCache) Close() error {
	cc.mutex.Lock()
	if cc.closed {
		cc.mutex.Unlock()
		return nil
	}
	cc.closed = true
	slots := make(map[model.Protocol]*cacheSlot, len(cc.slots))
	for protocol, s := range cc.slots {
		slots[protocol] = s
	}
	cc.mutex.Unlock()

	var errs error
	for _, protocol := range model.AllProtocols() {
		s, ok := slots[protocol]
		if !ok {
			continue
		}
		if err := s.release(); err != nil {
			cc.logger.Warn("failed to close connection", zap.String("protocol", string(protocol)), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", protocol, err))
		}
	}
	return errs
}

func (s *cacheSlot) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil
	}
	err := s.driver.Close(s.handle)
	s.driver, s.handle = nil, nil
	return err
}
