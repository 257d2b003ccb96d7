// Package drivertest provides a scriptable driver for tests.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/model"
)

// StubHandle is the handle returned by StubDriver
type StubHandle struct {
	protocol  model.Protocol
	Candidate model.ConnectionCandidate
	closed    bool
}

func (h *StubHandle) Protocol() model.Protocol { return h.protocol }

// Closed reports whether the handle was closed
func (h *StubHandle) Closed() bool { return h.closed }

// StubDriver is a Driver whose behaviour is set per test.
type StubDriver struct {
	*drivers.DriverBase

	mu sync.Mutex
	// Unavailable makes CheckAvailability fail with this error
	Unavailable error
	// OpenErrors maps a candidate ordinal to the error Open returns for it
	OpenErrors map[int]error
	// Result is returned by Run unless RunErr is set
	Result *drivers.NativeResult
	RunErr error
	// CloseErr is returned by Close
	CloseErr error

	Opened  []model.ConnectionCandidate
	Queries []string
	Closes  int
}

// New creates a stub serving protocol
func New(protocol model.Protocol, displayName string) *StubDriver {
	return &StubDriver{
		DriverBase: drivers.NewDriverBase(protocol, displayName, ""),
		OpenErrors: make(map[int]error),
	}
}

func (s *StubDriver) CheckAvailability() error {
	return s.Unavailable
}

func (s *StubDriver) GetCapabilities() model.ProtocolCapabilities {
	return model.ProtocolCapabilities{ReportsSchema: true}
}

func (s *StubDriver) Open(ctx context.Context, candidate model.ConnectionCandidate) (drivers.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Opened = append(s.Opened, candidate)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.OpenErrors[candidate.Ordinal]; ok {
		return nil, err
	}
	return &StubHandle{protocol: s.Protocol(), Candidate: candidate}, nil
}

func (s *StubDriver) Run(ctx context.Context, handle drivers.Handle, sql string) (*drivers.NativeResult, error) {
	if err := s.CheckHandle(handle); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := handle.(*StubHandle); ok && h.closed {
		return nil, errors.New("handle is closed")
	}
	s.Queries = append(s.Queries, sql)
	if s.RunErr != nil {
		return nil, s.RunErr
	}
	if s.Result == nil {
		return &drivers.NativeResult{Columns: []string{"test"}, Rows: [][]interface{}{{int64(1)}}}, nil
	}
	return s.Result, nil
}

func (s *StubDriver) Close(handle drivers.Handle) error {
	h, ok := handle.(*StubHandle)
	if !ok {
		return fmt.Errorf("unexpected handle %T", handle)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h.closed = true
	s.Closes++
	return s.CloseErr
}

// OpenCount returns how many times Open was called
func (s *StubDriver) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Opened)
}

// LastQuery returns the most recent statement passed to Run
func (s *StubDriver) LastQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Queries) == 0 {
		return ""
	}
	return s.Queries[len(s.Queries)-1]
}
