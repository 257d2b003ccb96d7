package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/database/drivers/drivertest"
	"dremio-gateway/internal/model"
)

func opener(stub *drivertest.StubDriver, calls *int32) OpenFunc {
	return func(ctx context.Context) (drivers.Driver, drivers.Handle, error) {
		atomic.AddInt32(calls, 1)
		handle, err := stub.Open(ctx, model.ConnectionCandidate{Protocol: stub.Protocol(), Ordinal: 1})
		if err != nil {
			return nil, nil, err
		}
		return stub, handle, nil
	}
}

func TestActiveConnectionCache_ReusesHandle(t *testing.T) {
	cache := NewActiveConnectionCache(zaptest.NewLogger(t))
	stub := drivertest.New(model.ProtocolFlight, "Stub Flight")
	var calls int32

	_, first, err := cache.GetOrCreate(context.Background(), model.ProtocolFlight, opener(stub, &calls))
	require.NoError(t, err)
	_, second, err := cache.GetOrCreate(context.Background(), model.ProtocolFlight, opener(stub, &calls))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls)
	assert.True(t, cache.Has(model.ProtocolFlight))
	assert.False(t, cache.Has(model.ProtocolREST))
}

func TestActiveConnectionCache_ConcurrentCallersShareOneOpen(t *testing.T) {
	cache := NewActiveConnectionCache(zaptest.NewLogger(t))
	stub := drivertest.New(model.ProtocolREST, "Stub REST")
	var calls int32

	var wg sync.WaitGroup
	handles := make([]drivers.Handle, 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, handle, err := cache.GetOrCreate(context.Background(), model.ProtocolREST, opener(stub, &calls))
			assert.NoError(t, err)
			handles[i] = handle
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls)
	for _, handle := range handles {
		assert.Same(t, handles[0], handle)
	}
}

func TestActiveConnectionCache_FailuresAreNotCached(t *testing.T) {
	cache := NewActiveConnectionCache(zaptest.NewLogger(t))
	stub := drivertest.New(model.ProtocolODBC, "Stub ODBC")
	stub.OpenErrors[1] = errors.New("connection refused")
	var calls int32

	_, _, err := cache.GetOrCreate(context.Background(), model.ProtocolODBC, opener(stub, &calls))
	require.Error(t, err)
	assert.False(t, cache.Has(model.ProtocolODBC))

	delete(stub.OpenErrors, 1)
	_, handle, err := cache.GetOrCreate(context.Background(), model.ProtocolODBC, opener(stub, &calls))
	require.NoError(t, err)
	assert.NotNil(t, handle)
	assert.Equal(t, int32(2), calls)
}

func TestActiveConnectionCache_NilHandleIsAnError(t *testing.T) {
	cache := NewActiveConnectionCache(zaptest.NewLogger(t))
	stub := drivertest.New(model.ProtocolJDBC, "Stub JDBC")

	_, _, err := cache.GetOrCreate(context.Background(), model.ProtocolJDBC, func(context.Context) (drivers.Driver, drivers.Handle, error) {
		return stub, nil, nil
	})
	require.Error(t, err)
	assert.False(t, cache.Has(model.ProtocolJDBC))
}

func TestActiveConnectionCache_Reset(t *testing.T) {
	cache := NewActiveConnectionCache(zaptest.NewLogger(t))
	stub := drivertest.New(model.ProtocolFlight, "Stub Flight")
	var calls int32

	_, handle, err := cache.GetOrCreate(context.Background(), model.ProtocolFlight, opener(stub, &calls))
	require.NoError(t, err)

	require.NoError(t, cache.Reset(model.ProtocolFlight))
	assert.False(t, cache.Has(model.ProtocolFlight))
	assert.True(t, handle.(*drivertest.StubHandle).Closed())
	require.NoError(t, cache.Reset(model.ProtocolREST))

	_, _, err = cache.GetOrCreate(context.Background(), model.ProtocolFlight, opener(stub, &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)
}

func TestActiveConnectionCache_CloseReleasesEverything(t *testing.T) {
	cache := NewActiveConnectionCache(zaptest.NewLogger(t))
	flight := drivertest.New(model.ProtocolFlight, "Stub Flight")
	rest := drivertest.New(model.ProtocolREST, "Stub REST")
	rest.CloseErr = errors.New("session already gone")
	var calls int32

	_, _, err := cache.GetOrCreate(context.Background(), model.ProtocolFlight, opener(flight, &calls))
	require.NoError(t, err)
	_, _, err = cache.GetOrCreate(context.Background(), model.ProtocolREST, opener(rest, &calls))
	require.NoError(t, err)

	err = cache.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session already gone")
	assert.Equal(t, 1, flight.Closes)
	assert.Equal(t, 1, rest.Closes)

	assert.NoError(t, cache.Close())
	assert.Equal(t, 1, flight.Closes)

	_, _, err = cache.GetOrCreate(context.Background(), model.ProtocolFlight, opener(flight, &calls))
	assert.ErrorIs(t, err, ErrCacheClosed)
	assert.Equal(t, int32(2), calls)
}
