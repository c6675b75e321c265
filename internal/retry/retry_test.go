package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamloader/internal/alert"
	"streamloader/internal/health"
	"streamloader/internal/log"
)

func newEngine() (*Engine, *health.Cell) {
	h := health.NewCell("test")
	return New(h, alert.Noop{}, log.New("error")), h
}

func TestRunSetupRetriesUntilSuccessAndRecoversHealth(t *testing.T) {
	engine, h := newEngine()

	attempts := 0
	err := engine.RunSetup(context.Background(), "warehouse-connect", time.Millisecond, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, h.Snapshot().Healthy)
}

func TestRunSetupStopsOnContextCancel(t *testing.T) {
	engine, h := newEngine()
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := engine.RunSetup(ctx, "warehouse-connect", time.Millisecond, func(context.Context) error {
		attempts++
		return errors.New("still failing")
	})

	assert.Error(t, err)
	assert.False(t, h.Snapshot().Healthy)
}

func TestRunTransientReturnsNilOnEventualSuccess(t *testing.T) {
	engine, h := newEngine()

	attempts := 0
	err := engine.RunTransient(context.Background(), "insert", time.Millisecond, 5, func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("throttled")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.True(t, h.Snapshot().Healthy)
}

func TestRunTransientExhaustsAttemptsAndSurfacesLastError(t *testing.T) {
	engine, h := newEngine()

	attempts := 0
	err := engine.RunTransient(context.Background(), "insert", time.Millisecond, 3, func(context.Context) error {
		attempts++
		return errors.New("still throttled")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "still throttled")
	assert.False(t, h.Snapshot().Healthy)
}

func TestRunTransientRejectsNonPositiveMaxAttempts(t *testing.T) {
	engine, _ := newEngine()
	err := engine.RunTransient(context.Background(), "insert", time.Millisecond, 0, func(context.Context) error {
		t.Fatal("action should never run")
		return nil
	})
	assert.Error(t, err)
}
