// Package retry implements the two backoff policies used by the loader:
// an unbounded, alerted policy for setup errors and a bounded policy for
// transient errors. Both use exponential backoff, delay_n = base * 2^n.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"streamloader/internal/alert"
	"streamloader/internal/health"
	"streamloader/internal/log"
)

// Engine runs fallible actions under a backoff policy, keeping a shared
// health.Cell up to date and forwarding setup-error alerts.
type Engine struct {
	health  *health.Cell
	alerter alert.Alerter
	logger  log.Modular
}

// New constructs a retry Engine.
func New(h *health.Cell, alerter alert.Alerter, logger log.Modular) *Engine {
	return &Engine{health: h, alerter: alerter, logger: logger}
}

func exponentialBackOff(base time.Duration, maxElapsed time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = time.Duration(math.MaxInt64)
	bo.MaxElapsedTime = maxElapsed
	return bo
}

// RunSetup retries action forever with exponential backoff until it
// succeeds or ctx is cancelled. On success the health cell is set Healthy
// and retries stop. On every failed attempt the health cell is set
// Unhealthy, an alert is emitted with a monotonically increasing attempt
// count, and the next attempt waits for the current backoff delay.
func (e *Engine) RunSetup(ctx context.Context, name string, base time.Duration, action func(ctx context.Context) error) error {
	bo := backoff.WithContext(exponentialBackOff(base, 0), ctx)
	attempt := 0
	notify := func(err error, _ time.Duration) {
		e.health.SetUnhealthy(err.Error())
		e.alerter.Alert(ctx, alert.Alert{
			Message:  fmt.Sprintf("setup error in %s (attempt %d): %v", name, attempt, err),
			Severity: alert.SeverityError,
		})
		attempt++
	}
	err := backoff.RetryNotify(func() error {
		err := action(ctx)
		if err == nil {
			e.health.SetHealthy()
		}
		return err
	}, bo, notify)
	if err != nil {
		// Only reachable if ctx was cancelled, since the backoff never
		// gives up on its own (MaxElapsedTime == 0).
		return err
	}
	return nil
}

// RunTransient retries action up to maxAttempts times with exponential
// backoff. On exhaustion the last error is returned; setup semantics
// (alerting, unbounded retry) do not apply here.
func (e *Engine) RunTransient(ctx context.Context, name string, base time.Duration, maxAttempts int, action func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		return errors.New("retry: maxAttempts must be >= 1")
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(exponentialBackOff(base, 0), uint64(maxAttempts-1)), ctx)
	var lastErr error
	err := backoff.Retry(func() error {
		err := action(ctx)
		lastErr = err
		if err == nil {
			e.health.SetHealthy()
			return nil
		}
		e.health.SetUnhealthy(err.Error())
		return err
	}, bo)
	if err != nil {
		if lastErr != nil {
			return fmt.Errorf("transient retry of %s exhausted after %d attempts: %w", name, maxAttempts, lastErr)
		}
		return err
	}
	return nil
}
