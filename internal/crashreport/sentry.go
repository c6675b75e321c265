// Package crashreport reports unrecoverable errors to an operator-configured
// crash aggregator before the process exits. The aggregator itself is an
// out-of-scope external collaborator; this package specifies and wires its
// contract.
package crashreport

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter captures fatal errors ahead of process exit.
type Reporter interface {
	CaptureFatal(err error, tags map[string]string)
	Flush(timeout time.Duration) bool
	Close()
}

// Noop discards every report; useful when no DSN is configured.
type Noop struct{}

// CaptureFatal implements Reporter.
func (Noop) CaptureFatal(error, map[string]string) {}

// Flush implements Reporter.
func (Noop) Flush(time.Duration) bool { return true }

// Close implements Reporter.
func (Noop) Close() {}

// Sentry reports fatal errors to a Sentry-compatible DSN.
type Sentry struct {
	hub *sentry.Hub
}

// NewSentry builds a Sentry-backed Reporter. dsn must be non-empty; callers
// should fall back to Noop when no DSN is configured.
func NewSentry(dsn string, environment string, tags map[string]string) (*Sentry, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, err
	}
	scope := sentry.NewScope()
	scope.SetLevel(sentry.LevelFatal)
	scope.SetTags(tags)
	return &Sentry{hub: sentry.NewHub(client, scope)}, nil
}

// CaptureFatal reports err to Sentry, attaching the given tags to a scope
// cloned from the reporter's base hub so concurrent callers don't race on
// shared scope state.
func (s *Sentry) CaptureFatal(err error, tags map[string]string) {
	hub := s.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}

// Flush blocks until every buffered event is delivered or timeout elapses,
// returning whether the flush completed in time.
func (s *Sentry) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}

// Close releases the underlying client's resources.
func (s *Sentry) Close() {
	if client := s.hub.Client(); client != nil {
		client.Close()
	}
}
