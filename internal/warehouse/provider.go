package warehouse

import (
	"context"
	"time"

	"streamloader/internal/log"
	"streamloader/internal/retry"
)

// retryingOpener wraps a raw Opener with the unbounded setup-retry policy,
// alerting and health-tracking. Because the cold-swap holder only ever lets
// one goroutine perform a transition at a time, wrapping the retry loop
// here — rather than around each caller — gives every concurrent Opened()
// caller a single shared backoff schedule instead of one each.
type retryingOpener struct {
	inner      Opener
	retry      *retry.Engine
	setupDelay time.Duration
}

func (o *retryingOpener) Open(ctx context.Context) (Channel, error) {
	var ch Channel
	err := o.retry.RunSetup(ctx, "channel-open", o.setupDelay, func(ctx context.Context) error {
		opened, err := o.inner.Open(ctx)
		if err != nil {
			return err
		}
		ch = opened
		return nil
	})
	return ch, err
}

// Provider is the channel provider (component G): a ColdSwapHolder whose
// opener retries forever with alerting on failure.
type Provider struct {
	holder *ColdSwapHolder
	logger log.Modular
}

// NewProvider constructs a Provider. opener is the raw, unretried allocator
// (component E); retryEngine, with its own alerter and health cell, backs
// its setup-retry behaviour.
func NewProvider(opener Opener, retryEngine *retry.Engine, setupDelay time.Duration, logger log.Modular) *Provider {
	wrapped := &retryingOpener{inner: opener, retry: retryEngine, setupDelay: setupDelay}
	return &Provider{holder: NewColdSwapHolder(wrapped), logger: logger}
}

// Opened runs fn with a guaranteed-open channel, retrying the open under
// the hood if necessary.
func (p *Provider) Opened(ctx context.Context, fn func(ctx context.Context, ch Channel) error) error {
	return p.holder.Opened(ctx, fn)
}

// Reset closes the current channel (if any) so the next Opened call
// re-opens it, picking up schema changes made since it was last opened.
func (p *Provider) Reset(ctx context.Context) error {
	return p.holder.Reset(ctx)
}

// Finalize closes any live channel; call during shutdown.
func (p *Provider) Finalize() error {
	return p.holder.Finalize()
}
