package warehouse

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamloader/internal/alert"
	"streamloader/internal/health"
	"streamloader/internal/log"
	"streamloader/internal/retry"
)

// flakyOpener fails the first N-1 opens, succeeding on the Nth. Concurrent
// Opened() callers arriving while the channel is closed should observe a
// single shared retry schedule rather than each retrying independently.
type flakyOpener struct {
	failuresRemaining int32
	attempts          atomic.Int32
}

func (o *flakyOpener) Open(context.Context) (Channel, error) {
	o.attempts.Add(1)
	if atomic.AddInt32(&o.failuresRemaining, -1) >= 0 {
		return nil, errors.New("setup: still warming up")
	}
	return &fakeChannel{}, nil
}

func TestProviderSharesRetrySchedule(t *testing.T) {
	opener := &flakyOpener{failuresRemaining: 2}
	h := health.NewCell("test")
	engine := retry.New(h, alert.Noop{}, log.New("error"))
	provider := NewProvider(opener, engine, time.Millisecond, log.New("error"))

	const callers = 5
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			err := provider.Opened(context.Background(), func(context.Context, Channel) error { return nil })
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Exactly 3 real Open calls total (2 failures + 1 success) prove every
	// concurrent caller waited on the same transition instead of retrying on
	// its own.
	assert.EqualValues(t, 3, opener.attempts.Load())
	assert.True(t, h.Snapshot().Healthy)
	require.NoError(t, provider.Finalize())
}
