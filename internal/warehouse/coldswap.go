package warehouse

import (
	"context"
	"sync"
)

// exclusivePermits bounds the number of concurrent shared holders of the
// channel holder. It only needs to be large enough that shared access is
// never artificially serialised; the value itself has no other meaning.
const exclusivePermits = 1 << 16

// ColdSwapHolder is a single-slot resource manager mediating exclusive
// access to at most one live Channel. It exposes two scoped access modes:
// Opened, which guarantees an open channel for the duration of the
// callback, and Closed, which guarantees the channel is closed for the
// duration of the callback. Both are implemented over a single permit-based
// semaphore: holding one permit is "shared" mode, holding every permit is
// "exclusive" mode used only during a state transition.
//
// A caller already holding the channel Opened must not call Closed (or vice
// versa) from the same execution context — doing so deadlocks, since the
// permit discipline gives no reentrancy. This is a documented contract, not
// enforced by the type.
type ColdSwapHolder struct {
	opener  Opener
	permits chan struct{}

	// transitionMu serialises entry into a state transition. Draining every
	// permit is only atomic with respect to a single goroutine at a time;
	// without this, two concurrent transitions would race to drain the same
	// channel and split the permits between them, deadlocking both.
	transitionMu sync.Mutex

	// state is only ever mutated while holding every permit.
	state   coldSwapState
	channel Channel
}

type coldSwapState int

const (
	stateClosed coldSwapState = iota
	stateOpen
)

// NewColdSwapHolder constructs a holder that lazily opens its Channel via
// opener on first use.
func NewColdSwapHolder(opener Opener) *ColdSwapHolder {
	permits := make(chan struct{}, exclusivePermits)
	for i := 0; i < exclusivePermits; i++ {
		permits <- struct{}{}
	}
	return &ColdSwapHolder{opener: opener, permits: permits, state: stateClosed}
}

func (h *ColdSwapHolder) acquireShared() {
	<-h.permits
}

func (h *ColdSwapHolder) releaseShared() {
	h.permits <- struct{}{}
}

// acquireExclusive is uninterruptible by design: callers waiting for every
// permit to become free must not abandon the wait, since a partial
// acquisition would leave the semaphore in an inconsistent state relative to
// other holders.
func (h *ColdSwapHolder) acquireExclusive() {
	for i := 0; i < exclusivePermits; i++ {
		<-h.permits
	}
}

func (h *ColdSwapHolder) releaseExclusive() {
	for i := 0; i < exclusivePermits; i++ {
		h.permits <- struct{}{}
	}
}

func (h *ColdSwapHolder) downgradeToShared() {
	for i := 0; i < exclusivePermits-1; i++ {
		h.permits <- struct{}{}
	}
}

// Opened runs fn with a guarantee that the channel is open for its
// duration. If the channel is already open, fn runs under shared access
// alongside any other Opened callers. If it is closed, this goroutine
// escalates to exclusive access, opens it, downgrades to shared, and then
// runs fn. The open itself is performed with a background context so that
// cancellation of ctx cannot leave the holder mid-transition; ctx still
// bounds fn's own execution.
func (h *ColdSwapHolder) Opened(ctx context.Context, fn func(ctx context.Context, ch Channel) error) error {
	h.acquireShared()
	if h.state == stateOpen {
		defer h.releaseShared()
		return fn(ctx, h.channel)
	}
	h.releaseShared()

	// Concurrent callers all land here when closed; transitionMu ensures
	// only one of them actually performs the open (and, if the Opener
	// retries internally, only one retry schedule is ever running — the
	// rest simply wait on the lock).
	h.transitionMu.Lock()
	if h.state == stateClosed {
		h.acquireExclusive()
		ch, err := h.opener.Open(context.Background())
		if err != nil {
			h.releaseExclusive()
			h.transitionMu.Unlock()
			return err
		}
		h.channel = ch
		h.state = stateOpen
		// Keeps one permit: this goroutine now holds shared access.
		h.downgradeToShared()
	} else {
		h.acquireShared()
	}
	h.transitionMu.Unlock()

	defer h.releaseShared()
	return fn(ctx, h.channel)
}

// Closed runs fn with a guarantee that the channel is closed for its
// duration, closing it first if necessary. The close itself is
// uninterruptible for the same reason as the open transition in Opened.
func (h *ColdSwapHolder) Closed(ctx context.Context, fn func(ctx context.Context) error) error {
	h.transitionMu.Lock()
	defer h.transitionMu.Unlock()
	h.acquireExclusive()
	defer h.releaseExclusive()
	if h.state == stateOpen {
		_ = h.channel.Close()
		h.channel = nil
		h.state = stateClosed
	}
	return fn(ctx)
}

// Reset requests Closed with a no-op body, so the next Opened call
// re-opens a fresh channel.
func (h *ColdSwapHolder) Reset(ctx context.Context) error {
	return h.Closed(ctx, func(context.Context) error { return nil })
}

// Finalize closes any live channel. Callers must ensure no concurrent
// Opened/Closed calls are in flight.
func (h *ColdSwapHolder) Finalize() error {
	h.transitionMu.Lock()
	defer h.transitionMu.Unlock()
	h.acquireExclusive()
	defer h.releaseExclusive()
	if h.state == stateOpen {
		err := h.channel.Close()
		h.channel = nil
		h.state = stateClosed
		return err
	}
	return nil
}
