package source

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"

	"streamloader/internal/log"
)

// PubSub streams batches from a GCP Pub/Sub subscription, batching messages
// by size and delay and acking the underlying pub/sub messages only once
// the pipeline acks the batch's Token.
type PubSub struct {
	client         *pubsub.Client
	subscriptionID string
	batching       BatchingParams
	logger         log.Modular

	sub    *pubsub.Subscription
	cancel context.CancelFunc
}

// NewPubSub constructs a PubSub source against an already-authenticated
// client.
func NewPubSub(client *pubsub.Client, subscriptionID string, batching BatchingParams, logger log.Modular) *PubSub {
	return &PubSub{client: client, subscriptionID: subscriptionID, batching: batching, logger: logger}
}

// Stream implements Source.
func (p *PubSub) Stream(ctx context.Context) (<-chan TokenedEvents, error) {
	p.sub = p.client.Subscription(p.subscriptionID)
	p.sub.ReceiveSettings.Synchronous = false

	out := make(chan TokenedEvents)
	streamCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go func() {
		defer close(out)
		batcher := newByteBatcher(p.batching.MaxBytes, p.batching.MaxDelay)
		defer batcher.stop()

		err := p.sub.Receive(streamCtx, func(msgCtx context.Context, m *pubsub.Message) {
			batcher.add(m.Data, func() { m.Ack() }, func(te TokenedEvents) {
				select {
				case out <- te:
				case <-streamCtx.Done():
				}
			})
		})
		if err != nil && streamCtx.Err() == nil {
			p.logger.Errorf("pubsub receive loop ended: %v", err)
		}
	}()

	return out, nil
}

// Close implements Source.
func (p *PubSub) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// byteBatcher accumulates payloads up to a byte budget or a max delay,
// whichever comes first, flushing a TokenedEvents whose Ack acks every
// underlying message once.
type byteBatcher struct {
	maxBytes int
	maxDelay time.Duration

	mu       sync.Mutex
	payloads [][]byte
	acks     []func()
	size     int
	timer    *time.Timer
}

func newByteBatcher(maxBytes int, maxDelay time.Duration) *byteBatcher {
	return &byteBatcher{maxBytes: maxBytes, maxDelay: maxDelay}
}

func (b *byteBatcher) add(payload []byte, ack func(), emit func(TokenedEvents)) {
	b.mu.Lock()
	b.payloads = append(b.payloads, payload)
	b.acks = append(b.acks, ack)
	b.size += len(payload)
	if b.timer == nil {
		b.timer = time.AfterFunc(b.maxDelay, func() { b.flush(emit) })
	}
	full := b.size >= b.maxBytes
	b.mu.Unlock()

	if full {
		b.flush(emit)
	}
}

func (b *byteBatcher) flush(emit func(TokenedEvents)) {
	b.mu.Lock()
	if len(b.payloads) == 0 {
		b.mu.Unlock()
		return
	}
	payloads, acks := b.payloads, b.acks
	b.payloads, b.acks, b.size = nil, nil, 0
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	emit(TokenedEvents{Payloads: payloads, Ack: func() {
		for _, a := range acks {
			a()
		}
	}})
}

func (b *byteBatcher) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
}
