// Package source implements the two concrete input adapters (Pub/Sub and
// Kafka) behind the loader's source contract: an infinite stream of
// TokenedEvents, checkpointed only when its Token is acked.
package source

import (
	"context"
	"time"
)

// Token acknowledges a batch of payloads, triggering the source-side
// checkpoint. It must be called at most once, only after every payload in
// the batch has been inserted or dead-lettered.
type Token func()

// TokenedEvents is a batch pulled from the source.
type TokenedEvents struct {
	Payloads [][]byte
	Ack      Token
}

// Source streams batches until ctx is cancelled.
type Source interface {
	Stream(ctx context.Context) (<-chan TokenedEvents, error)
	Close() error
}

// BatchingParams controls how raw records are grouped into a TokenedEvents
// batch before it is handed to the pipeline.
type BatchingParams struct {
	MaxBytes int
	MaxDelay time.Duration
}
