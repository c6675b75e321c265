// Package sink implements the dead-letter sink contract: batches of
// self-describing JSON blobs delivered to an HTTP endpoint or a local file.
package sink

import "context"

// Sink is the dead-letter collaborator's contract: sinkSimple(sequence<bytes>)
// -> completion. Failures are retried internally by the implementation; a
// returned error means retries were exhausted.
type Sink interface {
	SendBatch(ctx context.Context, payloads [][]byte) error
	Close() error
}
