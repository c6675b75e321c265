// Package warehouse implements the warehouse-facing components: the table
// manager (schema DDL), the channel opener and cold-swap holder (streaming
// ingest lifecycle), the channel provider (retrying open with shared
// backoff), and the two-pass insert stage.
package warehouse

import "context"

// InsertFailure reports a single row that the channel rejected.
type InsertFailure struct {
	Index      int
	ExtraCols  map[string]struct{}
	VendorCode string
	Message    string
}

// WriteResult is the outcome of a single Channel.Write call.
type WriteResult struct {
	Failures []InsertFailure
}

// Channel is an owned, single-writer streaming-ingest session. At most one
// live instance exists per process at any time; it is held exclusively by
// the ColdSwapHolder.
type Channel interface {
	Write(ctx context.Context, rows []map[string]any) (WriteResult, error)
	Close() error
}

// Opener allocates a Channel bound to a fixed (database, schema, table,
// channel-name) tuple. Open failures propagate to the caller unretried; the
// channel provider (see provider.go) supplies retry policy.
type Opener interface {
	Open(ctx context.Context) (Channel, error)
}
