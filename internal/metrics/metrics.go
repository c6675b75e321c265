// Package metrics defines the metrics-reporter contract used by the
// pipeline driver and a statsd-backed implementation. The reporter itself
// is an out-of-scope external collaborator; this package only specifies
// and wires its contract.
package metrics

import "time"

// Reporter is the narrow surface the pipeline needs from a metrics
// collector: batch-level counters and timers.
type Reporter interface {
	IncrGood(n int64)
	IncrBad(n int64)
	IncrAck(n int64)
	ObserveInsertLatency(d time.Duration)
	ObserveBatchSize(n int64)
	Close() error
}

// Noop discards every metric; useful for tests and when statsd is
// unconfigured.
type Noop struct{}

func (Noop) IncrGood(int64)                    {}
func (Noop) IncrBad(int64)                     {}
func (Noop) IncrAck(int64)                     {}
func (Noop) ObserveInsertLatency(time.Duration) {}
func (Noop) ObserveBatchSize(int64)            {}
func (Noop) Close() error                      { return nil }
