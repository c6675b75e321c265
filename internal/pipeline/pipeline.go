// Package pipeline composes the parse, transform, insert, dead-letter and
// metrics stages over the source stream, checkpointing exactly once per
// batch after every payload has either been inserted or dead-lettered.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"streamloader/internal/badrow"
	"streamloader/internal/crashreport"
	"streamloader/internal/log"
	"streamloader/internal/metrics"
	"streamloader/internal/sink"
	"streamloader/internal/source"
	"streamloader/internal/transform"
	"streamloader/internal/warehouse"
)

// Inserter is the narrow surface the driver needs from the insert stage.
type Inserter interface {
	Run(ctx context.Context, batch *transform.BatchAfterTransform) error
}

// Driver composes stages A-I over a Source, per §4.J.
type Driver struct {
	Source    source.Source
	Transform *transform.Stage
	Insert    Inserter
	Sink      sink.Sink
	Metrics   metrics.Reporter
	Crash     crashreport.Reporter
	Processor badrow.Processor
	Logger    log.Modular

	// PrefetchSize bounds how many transformed-and-inserted batches may be
	// queued ahead of the dead-letter/metrics/ack stage, decoupling insert
	// throughput from a slow dead-letter sink.
	PrefetchSize int
}

type inFlightBatch struct {
	batch *transform.BatchAfterTransform
	ack   func()
}

// Run pulls batches from Source until ctx is cancelled, driving each
// through parse -> transform -> insert -> (prefetch) -> dead-letter ->
// metrics -> ack. A fatal insert error is reported to the crash reporter
// and returned, without acking its batch; the caller should treat this as
// an unrecoverable process exit.
func (d *Driver) Run(ctx context.Context) error {
	stream, err := d.Source.Stream(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: failed to start source stream: %w", err)
	}

	prefetch := make(chan inFlightBatch, d.PrefetchSize)
	done := make(chan error, 1)

	go d.drainPrefetch(ctx, prefetch, done)

	for {
		select {
		case te, ok := <-stream:
			if !ok {
				close(prefetch)
				return <-done
			}
			if err := d.processOne(ctx, te, prefetch); err != nil {
				close(prefetch)
				<-done
				d.reportFatal(err)
				return err
			}
		case <-ctx.Done():
			close(prefetch)
			<-done
			return ctx.Err()
		}
	}
}

func (d *Driver) processOne(ctx context.Context, te source.TokenedEvents, prefetch chan<- inFlightBatch) error {
	parsed := transform.Parse(d.Processor, te.Payloads, te.Ack)
	transformed := d.Transform.Run(parsed)

	insertStart := time.Now()
	err := d.Insert.Run(ctx, &transformed)
	d.Metrics.ObserveInsertLatency(time.Since(insertStart))
	if err != nil {
		return err
	}

	select {
	case prefetch <- inFlightBatch{batch: &transformed, ack: te.Ack}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drainPrefetch is the second half of the pipeline: dead-letter emission,
// metrics recording, and ack, running independently of insertion so a slow
// dead-letter sink cannot stall it.
func (d *Driver) drainPrefetch(ctx context.Context, prefetch <-chan inFlightBatch, done chan<- error) {
	for item := range prefetch {
		if err := d.emitBad(ctx, item.batch.BadAccumulated); err != nil {
			d.Logger.Errorf("dead-letter emission failed, batch left unacknowledged: %v", err)
			continue
		}
		d.recordMetrics(item.batch)
		item.ack()
	}
	done <- nil
}

func (d *Driver) emitBad(ctx context.Context, bad []badrow.BadRow) error {
	if len(bad) == 0 {
		return nil
	}
	payloads := make([][]byte, 0, len(bad))
	for _, b := range bad {
		blob, err := b.MarshalSelfDescribing()
		if err != nil {
			d.Logger.Errorf("failed to marshal bad row: %v", err)
			continue
		}
		payloads = append(payloads, blob)
	}
	return d.Sink.SendBatch(ctx, payloads)
}

func (d *Driver) recordMetrics(batch *transform.BatchAfterTransform) {
	bad := int64(len(batch.BadAccumulated))
	good := int64(batch.OrigBatchSize) - bad
	d.Metrics.IncrGood(good)
	d.Metrics.IncrBad(bad)
	d.Metrics.IncrAck(1)
	d.Metrics.ObserveBatchSize(int64(batch.OrigBatchSize))
}

func (d *Driver) reportFatal(err error) {
	if d.Crash == nil {
		return
	}
	d.Crash.CaptureFatal(err, map[string]string{"component": "insert-stage"})
	d.Crash.Flush(5 * time.Second)
}
