package warehouse

import (
	"context"
	"fmt"
	"time"

	"streamloader/internal/badrow"
	"streamloader/internal/log"
	"streamloader/internal/retry"
	"streamloader/internal/transform"
)

// dataIssueVendorCodes is the whitelist of vendor codes classified as
// per-record data problems rather than environment/programming failures.
var dataIssueVendorCodes = map[string]struct{}{
	VendorInvalidValueRow:    {},
	VendorInvalidFormatRow:   {},
	VendorMaxRowSizeExceeded: {},
	VendorUnknownDataType:    {},
	VendorNullValue:          {},
	VendorNullOrEmptyString:  {},
}

// FatalInsertError aborts the pipeline: it is raised for any InsertFailure
// carrying a vendor code outside the data-issue whitelist and with no
// missing columns.
type FatalInsertError struct {
	Index   int
	Vendor  string
	Message string
}

// Error implements error.
func (e *FatalInsertError) Error() string {
	return fmt.Sprintf("fatal insert error at index %d (vendor=%s): %s", e.Index, e.Vendor, e.Message)
}

// TableAlterer is the narrow surface the insert stage needs from the table
// manager: adding columns discovered by a schema-evolution failure.
type TableAlterer interface {
	AddColumns(ctx context.Context, names []string) error
}

// InsertStage runs the two-pass insert protocol (component I) against a
// Provider-managed channel, reacting to schema-evolution failures by
// altering the table and resetting the channel between passes.
type InsertStage struct {
	Provider  *Provider
	Table     TableAlterer
	Processor badrow.Processor
	Logger    log.Modular

	// Retry runs each channel write under the bounded transient policy, so a
	// network blip or dropped connection is retried in place instead of
	// aborting the pipeline on the spot. TransientDelay/TransientAttempts
	// configure that policy; a nil Retry disables retrying (every write
	// error becomes fatal immediately), which tests rely on to keep fakes
	// simple.
	Retry             *retry.Engine
	TransientDelay    time.Duration
	TransientAttempts int
}

// Run executes both passes over a BatchAfterTransform, mutating it in
// place and returning it ready for dead-letter emission and ack. It
// returns a *FatalInsertError if any failure classifies as fatal, in which
// case the caller must not ack the batch.
func (s *InsertStage) Run(ctx context.Context, batch *transform.BatchAfterTransform) error {
	if len(batch.ToBeInserted) == 0 {
		return nil
	}

	extraColsUnion, err := s.pass(ctx, batch, true)
	if err != nil {
		return err
	}

	if len(extraColsUnion) > 0 {
		names := make([]string, 0, len(extraColsUnion))
		for name := range extraColsUnion {
			names = append(names, name)
		}
		if err := s.Table.AddColumns(ctx, names); err != nil {
			return fmt.Errorf("warehouse: schema evolution failed: %w", err)
		}
		if err := s.Provider.Reset(ctx); err != nil {
			return fmt.Errorf("warehouse: channel reset after schema evolution failed: %w", err)
		}
	} else {
		batch.ToBeInserted = nil
		return nil
	}

	if _, err := s.pass(ctx, batch, false); err != nil {
		return err
	}
	batch.ToBeInserted = nil
	return nil
}

// pass runs a single write attempt over batch.ToBeInserted, folding
// failures into batch.BadAccumulated (and, on the first pass, into a
// returned union of missing column names). firstPass controls whether an
// extraCols failure is treated as schema evolution (true) or as an
// ordinary data error (false, per Pass 2 semantics).
func (s *InsertStage) pass(ctx context.Context, batch *transform.BatchAfterTransform, firstPass bool) (map[string]struct{}, error) {
	rows := make([]map[string]any, len(batch.ToBeInserted))
	for i, ewt := range batch.ToBeInserted {
		row := make(map[string]any, len(ewt.Row))
		for k, v := range ewt.Row {
			row[k] = v
		}
		rows[i] = row
	}

	var result WriteResult
	write := func(ctx context.Context) error {
		return s.Provider.Opened(ctx, func(ctx context.Context, ch Channel) error {
			r, err := ch.Write(ctx, rows)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	}

	var err error
	if s.Retry != nil {
		err = s.Retry.RunTransient(ctx, "warehouse-write", s.TransientDelay, s.TransientAttempts, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("warehouse: channel write failed after transient retry: %w", err)
	}
	if len(result.Failures) == 0 {
		return nil, nil
	}

	failedByIndex := make(map[int]InsertFailure, len(result.Failures))
	for _, f := range result.Failures {
		failedByIndex[f.Index] = f
	}

	extraColsUnion := map[string]struct{}{}
	var retained []transform.EventWithTransform
	for i, ewt := range batch.ToBeInserted {
		f, failed := failedByIndex[i]
		if !failed {
			continue
		}
		if firstPass && len(f.ExtraCols) > 0 {
			for name := range f.ExtraCols {
				extraColsUnion[name] = struct{}{}
			}
			retained = append(retained, ewt)
			continue
		}
		if _, isDataIssue := dataIssueVendorCodes[f.VendorCode]; isDataIssue || (!firstPass && len(f.ExtraCols) > 0) {
			raw, _ := rawPayload(ewt)
			batch.BadAccumulated = append(batch.BadAccumulated, badrow.New(
				badrow.KindLoaderRuntimeError, s.Processor, f.Message, raw,
			))
			continue
		}
		return nil, &FatalInsertError{Index: i, Vendor: f.VendorCode, Message: f.Message}
	}

	// Rows that succeeded are done; rows dead-lettered or fatal are dropped;
	// only rows retained for schema-evolution retry carry into the next pass.
	batch.ToBeInserted = retained
	return extraColsUnion, nil
}

func rawPayload(ewt transform.EventWithTransform) ([]byte, error) {
	return ewt.Event.Serialize(), nil
}
