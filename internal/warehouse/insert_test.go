package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamloader/internal/alert"
	"streamloader/internal/badrow"
	"streamloader/internal/event"
	"streamloader/internal/health"
	"streamloader/internal/log"
	"streamloader/internal/retry"
	"streamloader/internal/transform"
)

type scriptedChannel struct {
	results []WriteResult
	calls   int
}

func (c *scriptedChannel) Write(context.Context, []map[string]any) (WriteResult, error) {
	r := c.results[c.calls]
	c.calls++
	return r, nil
}
func (c *scriptedChannel) Close() error { return nil }

type scriptedOpener struct{ ch *scriptedChannel }

func (o *scriptedOpener) Open(context.Context) (Channel, error) { return o.ch, nil }

func newTestProvider(ch *scriptedChannel) *Provider {
	logger := log.New("error")
	h := health.NewCell("test")
	engine := retry.New(h, alert.Noop{}, logger)
	return NewProvider(&scriptedOpener{ch: ch}, engine, time.Millisecond, logger)
}

func batchOf(n int) *transform.BatchAfterTransform {
	b := &transform.BatchAfterTransform{OrigBatchSize: n}
	for i := 0; i < n; i++ {
		e := event.New()
		e.Fields["event_id"] = "id"
		b.ToBeInserted = append(b.ToBeInserted, transform.EventWithTransform{
			Event: e,
			Row:   map[string]transform.ColumnValue{"event_id": "id"},
		})
	}
	return b
}

func TestInsertStageScenario4_SchemaEvolution(t *testing.T) {
	ch := &scriptedChannel{results: []WriteResult{
		{Failures: []InsertFailure{{Index: 0, ExtraCols: map[string]struct{}{"unstruct_event_xyz_1": {}, "contexts_abc_2": {}}, VendorCode: VendorInvalidFormatRow}}},
		{},
	}}
	provider := newTestProvider(ch)

	tm := &fakeTableManager{}
	stage := &InsertStage{Provider: provider, Table: tm, Processor: badrow.Processor{Name: "streamloader"}, Logger: log.New("error")}

	batch := batchOf(2)
	err := stage.Run(context.Background(), batch)
	require.NoError(t, err)
	assert.Empty(t, batch.BadAccumulated)
	assert.Empty(t, batch.ToBeInserted)
	assert.ElementsMatch(t, []string{"unstruct_event_xyz_1", "contexts_abc_2"}, tm.addedColumns)
	assert.Equal(t, 2, ch.calls)
}

func TestInsertStageScenario5_DataErrorDeadLettered(t *testing.T) {
	ch := &scriptedChannel{results: []WriteResult{
		{Failures: []InsertFailure{{Index: 0, VendorCode: VendorInvalidFormatRow}}},
	}}
	provider := newTestProvider(ch)
	stage := &InsertStage{Provider: provider, Table: &fakeTableManager{}, Processor: badrow.Processor{Name: "streamloader"}}

	batch := batchOf(1)
	err := stage.Run(context.Background(), batch)
	require.NoError(t, err)
	assert.Len(t, batch.BadAccumulated, 1)
	assert.Empty(t, batch.ToBeInserted)
}

func TestInsertStageScenario6_FatalAborts(t *testing.T) {
	ch := &scriptedChannel{results: []WriteResult{
		{Failures: []InsertFailure{{Index: 0, VendorCode: "INTERNAL_ERROR"}}},
	}}
	provider := newTestProvider(ch)
	stage := &InsertStage{Provider: provider, Table: &fakeTableManager{}, Processor: badrow.Processor{Name: "streamloader"}}

	batch := batchOf(1)
	err := stage.Run(context.Background(), batch)
	var fatal *FatalInsertError
	assert.ErrorAs(t, err, &fatal)
	assert.Equal(t, 1, ch.calls)
}

// flakyErrChannel fails its first failuresRemaining Write calls with a
// call-level error (simulating a network blip), succeeding on every call
// after that.
type flakyErrChannel struct {
	failuresRemaining int
	result            WriteResult
	calls             int
}

func (c *flakyErrChannel) Write(context.Context, []map[string]any) (WriteResult, error) {
	c.calls++
	if c.failuresRemaining > 0 {
		c.failuresRemaining--
		return WriteResult{}, errors.New("connection reset by peer")
	}
	return c.result, nil
}
func (c *flakyErrChannel) Close() error { return nil }

type flakyErrOpener struct{ ch *flakyErrChannel }

func (o *flakyErrOpener) Open(context.Context) (Channel, error) { return o.ch, nil }

func newRetryingInsertStage(ch *flakyErrChannel, attempts int) *InsertStage {
	logger := log.New("error")
	h := health.NewCell("test")
	engine := retry.New(h, alert.Noop{}, logger)
	provider := NewProvider(&flakyErrOpener{ch: ch}, engine, time.Millisecond, logger)
	return &InsertStage{
		Provider:          provider,
		Table:             &fakeTableManager{},
		Processor:         badrow.Processor{Name: "streamloader"},
		Logger:            logger,
		Retry:             engine,
		TransientDelay:    time.Millisecond,
		TransientAttempts: attempts,
	}
}

func TestInsertStageRetriesTransientWriteErrorThenSucceeds(t *testing.T) {
	ch := &flakyErrChannel{failuresRemaining: 2}
	stage := newRetryingInsertStage(ch, 5)

	batch := batchOf(1)
	err := stage.Run(context.Background(), batch)

	require.NoError(t, err)
	assert.Empty(t, batch.ToBeInserted)
	assert.Equal(t, 3, ch.calls)
}

func TestInsertStageSurfacesFatalAfterTransientRetriesExhausted(t *testing.T) {
	ch := &flakyErrChannel{failuresRemaining: 10}
	stage := newRetryingInsertStage(ch, 3)

	batch := batchOf(1)
	err := stage.Run(context.Background(), batch)

	require.Error(t, err)
	var fatal *FatalInsertError
	assert.False(t, errors.As(err, &fatal), "a transient exhaustion is a plain error, not a FatalInsertError")
	assert.Equal(t, 3, ch.calls)
}

type fakeTableManager struct{ addedColumns []string }

func (m *fakeTableManager) AddColumns(ctx context.Context, names []string) error {
	m.addedColumns = append(m.addedColumns, names...)
	return nil
}
