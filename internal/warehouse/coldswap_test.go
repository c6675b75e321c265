package warehouse

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct{ closed atomic.Bool }

func (c *fakeChannel) Write(context.Context, []map[string]any) (WriteResult, error) {
	return WriteResult{}, nil
}
func (c *fakeChannel) Close() error { c.closed.Store(true); return nil }

type countingOpener struct {
	opens atomic.Int32
	err   error
}

func (o *countingOpener) Open(context.Context) (Channel, error) {
	o.opens.Add(1)
	if o.err != nil {
		return nil, o.err
	}
	return &fakeChannel{}, nil
}

func TestOpenedOpensExactlyOnce(t *testing.T) {
	opener := &countingOpener{}
	holder := NewColdSwapHolder(opener)

	err := holder.Opened(context.Background(), func(ctx context.Context, ch Channel) error { return nil })
	require.NoError(t, err)
	err = holder.Opened(context.Background(), func(ctx context.Context, ch Channel) error { return nil })
	require.NoError(t, err)

	assert.EqualValues(t, 1, opener.opens.Load())
}

func TestResetForcesReopen(t *testing.T) {
	opener := &countingOpener{}
	holder := NewColdSwapHolder(opener)

	require.NoError(t, holder.Opened(context.Background(), func(context.Context, Channel) error { return nil }))
	require.NoError(t, holder.Reset(context.Background()))
	require.NoError(t, holder.Opened(context.Background(), func(context.Context, Channel) error { return nil }))

	assert.EqualValues(t, 2, opener.opens.Load())
}

func TestOpenFailurePropagates(t *testing.T) {
	opener := &countingOpener{err: assert.AnError}
	holder := NewColdSwapHolder(opener)

	err := holder.Opened(context.Background(), func(context.Context, Channel) error { return nil })
	assert.ErrorIs(t, err, assert.AnError)
}
