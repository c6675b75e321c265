package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSendBatchAppendsNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dead-letter.ndjson")
	f, err := NewFile(path)
	require.NoError(t, err)

	require.NoError(t, f.SendBatch(context.Background(), [][]byte{[]byte(`{"a":1}`), []byte(`{"a":2}`)}))
	require.NoError(t, f.SendBatch(context.Background(), [][]byte{[]byte(`{"a":3}`)}))
	require.NoError(t, f.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n{\"a\":2}\n{\"a\":3}\n", string(contents))
}
