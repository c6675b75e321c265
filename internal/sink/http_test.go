package sink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamloader/internal/alert"
	"streamloader/internal/health"
	"streamloader/internal/log"
	"streamloader/internal/retry"
)

func newTestRetry() *retry.Engine {
	return retry.New(health.NewCell("test"), alert.Noop{}, log.New("error"))
}

func TestHTTPSendBatchRetriesTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTP(srv.URL, newTestRetry(), time.Millisecond, 3)
	err := s.SendBatch(context.Background(), [][]byte{[]byte(`{"a":1}`)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, attempts.Load())
}

func TestHTTPSendBatchExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTP(srv.URL, newTestRetry(), time.Millisecond, 2)
	err := s.SendBatch(context.Background(), [][]byte{[]byte(`{"a":1}`)})
	assert.Error(t, err)
}
