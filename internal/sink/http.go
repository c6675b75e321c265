package sink

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"streamloader/internal/retry"
)

// HTTP posts each dead-lettered payload to a fixed endpoint, one request
// per payload, retrying transient failures with the shared transient
// backoff policy.
type HTTP struct {
	client      *resty.Client
	destination string
	retry       *retry.Engine
	delay       time.Duration
	attempts    int
}

// NewHTTP constructs an HTTP dead-letter sink.
func NewHTTP(destination string, retryEngine *retry.Engine, delay time.Duration, attempts int) *HTTP {
	return &HTTP{
		client:      resty.New().SetTimeout(10 * time.Second),
		destination: destination,
		retry:       retryEngine,
		delay:       delay,
		attempts:    attempts,
	}
}

// SendBatch implements Sink.
func (h *HTTP) SendBatch(ctx context.Context, payloads [][]byte) error {
	for _, p := range payloads {
		payload := p
		err := h.retry.RunTransient(ctx, "dead-letter-post", h.delay, h.attempts, func(ctx context.Context) error {
			resp, err := h.client.R().SetContext(ctx).SetBody(payload).Post(h.destination)
			if err != nil {
				return err
			}
			if resp.IsError() {
				return errStatus(resp.StatusCode())
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Close implements Sink.
func (h *HTTP) Close() error { return nil }

type statusError int

func (e statusError) Error() string { return "dead-letter sink responded with a non-2xx status" }

func errStatus(code int) error { return statusError(code) }
