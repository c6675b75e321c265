// Package alert implements throttled delivery of structured alerts to an
// operator-configured webhook. Delivery failures never propagate to callers.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"streamloader/internal/log"
)

// Severity levels attached to an alert payload.
type Severity string

// Severities recognised by the webhook payload.
const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Alert is the structured message forwarded to the webhook collaborator.
type Alert struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Alerter forwards alerts to a webhook. Implementations must never return
// an error to the retry engine; delivery failures are logged and swallowed.
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// Noop discards every alert; useful when no webhook is configured.
type Noop struct{}

// Alert implements Alerter.
func (Noop) Alert(context.Context, Alert) {}

// Webhook posts alerts as JSON to a configured endpoint, throttled so that a
// noisy failure loop cannot flood the operator's webhook receiver.
type Webhook struct {
	client   *resty.Client
	endpoint string
	tags     map[string]string
	logger   log.Modular

	mu       sync.Mutex
	lastSent time.Time
	minGap   time.Duration
}

// NewWebhook constructs a throttled webhook Alerter. minGap is the minimum
// time between two delivered alerts; alerts arriving faster than that are
// dropped rather than queued, since alerting is best-effort.
func NewWebhook(endpoint string, tags map[string]string, minGap time.Duration, logger log.Modular) *Webhook {
	return &Webhook{
		client:   resty.New().SetTimeout(10 * time.Second),
		endpoint: endpoint,
		tags:     tags,
		logger:   logger,
		minGap:   minGap,
	}
}

type webhookPayload struct {
	Message  string            `json:"message"`
	Tags     map[string]string `json:"tags,omitempty"`
	Severity Severity          `json:"severity"`
}

// Alert delivers a alerts to the webhook, swallowing any delivery failure.
func (w *Webhook) Alert(ctx context.Context, a Alert) {
	if w.throttled() {
		return
	}
	if w.endpoint == "" {
		return
	}
	_, err := w.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{Message: a.Message, Tags: w.tags, Severity: a.Severity}).
		Post(w.endpoint)
	if err != nil {
		w.logger.Warnf("failed to deliver alert to webhook: %v", err)
	}
}

func (w *Webhook) throttled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if !w.lastSent.IsZero() && now.Sub(w.lastSent) < w.minGap {
		return true
	}
	w.lastSent = now
	return false
}
